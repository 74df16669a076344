// Where: internal/domain/envname/resolver.go
// What: Environment name resolution policies.
// Why: Map a trigger to the environment that selects secrets and config.
package envname

import (
	"errors"
	"fmt"
	"strings"
)

// Reserved environment names produced by mapping rules.
const (
	Testing    = "testing"
	Production = "production"

	mainBranch = "main"
)

var (
	ErrUnknownPolicy = errors.New("unknown resolution policy")
	ErrUnknownEvent  = errors.New("unknown event kind")
	ErrEmptyEnv      = errors.New("resolved environment name is empty")
	ErrReservedName  = errors.New("ref name collides with a reserved environment name")
)

// Policy selects how a trigger is mapped to an environment name.
type Policy string

const (
	// PolicyBranchMapped maps main to testing and passes every other ref through.
	PolicyBranchMapped Policy = "branch"
	// PolicyReleaseAware adds release precedence on top of PolicyBranchMapped.
	PolicyReleaseAware Policy = "release"
)

// ParsePolicy accepts the canonical names plus their long and letter aliases.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "branch", "branch-mapped", "a":
		return PolicyBranchMapped, nil
	case "release", "release-aware", "b":
		return PolicyReleaseAware, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, value)
	}
}

// Resolve returns the environment name for trigger under policy.
// The ref is passed through verbatim; use CheckReserved for strict runs.
func Resolve(policy Policy, trigger Trigger) (string, error) {
	switch policy {
	case PolicyBranchMapped:
		return BranchMapped(trigger), nil
	case PolicyReleaseAware:
		return ReleaseAware(trigger), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, string(policy))
	}
}

// BranchMapped resolves main to testing; any other ref becomes the env name.
func BranchMapped(trigger Trigger) string {
	if trigger.Ref == mainBranch {
		return Testing
	}
	return trigger.Ref
}

// ReleaseAware resolves a published release to production before
// falling back to BranchMapped.
func ReleaseAware(trigger Trigger) string {
	if trigger.IsRelease() {
		return Production
	}
	return BranchMapped(trigger)
}

// Namespace returns the secret and config namespace for env.
func Namespace(prefix, env string) string {
	return prefix + "-" + env
}

// CheckReserved resolves trigger and rejects the result when it is empty or
// when a ref passed through verbatim lands on a name a mapping rule owns.
// testing is owned by main under both policies; production is owned by
// releases only under PolicyReleaseAware, since PolicyBranchMapped reaches
// production solely through a ref named production.
func CheckReserved(policy Policy, trigger Trigger) (string, error) {
	env, err := Resolve(policy, trigger)
	if err != nil {
		return "", err
	}
	if env == "" {
		return "", ErrEmptyEnv
	}
	if !passedThrough(policy, trigger) {
		return env, nil
	}
	if env == Testing || (env == Production && policy == PolicyReleaseAware) {
		return "", fmt.Errorf("%w: %q", ErrReservedName, env)
	}
	return env, nil
}

func passedThrough(policy Policy, trigger Trigger) bool {
	if trigger.Ref == mainBranch {
		return false
	}
	return !(policy == PolicyReleaseAware && trigger.IsRelease())
}
