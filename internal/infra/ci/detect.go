// Where: internal/infra/ci/detect.go
// What: Build a trigger from the CI runner environment.
// Why: Pipelines pass the event through env vars and an event payload file.
package ci

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aaqstack/deployctl/internal/domain/envname"
)

// GitHub Actions variables read during detection.
const (
	EnvEventName = "GITHUB_EVENT_NAME"
	EnvRefName   = "GITHUB_REF_NAME"
	EnvEventPath = "GITHUB_EVENT_PATH"
	EnvActions   = "GITHUB_ACTIONS"
)

var ErrNoRef = errors.New("no ref name available from flags, CI environment, or git")

// Overrides are explicit values that win over detected ones.
type Overrides struct {
	Event  string
	Ref    string
	Action string
}

// Detector assembles a trigger from overrides, CI env, and local git.
type Detector struct {
	Getenv   func(string) string
	ReadFile func(string) ([]byte, error)
	Git      RefReader
}

// RefReader reports the checked-out ref of a local repository.
type RefReader interface {
	CurrentRef(dir string) (string, error)
}

// NewDetector returns a Detector bound to the process environment and go-git.
func NewDetector() Detector {
	return Detector{Getenv: os.Getenv, ReadFile: os.ReadFile, Git: GoGitReader{}}
}

// Detect returns the trigger for the current run. dir is only used for the
// local git fallback, which is consulted when no ref is known otherwise.
func (d Detector) Detect(dir string, overrides Overrides) (envname.Trigger, error) {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	eventName := firstSet(overrides.Event, getenv(EnvEventName))
	event := envname.EventManual
	if eventName != "" {
		parsed, err := envname.ParseEventKind(eventName)
		if err != nil {
			return envname.Trigger{}, err
		}
		event = parsed
	}

	ref := overrides.Ref
	if ref == "" {
		ref = getenv(EnvRefName)
	}
	if ref == "" && d.Git != nil {
		gitRef, err := d.Git.CurrentRef(dir)
		if err != nil {
			return envname.Trigger{}, fmt.Errorf("%w: %v", ErrNoRef, err)
		}
		ref = gitRef
	}
	if ref == "" {
		return envname.Trigger{}, ErrNoRef
	}

	action := overrides.Action
	if action == "" && event == envname.EventRelease {
		payloadAction, err := d.payloadAction(getenv(EnvEventPath))
		if err != nil {
			return envname.Trigger{}, err
		}
		action = payloadAction
	}

	return envname.Trigger{Event: event, Ref: ref, Action: action}, nil
}

type eventPayload struct {
	Action string `json:"action"`
}

func (d Detector) payloadAction(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	readFile := d.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	data, err := readFile(path)
	if err != nil {
		return "", fmt.Errorf("read event payload: %w", err)
	}
	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode event payload: %w", err)
	}
	return payload.Action, nil
}

// InCI reports whether the process runs under GitHub Actions.
func InCI(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	return getenv(EnvActions) == "true"
}

func firstSet(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
