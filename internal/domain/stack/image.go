// Where: internal/domain/stack/image.go
// What: Container image references and tag derivation.
// Why: Every image is published as :latest and :<ref_name>.
package stack

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// LatestTag is always published alongside the ref tag.
const LatestTag = "latest"

var (
	ErrInvalidTag        = errors.New("invalid image tag")
	ErrRepositoryMissing = errors.New("image repository is required")

	tagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
)

// ImageRef names an image in a registry without a tag.
type ImageRef struct {
	Host         string
	Organization string
	Repository   string
}

// Name returns host/organization/repository, omitting empty segments.
func (r ImageRef) Name() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{r.Host, r.Organization, r.Repository} {
		if trimmed := strings.Trim(strings.TrimSpace(part), "/"); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "/")
}

// Tagged returns the reference with tag appended.
func (r ImageRef) Tagged(tag string) string {
	return r.Name() + ":" + tag
}

// Tags returns the references an image is published under for refName.
// refName is used verbatim as the second tag and must be a valid tag.
func Tags(ref ImageRef, refName string) ([]string, error) {
	if strings.TrimSpace(ref.Repository) == "" {
		return nil, ErrRepositoryMissing
	}
	if !tagPattern.MatchString(refName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTag, refName)
	}
	tags := []string{ref.Tagged(LatestTag)}
	if refName != LatestTag {
		tags = append(tags, ref.Tagged(refName))
	}
	return tags, nil
}
