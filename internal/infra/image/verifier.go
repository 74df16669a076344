// Where: internal/infra/image/verifier.go
// What: Registry manifest verification through the Docker engine.
// Why: A push that silently dropped a platform must fail the run before services restart.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// ErrPlatformMissing is returned when a published manifest lacks a platform.
var ErrPlatformMissing = errors.New("image manifest is missing platforms")

// DistributionAPI is the subset of the Docker client used for verification.
type DistributionAPI interface {
	DistributionInspect(ctx context.Context, imageRef, encodedRegistryAuth string) (registry.DistributionInspect, error)
}

// DistributionCloser is a DistributionAPI that holds a connection.
type DistributionCloser interface {
	DistributionAPI
	io.Closer
}

// NewDockerClient constructs a Docker SDK client using environment defaults.
func NewDockerClient() (*client.Client, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return dockerClient, nil
}

// RegistryAuth encodes credentials for DistributionInspect. Empty
// credentials yield an empty string, which means anonymous access.
func RegistryAuth(server, username, password string) (string, error) {
	if username == "" && password == "" {
		return "", nil
	}
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      username,
		Password:      password,
		ServerAddress: server,
	})
	if err != nil {
		return "", fmt.Errorf("encode registry auth: %w", err)
	}
	return encoded, nil
}

// Verification is the result for one reference.
type Verification struct {
	Ref       string
	Digest    string
	Platforms []string
}

// Verifier checks that pushed references carry every expected platform.
type Verifier struct {
	API    DistributionAPI
	Auth   string
	Logger *zap.Logger
}

// NewVerifier returns a Verifier using api.
func NewVerifier(api DistributionAPI, auth string, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{API: api, Auth: auth, Logger: logger}
}

// Verify inspects every ref and fails on the first one missing a platform.
func (v *Verifier) Verify(ctx context.Context, refs []string, platforms []string) ([]Verification, error) {
	if v == nil || v.API == nil {
		return nil, errors.New("docker client is nil")
	}
	results := make([]Verification, 0, len(refs))
	for _, ref := range refs {
		inspect, err := v.API.DistributionInspect(ctx, ref, v.Auth)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", ref, err)
		}
		published := make([]string, 0, len(inspect.Platforms))
		for _, p := range inspect.Platforms {
			published = append(published, FormatPlatform(p))
		}
		sort.Strings(published)
		if missing := MissingPlatforms(platforms, inspect.Platforms); len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s lacks %s", ErrPlatformMissing, ref, strings.Join(missing, ", "))
		}
		v.Logger.Debug("verified image",
			zap.String("ref", ref),
			zap.String("digest", inspect.Descriptor.Digest.String()),
			zap.Strings("platforms", published),
		)
		results = append(results, Verification{
			Ref:       ref,
			Digest:    inspect.Descriptor.Digest.String(),
			Platforms: published,
		})
	}
	return results, nil
}

// MissingPlatforms returns the entries of want not present in have.
// want entries use os/arch[/variant]; a want without a variant matches any variant.
func MissingPlatforms(want []string, have []ocispec.Platform) []string {
	var missing []string
	for _, entry := range want {
		os, arch, variant := ParsePlatform(entry)
		found := false
		for _, p := range have {
			if p.OS != os || p.Architecture != arch {
				continue
			}
			if variant != "" && p.Variant != variant {
				continue
			}
			found = true
			break
		}
		if !found {
			missing = append(missing, entry)
		}
	}
	return missing
}

// ParsePlatform splits os/arch[/variant].
func ParsePlatform(value string) (os, arch, variant string) {
	parts := strings.SplitN(strings.TrimSpace(value), "/", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return "linux", parts[0], ""
	}
}

// FormatPlatform renders p as os/arch[/variant].
func FormatPlatform(p ocispec.Platform) string {
	out := p.OS + "/" + p.Architecture
	if p.Variant != "" {
		out += "/" + p.Variant
	}
	return out
}
