// Where: internal/infra/config/stack.go
// What: Stack configuration types and loading.
// Why: One file describes images, services, instance, secrets, and health for every environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/domain/stack"
	"gopkg.in/yaml.v3"
)

// Defaults applied after decoding.
const (
	DefaultHealthPath    = "/api/healthcheck"
	DefaultHealthScheme  = "https"
	DefaultHealthWait    = 60 * time.Second
	DefaultHealthTimeout = 10 * time.Second
	DefaultDomainKey     = "domain"
	DefaultEnvFilesDir   = "deploy"
	DefaultDockerfile    = "Dockerfile"
)

// DefaultPlatforms are the architectures every image is built for.
var DefaultPlatforms = []string{"linux/amd64", "linux/arm64"}

var (
	errProjectRequired  = errors.New("project is required")
	errDuplicateService = errors.New("duplicate service")
	errDuplicateImage   = errors.New("duplicate image")
	errUnknownImage     = errors.New("service image is neither a declared image nor a qualified reference")
	errUnknownProvider  = errors.New("unknown secrets provider")
	errInstanceRequired = errors.New("instance name and zone are required")
)

// Stack is the root of deploy/stack.yaml.
type Stack struct {
	Project  string    `yaml:"project"`
	Policy   string    `yaml:"policy,omitempty"`
	Registry Registry  `yaml:"registry"`
	Images   []Image   `yaml:"images,omitempty"`
	Instance Instance  `yaml:"instance"`
	Secrets  Secrets   `yaml:"secrets"`
	EnvFiles EnvFiles  `yaml:"env_files,omitempty"`
	Services []Service `yaml:"services"`
	Files    []File    `yaml:"files,omitempty"`
	Health   Health    `yaml:"health,omitempty"`
	History  History   `yaml:"history,omitempty"`
}

// Registry is where built images are pushed.
type Registry struct {
	Host         string   `yaml:"host,omitempty"`
	Organization string   `yaml:"organization"`
	Platforms    []string `yaml:"platforms,omitempty"`
}

// Image is one image built from this repository. Context and Dockerfile are
// relative to the project root; Dockerfile defaults to <context>/Dockerfile.
type Image struct {
	Name       string `yaml:"name"`
	Repository string `yaml:"repository"`
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// Instance is the compute instance services run on.
type Instance struct {
	Name    string `yaml:"name"`
	Zone    string `yaml:"zone"`
	Project string `yaml:"project,omitempty"`
	Workdir string `yaml:"workdir,omitempty"`
}

// Secrets selects the secret store backend and the keys read per environment.
type Secrets struct {
	Provider  string   `yaml:"provider"`
	Region    string   `yaml:"region,omitempty"`
	File      string   `yaml:"file,omitempty"`
	DomainKey string   `yaml:"domain_key,omitempty"`
	Keys      []string `yaml:"keys,omitempty"`
}

// EnvFiles locates template.*.env files.
type EnvFiles struct {
	Dir string `yaml:"dir,omitempty"`
}

// Service is one container started on the instance.
type Service struct {
	Name      string   `yaml:"name"`
	Container string   `yaml:"container,omitempty"`
	Image     string   `yaml:"image"`
	EnvFile   string   `yaml:"env_file,omitempty"`
	Ports     []string `yaml:"ports,omitempty"`
	Volumes   []string `yaml:"volumes,omitempty"`
	Network   string   `yaml:"network,omitempty"`
	Restart   string   `yaml:"restart,omitempty"`
	LogDriver string   `yaml:"log_driver,omitempty"`
	Command   []string `yaml:"command,omitempty"`
}

// File is copied to the instance before services start.
type File struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Health configures the post-deploy check.
type Health struct {
	Path    string        `yaml:"path,omitempty"`
	Scheme  string        `yaml:"scheme,omitempty"`
	Wait    time.Duration `yaml:"wait,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// History configures the optional deploy ledger.
type History struct {
	Table  string `yaml:"table,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
	Region string `yaml:"region,omitempty"`
}

// LoadStack reads, validates, and defaults the stack file at path.
func LoadStack(path string) (Stack, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Stack{}, fmt.Errorf("read stack config: %w", err)
	}
	return ParseStack(payload)
}

// ParseStack validates payload against the schema and decodes it.
func ParseStack(payload []byte) (Stack, error) {
	if err := ValidateSchema(payload); err != nil {
		return Stack{}, fmt.Errorf("validate stack config: %w", err)
	}
	var cfg Stack
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return Stack{}, fmt.Errorf("decode stack config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Stack{}, err
	}
	return cfg, nil
}

func (s *Stack) applyDefaults() {
	if s.Policy == "" {
		s.Policy = string(envname.PolicyReleaseAware)
	}
	if len(s.Registry.Platforms) == 0 {
		s.Registry.Platforms = append([]string(nil), DefaultPlatforms...)
	}
	for i := range s.Images {
		if s.Images[i].Dockerfile == "" {
			s.Images[i].Dockerfile = path.Join(s.Images[i].Context, DefaultDockerfile)
		}
	}
	if s.Secrets.DomainKey == "" {
		s.Secrets.DomainKey = DefaultDomainKey
	}
	if s.EnvFiles.Dir == "" {
		s.EnvFiles.Dir = DefaultEnvFilesDir
	}
	if s.Health.Path == "" {
		s.Health.Path = DefaultHealthPath
	}
	if s.Health.Scheme == "" {
		s.Health.Scheme = DefaultHealthScheme
	}
	if s.Health.Wait == 0 {
		s.Health.Wait = DefaultHealthWait
	}
	if s.Health.Timeout == 0 {
		s.Health.Timeout = DefaultHealthTimeout
	}
}

// Validate checks cross-field rules the schema cannot express.
func (s Stack) Validate() error {
	if strings.TrimSpace(s.Project) == "" {
		return errProjectRequired
	}
	if _, err := envname.ParsePolicy(s.Policy); err != nil {
		return err
	}
	if s.Instance.Name == "" || s.Instance.Zone == "" {
		return errInstanceRequired
	}
	switch s.Secrets.Provider {
	case ProviderAWS, ProviderDotenv:
	default:
		return fmt.Errorf("%w: %q", errUnknownProvider, s.Secrets.Provider)
	}

	images := map[string]struct{}{}
	for _, img := range s.Images {
		if _, ok := images[img.Name]; ok {
			return fmt.Errorf("%w: %s", errDuplicateImage, img.Name)
		}
		images[img.Name] = struct{}{}
	}
	containers := map[string]struct{}{}
	for _, svc := range s.Services {
		name := svc.Container
		if name == "" {
			name = svc.Name
		}
		if _, ok := containers[name]; ok {
			return fmt.Errorf("%w: %s", errDuplicateService, name)
		}
		containers[name] = struct{}{}

		if _, ok := images[svc.Image]; !ok && !qualifiedReference(svc.Image) {
			return fmt.Errorf("%w: service %s uses %q", errUnknownImage, svc.Name, svc.Image)
		}
	}
	return nil
}

// qualifiedReference reports whether image carries a tag, digest, or
// repository path, so it cannot be a bare declared image name.
func qualifiedReference(image string) bool {
	return strings.ContainsAny(image, "/:@")
}

// Secret store providers.
const (
	ProviderAWS    = "aws"
	ProviderDotenv = "dotenv"
)

// Namespace returns the secret namespace for env.
func (s Stack) Namespace(env string) string {
	return envname.Namespace(s.Project, env)
}

// ImageRef returns the registry reference of a declared image.
func (s Stack) ImageRef(img Image) stack.ImageRef {
	return stack.ImageRef{
		Host:         s.Registry.Host,
		Organization: s.Registry.Organization,
		Repository:   img.Repository,
	}
}

// FindImage returns the declared image called name.
func (s Stack) FindImage(name string) (Image, bool) {
	for _, img := range s.Images {
		if img.Name == name {
			return img, true
		}
	}
	return Image{}, false
}

// StackServices maps services to domain services. A service image naming a
// declared image runs that image tagged with ref; any other value is used verbatim.
func (s Stack) StackServices(ref string) []stack.Service {
	out := make([]stack.Service, 0, len(s.Services))
	for _, svc := range s.Services {
		image := svc.Image
		if img, ok := s.FindImage(svc.Image); ok {
			image = s.ImageRef(img).Tagged(ref)
		}
		out = append(out, stack.Service{
			Name:      svc.Name,
			Container: svc.Container,
			Image:     image,
			EnvFile:   svc.EnvFile,
			Ports:     svc.Ports,
			Volumes:   svc.Volumes,
			Network:   svc.Network,
			Restart:   svc.Restart,
			LogDriver: svc.LogDriver,
			Command:   svc.Command,
		}.WithDefaults())
	}
	return out
}
