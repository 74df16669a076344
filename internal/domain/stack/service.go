// Where: internal/domain/stack/service.go
// What: Service container definitions for the deployed stack.
// Why: Decouple script rendering from config file decoding.
package stack

// Default container policies.
const (
	DefaultRestart   = "always"
	DefaultLogDriver = "json-file"
)

// Service is one container run on the target instance.
type Service struct {
	Name      string
	Container string
	Image     string
	EnvFile   string
	Ports     []string
	Volumes   []string
	Network   string
	Restart   string
	LogDriver string
	Command   []string
}

// WithDefaults fills container name and policies left empty.
func (s Service) WithDefaults() Service {
	if s.Container == "" {
		s.Container = s.Name
	}
	if s.Restart == "" {
		s.Restart = DefaultRestart
	}
	if s.LogDriver == "" {
		s.LogDriver = DefaultLogDriver
	}
	return s
}

// Networks returns the distinct non-empty networks used by services, in order.
func Networks(services []Service) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, svc := range services {
		if svc.Network == "" {
			continue
		}
		if _, ok := seen[svc.Network]; ok {
			continue
		}
		seen[svc.Network] = struct{}{}
		out = append(out, svc.Network)
	}
	return out
}
