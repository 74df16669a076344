package envutil

import "testing"

func TestHostEnv(t *testing.T) {
	if got := HostEnvKey(" env "); got != "DEPLOYCTL_ENV" {
		t.Fatalf("unexpected key: %q", got)
	}
	t.Setenv("DEPLOYCTL_POLICY", " release ")
	if got := GetHostEnv("POLICY"); got != "release" {
		t.Fatalf("unexpected value: %q", got)
	}
	if err := SetHostEnv("ENV", "staging"); err != nil {
		t.Fatalf("set: %v", err)
	}
	t.Cleanup(func() { _ = SetHostEnv("ENV", "") })
	if got := GetHostEnv("ENV"); got != "staging" {
		t.Fatalf("unexpected value after set: %q", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "flag", "env"); got != "flag" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
