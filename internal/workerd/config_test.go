package workerd

import "testing"

func TestFromEnvRequiresControlSocketArg(t *testing.T) {
	t.Setenv("MYSTIC_OUTPUT_ADDR", "127.0.0.1:9001")
	if _, err := FromEnv([]string{"worker"}); err == nil {
		t.Fatalf("FromEnv: expected an error when the control socket argument is missing")
	}
}

func TestFromEnvRequiresOutputAddr(t *testing.T) {
	t.Setenv("MYSTIC_OUTPUT_ADDR", "")
	if _, err := FromEnv([]string{"worker", "/tmp/pyproxy.sock"}); err == nil {
		t.Fatalf("FromEnv: expected an error when MYSTIC_OUTPUT_ADDR is unset")
	}
}

func TestFromEnvParsesSocketPathAndAddr(t *testing.T) {
	t.Setenv("MYSTIC_OUTPUT_ADDR", "127.0.0.1:9001")
	t.Setenv("PYPROXY_INTERPRETER_COMMAND", "")

	cfg, err := FromEnv([]string{"worker", "/tmp/pyproxy.sock"})
	if err != nil {
		t.Fatalf("FromEnv: unexpected error %v", err)
	}
	if cfg.ControlSocketPath != "/tmp/pyproxy.sock" {
		t.Fatalf("ControlSocketPath = %q, want %q", cfg.ControlSocketPath, "/tmp/pyproxy.sock")
	}
	if cfg.OutputAddr != "127.0.0.1:9001" {
		t.Fatalf("OutputAddr = %q, want %q", cfg.OutputAddr, "127.0.0.1:9001")
	}
	if cfg.RateLimitBurst != 1 {
		t.Fatalf("RateLimitBurst = %d, want default 1", cfg.RateLimitBurst)
	}
}
