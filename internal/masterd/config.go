// Package masterd implements the master reactor (spec §4.3): it accepts
// client main-stream and output-channel connections, dispatches client
// sockets to worker processes over descriptor-passing, and demultiplexes
// worker stdout/stderr back to the session that produced it.
package masterd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the master binary's environment-driven configuration (spec §6
// "External Interfaces").
type Config struct {
	// BindAddr is the main client-facing listener address, read from
	// PYPROXY_BIND_ADDR, default "0.0.0.0:9000" (spec §6).
	BindAddr string
	// OutputAddr is the output-channel listener address, read from
	// PYPROXY_OUTPUT_ADDR, default "0.0.0.0:9001" (spec §6), and also the
	// value reported to clients during handshake and to workers via
	// MYSTIC_OUTPUT_ADDR.
	OutputAddr string
	// NumWorkers is the worker pool size, read from PYPROXY_NUM_WORKERS,
	// default 3.
	NumWorkers int
	// DispatchStrategy names the WorkerBalancer to use, read from
	// PYPROXY_DISPATCH_STRATEGY, default "roundrobin" (spec §8 "Round-robin
	// fairness"; the other strategies are a supplemented feature).
	DispatchStrategy string
	// ControlSocketDir is the directory holding the UNIX control socket,
	// ${RUNDIR}/${MASTER_PID} per spec §4.3. ControlSocketPath joins this
	// with the fixed "pyproxy.sock" name.
	ControlSocketDir string
	// WorkerBinaryPath is derived from the master's own executable
	// directory plus "/worker" (spec §6), never independently configured.
	WorkerBinaryPath string
	// AdmissionRatePerSecond/AdmissionBurst bound the rate of accepted
	// main-stream connections (supplemented feature, see SPEC_FULL.md).
	// Zero AdmissionRatePerSecond disables the controller entirely.
	AdmissionRatePerSecond float64
	AdmissionBurst         int
}

// Default listener addresses when PYPROXY_BIND_ADDR/PYPROXY_OUTPUT_ADDR are
// unset, matching the original's Config::default (spec §6).
const (
	defaultBindAddr   = "0.0.0.0:9000"
	defaultOutputAddr = "0.0.0.0:9001"
)

// ControlSocketPath returns the full UNIX control socket path.
func (c Config) ControlSocketPath() string {
	return filepath.Join(c.ControlSocketDir, "pyproxy.sock")
}

// FromEnv reads master configuration from the environment and the running
// executable's own location, per spec §6.
func FromEnv() (Config, error) {
	cfg := Config{
		BindAddr:         defaultBindAddr,
		OutputAddr:       defaultOutputAddr,
		NumWorkers:       3,
		DispatchStrategy: os.Getenv("PYPROXY_DISPATCH_STRATEGY"),
		AdmissionBurst:   1,
	}
	if v := os.Getenv("PYPROXY_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("PYPROXY_OUTPUT_ADDR"); v != "" {
		cfg.OutputAddr = v
	}
	if r := os.Getenv("PYPROXY_ADMISSION_RATE"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		if err != nil || parsed < 0 {
			return Config{}, fmt.Errorf("masterd: invalid PYPROXY_ADMISSION_RATE %q", r)
		}
		cfg.AdmissionRatePerSecond = parsed
	}
	if b := os.Getenv("PYPROXY_ADMISSION_BURST"); b != "" {
		parsed, err := strconv.Atoi(b)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("masterd: invalid PYPROXY_ADMISSION_BURST %q", b)
		}
		cfg.AdmissionBurst = parsed
	}
	if cfg.DispatchStrategy == "" {
		cfg.DispatchStrategy = "roundrobin"
	}
	if n := os.Getenv("PYPROXY_NUM_WORKERS"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("masterd: invalid PYPROXY_NUM_WORKERS %q", n)
		}
		cfg.NumWorkers = parsed
	}

	runDir := os.Getenv("RUNDIR")
	if runDir == "" {
		runDir = os.TempDir()
	}
	cfg.ControlSocketDir = filepath.Join(runDir, strconv.Itoa(os.Getpid()))

	exe, err := os.Executable()
	if err != nil {
		return Config{}, fmt.Errorf("masterd: resolving own executable path: %w", err)
	}
	cfg.WorkerBinaryPath = filepath.Join(filepath.Dir(exe), "worker")

	return cfg, nil
}
