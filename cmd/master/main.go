//go:build linux

// Command master runs the pyproxy master reactor (spec §4.3): it accepts
// client and worker connections, spawns the configured worker pool, and
// dispatches client sockets to workers over descriptor passing.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"pyproxy/internal/masterd"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "master: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := masterd.FromEnv()
	if err != nil {
		logger.Fatal("master: invalid configuration", zap.Error(err))
	}

	if err := masterd.Run(cfg, logger); err != nil {
		logger.Fatal("master: fatal error", zap.Error(err))
	}
}
