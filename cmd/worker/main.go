//go:build linux

// Command worker runs the pyproxy worker reactor (spec §4.4): it dials the
// master's UNIX control socket, receives client file descriptors, and
// dispatches decoded requests to an interpreter thread.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"pyproxy/internal/workerd"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := workerd.FromEnv(os.Args)
	if err != nil {
		logger.Fatal("worker: invalid configuration", zap.Error(err))
	}

	if err := workerd.Run(cfg, logger); err != nil {
		logger.Fatal("worker: fatal error", zap.Error(err))
	}
}
