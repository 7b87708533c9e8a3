//go:build windows

package main

import (
	"log/slog"

	"github.com/latebit/wikihop/internal/devtls"
)

func startCertReloader(_ *devtls.Reloader, _ *slog.Logger) {
	// SIGHUP is not available on Windows. Certificate reload requires a server restart.
}
