//go:build !windows

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/latebit/wikihop/internal/devtls"
)

// startCertReloader reloads the TLS certificate from disk on SIGHUP.
func startCertReloader(r *devtls.Reloader, logger *slog.Logger) {
	sighupChan := make(chan os.Signal, 1)
	signal.Notify(sighupChan, syscall.SIGHUP)
	go func() {
		for range sighupChan {
			if err := r.Reload(); err != nil {
				logger.Error("tls: certificate reload failed", "error", err)
			} else {
				logger.Info("tls: certificate reloaded", "cert", r.CertFile())
			}
		}
	}()
}
