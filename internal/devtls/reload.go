package devtls

import (
	"crypto/tls"
	"fmt"
	"sync/atomic"
)

// Reloader serves a certificate loaded from disk and swaps it in place when
// Reload is called, so renewed certificates apply without a restart.
type Reloader struct {
	certFile string
	keyFile  string
	cert     atomic.Pointer[tls.Certificate]
}

// NewReloader loads the certificate pair once and returns a reloader for it.
func NewReloader(certFile, keyFile string) (*Reloader, error) {
	r := &Reloader{certFile: certFile, keyFile: keyFile}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the certificate pair again. On failure the previous
// certificate stays in use.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("loading TLS certificate: %w", err)
	}
	r.cert.Store(&cert)
	return nil
}

// CertFile returns the path of the certificate being served.
func (r *Reloader) CertFile() string {
	return r.certFile
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.cert.Load(), nil
}

// Config returns a TLS config that always serves the current certificate.
func (r *Reloader) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS13,
		NextProtos:     nextProtos,
	}
}
