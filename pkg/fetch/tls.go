package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math"
	"net"
	"time"
)

const (
	tlsProbeTimeout = 10 * time.Second

	// expiringWithin marks a certificate as expiring.
	expiringWithin = 30 * 24 * time.Hour
)

// Certificate states reported by ProbeTLS.
const (
	CertValid       = "valid"
	CertExpiring    = "expiring"
	CertExpired     = "expired"
	CertUntrusted   = "untrusted"
	CertUnreachable = "unreachable"
)

// CertStatus describes the upstream's leaf certificate as the fetcher sees it.
type CertStatus struct {
	Status   string `json:"status"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"` // RFC3339
	DaysLeft int    `json:"days_left"`
	Error    string `json:"error,omitempty"`
}

// ProbeTLS handshakes with the upstream using the fetcher's own TLS config,
// client certificate and CA pool included, so a failure here is the failure
// Fetch would hit. It returns nil for plain http endpoints.
func (h *HTTP) ProbeTLS(ctx context.Context) *CertStatus {
	if h.endpoint.Scheme != "https" {
		return nil
	}
	host := h.endpoint.Host
	if h.endpoint.Port() == "" {
		host = net.JoinHostPort(h.endpoint.Hostname(), "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, tlsProbeTimeout)
	defer cancel()

	cfg := h.tlsCfg.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = h.endpoint.Hostname()
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	conn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		status := CertUnreachable
		if isVerifyError(err) {
			status = CertUntrusted
		}
		return &CertStatus{Status: status, Error: err.Error()}
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return &CertStatus{Status: CertUnreachable, Error: "no peer certificate"}
	}
	return certStatus(certs[0], h.now())
}

// certStatus classifies leaf by its expiry relative to now.
func certStatus(leaf *x509.Certificate, now time.Time) *CertStatus {
	left := leaf.NotAfter.Sub(now)
	cs := &CertStatus{
		Issuer:   leaf.Issuer.CommonName,
		NotAfter: leaf.NotAfter.UTC().Format(time.RFC3339),
		DaysLeft: int(math.Floor(left.Hours() / 24)),
	}
	switch {
	case left <= 0:
		cs.Status = CertExpired
	case left <= expiringWithin:
		cs.Status = CertExpiring
	default:
		cs.Status = CertValid
	}
	return cs
}

func isVerifyError(err error) bool {
	var (
		verify   *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		invalid  x509.CertificateInvalidError
		hostname x509.HostnameError
	)
	return errors.As(err, &verify) || errors.As(err, &unknown) ||
		errors.As(err, &invalid) || errors.As(err, &hostname)
}
