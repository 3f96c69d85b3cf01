package reconnect

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/HsiangNianian/AMonItor/gateway/internal/ws"
)

type Class int

const (
	Fatal Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Verdict is the classification of one failed attempt. Cause is a short
// label for logs and metrics.
type Verdict struct {
	Class Class
	Cause string
}

// Classify decides whether a connection failure is worth another attempt.
// Rejected credentials, TLS verification failures and unexpected handshake
// statuses are fatal; transient server statuses and network trouble are not.
func Classify(err error) Verdict {
	if err == nil {
		return Verdict{Class: Retryable, Cause: "none"}
	}

	var hsErr *ws.HandshakeError
	if errors.As(err, &hsErr) {
		return classifyStatus(hsErr.StatusCode)
	}

	if errors.Is(err, ws.ErrConnectionClosed) {
		return Verdict{Class: Retryable, Cause: "connection closed"}
	}

	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	var verifyErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostname) ||
		errors.As(err, &invalidCert) || errors.As(err, &verifyErr) || errors.As(err, &recordErr) {
		return Verdict{Class: Fatal, Cause: "tls"}
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return Verdict{Class: Retryable, Cause: "connection refused"}
	case errors.Is(err, context.DeadlineExceeded):
		return Verdict{Class: Retryable, Cause: "timeout"}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		return Verdict{Class: Retryable, Cause: "connection reset"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Verdict{Class: Retryable, Cause: "timeout"}
		}
		return Verdict{Class: Retryable, Cause: "network"}
	}
	return Verdict{Class: Fatal, Cause: "unexpected"}
}

func classifyStatus(code int) Verdict {
	cause := fmt.Sprintf("http %d", code)
	switch {
	case code == http.StatusNotFound,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= 500 && code <= 599:
		return Verdict{Class: Retryable, Cause: cause}
	}
	return Verdict{Class: Fatal, Cause: cause}
}
