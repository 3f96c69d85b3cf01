package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/HsiangNianian/AMonItor/gateway/internal/queue"
	"github.com/HsiangNianian/AMonItor/gateway/internal/reconnect"
	"github.com/HsiangNianian/AMonItor/gateway/internal/store"
	"github.com/HsiangNianian/AMonItor/gateway/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxQueueSize = queue.DefaultCapacity
	DefaultCommandTTL   = 24 * time.Hour

	apiPath = "/gateway_api/v1.0"
)

// Backoff shapes the wait between reconnection attempts.
type Backoff = reconnect.Backoff

// Ledger remembers which commands were already handed to the command
// handler and the last state reported for each.
type Ledger = store.Store

type Options struct {
	// Host is the platform host, optionally with a port, e.g.
	// "app.example.com" or "127.0.0.1:3000".
	Host  string
	Token string
	// BasicAuth is "user:password" for deployments behind HTTP basic auth.
	BasicAuth string
	// HTTP selects ws:// and http:// instead of the TLS schemes.
	HTTP bool
	// SSLVerify enables certificate verification against the system roots,
	// or against CABundle when it is set.
	SSLVerify bool
	CABundle  string

	// MaxQueueSize bounds the outbound queue used while disconnected. Zero
	// selects DefaultMaxQueueSize; a negative value disables queueing.
	MaxQueueSize int

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	Backoff        Backoff

	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	// Ledger defaults to an in-memory store.
	Ledger     Ledger
	CommandTTL time.Duration
}

func (o Options) queueSize() int {
	switch {
	case o.MaxQueueSize == 0:
		return DefaultMaxQueueSize
	case o.MaxQueueSize < 0:
		return 0
	default:
		return o.MaxQueueSize
	}
}

func (o Options) endpoint() string {
	scheme := "wss://"
	if o.HTTP {
		scheme = "ws://"
	}
	return scheme + strings.TrimSuffix(o.Host, "/") + apiPath
}

func (o Options) baseURL() string {
	scheme := "https://"
	if o.HTTP {
		scheme = "http://"
	}
	return scheme + strings.TrimSuffix(o.Host, "/")
}

func (o Options) header() http.Header {
	h := http.Header{}
	h.Set("X-Gateway-Token", o.Token)
	if o.BasicAuth != "" {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(o.BasicAuth)))
	}
	return h
}

// tlsConfig returns nil for plain connections.
func (o Options) tlsConfig() (*tls.Config, error) {
	if o.HTTP {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if !o.SSLVerify {
		cfg.InsecureSkipVerify = true
		return cfg, nil
	}
	if o.CABundle == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(o.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA bundle %s holds no PEM certificates", o.CABundle)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func (o Options) sessionOptions(tlsConfig *tls.Config) ws.Options {
	return ws.Options{
		URL:              o.endpoint(),
		Header:           o.header(),
		TLSConfig:        tlsConfig,
		HandshakeTimeout: o.ConnectTimeout,
		WriteTimeout:     o.WriteTimeout,
		ReadLimit:        o.ReadLimit,
	}
}
