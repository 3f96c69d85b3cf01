package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Store   StoreConfig   `mapstructure:"store"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

type GatewayConfig struct {
	Host           string        `mapstructure:"host"`
	Token          string        `mapstructure:"token"`
	BasicAuth      string        `mapstructure:"basic_auth"`
	HTTP           bool          `mapstructure:"http"`
	SSLVerify      bool          `mapstructure:"ssl_verify"`
	SSLCABundle    string        `mapstructure:"ssl_ca_bundle"`
	MaxQueueSize   int           `mapstructure:"max_queue_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Backoff        BackoffConfig `mapstructure:"backoff"`
}

type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"`
}

type StoreConfig struct {
	RedisAddr  string        `mapstructure:"redis_addr"`
	CommandTTL time.Duration `mapstructure:"command_ttl"`
}

type OpsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TraceConfig turns on dispatch spans. Finished spans are written to the
// log at debug level.
type TraceConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			SSLVerify:      true,
			MaxQueueSize:   100,
			ConnectTimeout: 120 * time.Second,
			WriteTimeout:   10 * time.Second,
			Backoff: BackoffConfig{
				Initial:    time.Second,
				Max:        time.Minute,
				Multiplier: 2,
			},
		},
		Store: StoreConfig{
			CommandTTL: 24 * time.Hour,
		},
		Ops: OpsConfig{
			ListenAddr: ":9100",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Trace: TraceConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads an optional HuJSON file and applies environment overrides.
// Each key maps to its upper-cased, underscore-joined name, so gateway.token
// is overridden by GATEWAY_TOKEN and store.redis_addr by STORE_REDIS_ADDR.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
		content, err = hujson.Standardize(content)
		if err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}
	cfg.Gateway.Host = strings.TrimSuffix(cfg.Gateway.Host, "/")
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("gateway.host", d.Gateway.Host)
	v.SetDefault("gateway.token", d.Gateway.Token)
	v.SetDefault("gateway.basic_auth", d.Gateway.BasicAuth)
	v.SetDefault("gateway.http", d.Gateway.HTTP)
	v.SetDefault("gateway.ssl_verify", d.Gateway.SSLVerify)
	v.SetDefault("gateway.ssl_ca_bundle", d.Gateway.SSLCABundle)
	v.SetDefault("gateway.max_queue_size", d.Gateway.MaxQueueSize)
	v.SetDefault("gateway.connect_timeout", d.Gateway.ConnectTimeout)
	v.SetDefault("gateway.write_timeout", d.Gateway.WriteTimeout)
	v.SetDefault("gateway.backoff.initial", d.Gateway.Backoff.Initial)
	v.SetDefault("gateway.backoff.max", d.Gateway.Backoff.Max)
	v.SetDefault("gateway.backoff.multiplier", d.Gateway.Backoff.Multiplier)
	v.SetDefault("gateway.backoff.jitter", d.Gateway.Backoff.Jitter)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.command_ttl", d.Store.CommandTTL)
	v.SetDefault("ops.listen_addr", d.Ops.ListenAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("trace.enabled", d.Trace.Enabled)
	v.SetDefault("trace.sample_ratio", d.Trace.SampleRatio)
}

func (c Config) Validate() error {
	var errs []error
	if c.Gateway.Host == "" {
		errs = append(errs, errors.New("gateway.host is required"))
	}
	if c.Gateway.Token == "" {
		errs = append(errs, errors.New("gateway.token is required"))
	}
	if c.Gateway.MaxQueueSize < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_queue_size must not be negative, got %d", c.Gateway.MaxQueueSize))
	}
	if c.Gateway.BasicAuth != "" && !strings.Contains(c.Gateway.BasicAuth, ":") {
		errs = append(errs, errors.New("gateway.basic_auth must look like user:password"))
	}
	if c.Gateway.Backoff.Multiplier != 0 && c.Gateway.Backoff.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("gateway.backoff.multiplier must be at least 1, got %g", c.Gateway.Backoff.Multiplier))
	}
	if c.Gateway.Backoff.Jitter < 0 || c.Gateway.Backoff.Jitter > 1 {
		errs = append(errs, fmt.Errorf("gateway.backoff.jitter must be within [0, 1], got %g", c.Gateway.Backoff.Jitter))
	}
	if c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace.sample_ratio must be within [0, 1], got %g", c.Trace.SampleRatio))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
