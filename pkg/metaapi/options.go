package metaapi

import (
	"time"

	"github.com/marceluphd/metaapi-go-sdk/internal/config"
)

// Defaults for fields left unset on Options.
const (
	DefaultApplication    = "MetaApi"
	DefaultDomain         = "agiliumtrade.agiliumtrade.ai"
	DefaultRequestTimeout = 60 * time.Second
	DefaultConnectTimeout = 60 * time.Second
)

// Options configures a Client at construction.
type Options struct {
	// Token is the bearer credential appended as the auth-token query
	// parameter. Required.
	Token string `env:"METAAPI_TOKEN"`

	// Application is stamped on every outbound request.
	Application string `env:"METAAPI_APPLICATION" envDefault:"MetaApi"`

	// Domain is interpolated into the gateway base URL.
	Domain string `env:"METAAPI_DOMAIN" envDefault:"agiliumtrade.agiliumtrade.ai"`

	// RequestTimeout is the default per-RPC deadline, used when a call
	// doesn't supply its own.
	RequestTimeout time.Duration `env:"METAAPI_REQUEST_TIMEOUT" envDefault:"60s"`

	// ConnectTimeout bounds the socket's initial connect attempt.
	ConnectTimeout time.Duration `env:"METAAPI_CONNECT_TIMEOUT" envDefault:"60s"`
}

// withDefaults fills any zero-valued field with its package default.
func (o Options) withDefaults() Options {
	if o.Application == "" {
		o.Application = DefaultApplication
	}
	if o.Domain == "" {
		o.Domain = DefaultDomain
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}

func (o Options) baseURL() string {
	return "https://mt-client-api-v1." + o.Domain
}

// LoadOptionsFromEnv reads Options from the process environment (the
// METAAPI_* variables above), falling back to their envDefault tags for
// anything unset.
func LoadOptionsFromEnv() (Options, error) {
	return config.Load[Options]()
}
