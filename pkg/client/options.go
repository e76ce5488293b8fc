package client

import "time"

// Options configure the engine client. Executions run their whole handler
// chain synchronously before the server answers, so the default timeout is
// generous.
type Options struct {
	ignoreTLSCert bool
	APIKey        string
	Timeout       time.Duration
}

type Option func(*Options) error

// IgnoreTLSCert skips server certificate verification, for engines deployed
// behind a self-signed certificate.
func IgnoreTLSCert() Option {
	return func(o *Options) error {
		o.ignoreTLSCert = true
		return nil
	}
}

// APIKey sets the key sent as the Authorization bearer token on every request.
func APIKey(key string) Option {
	return func(o *Options) error {
		o.APIKey = key
		return nil
	}
}

// Timeout bounds a full request round-trip, including the server-side
// fallback cascade. The default is 2 minutes.
func Timeout(timeout time.Duration) Option {
	return func(o *Options) error {
		o.Timeout = timeout
		return nil
	}
}

func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		Timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
