package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store errors
var (
	ErrNotFound = errors.New("path does not exist")
	ErrClosed   = errors.New("store is closed")
)

// Well-known paths
const (
	PathThreshold  = "userInput/smokeThreshold"
	PathBuzzerTest = "userInput/buzzerTest"
	PathLastSeen   = "thingStat/lastSeen"
)

// Store is a key-path store. Get returns ErrNotFound when the path holds no value;
// any other error is a transport failure. Values are returned raw (JSON text).
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Set(ctx context.Context, path string, value any) error
	Close() error
}

// Options shared by the network backends
type Options struct {
	Timeout time.Duration
}

// Option configures a backend
type Option func(*Options)

// WithTimeout bounds every request made by the backend
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func resolve(opts []Option) Options {
	o := Options{Timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds the backend named by kind.
func New(kind, firebaseURL, redisAddr string, opts ...Option) (Store, error) {
	switch kind {
	case "firebase":
		return NewFirebase(firebaseURL, opts...)
	case "redis":
		return NewRedis(redisAddr, opts...), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
