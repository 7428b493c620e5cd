package config

import (
	"errors"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.Mutex
	cache   = map[reflect.Type]any{}
)

// Option adjusts how a config struct is parsed.
type Option func(*options)

type options struct {
	envFiles    []string
	environment map[string]string
	prefix      string
}

// WithEnvFiles loads the given dotenv files before parsing. Missing files are
// skipped and variables already set in the process win.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) { o.envFiles = append(o.envFiles, paths...) }
}

// WithEnvironment parses from vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

// WithPrefix prepends prefix to every env tag, e.g. "BIYPOD_".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// Parse fills v from the environment using `env` and `envDefault` struct tags.
// The .env file in the working directory is read once per process.
func Parse[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dotenvOnce.Do(func() { _ = godotenv.Load() })
	for _, path := range o.envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Join(ErrParsingConfig, err)
		}
	}

	if err := env.ParseWithOptions(v, env.Options{
		Environment: o.environment,
		Prefix:      o.prefix,
	}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// Load parses T once per process and returns the cached copy afterwards.
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}
	key := reflect.TypeFor[T]()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}
	if err := Parse(v, opts...); err != nil {
		return err
	}
	cache[key] = *v
	return nil
}

// MustLoad is Load that panics on failure, for process start-up.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(err)
	}
}
