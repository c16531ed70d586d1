package configutils

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// EnvBinding names a configuration struct whose keys, under Key, may be set
// from the environment.
type EnvBinding struct {
	Key    string
	Target any
}

// ViperOptions configures NewViper.
type ViperOptions struct {
	// EnvPrefix prefixes environment variables; "storage.retry.max_attempts"
	// becomes PREFIX_STORAGE_RETRY_MAX_ATTEMPTS.
	EnvPrefix string
	// ConfigFile is optional; without it configuration comes from the
	// environment alone.
	ConfigFile string
	// Flags, when set, has its "debug" flag bound to the "debug" key.
	Flags    *pflag.FlagSet
	Bindings []EnvBinding
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
}

// NewViper creates a viper instance reading the environment and, if given,
// the configuration file with its imports.
func NewViper(opts ViperOptions) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		if flag := opts.Flags.Lookup("debug"); flag != nil {
			if err := v.BindPFlag("debug", flag); err != nil {
				return nil, fmt.Errorf("can't bind debug flag: %w", err)
			}
		}
	}

	for _, b := range opts.Bindings {
		if err := BindEnvs(v, b.Key, b.Target); err != nil {
			return nil, err
		}
	}

	if opts.ConfigFile != "" {
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		if err := ResolveAndMergeFileFs(fs, v, opts.ConfigFile); err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
	}

	// UnmarshalKey only sees file and override values, so copy every key
	// that is set, from whatever source, into the overrides.
	for _, key := range v.AllKeys() {
		if v.IsSet(key) {
			v.Set(key, v.Get(key))
		}
	}
	return v, nil
}

// ProvideViper provides the *viper.Viper built by NewViper.
func ProvideViper(opts ViperOptions) fx.Option {
	return fx.Provide(func() (*viper.Viper, error) {
		return NewViper(opts)
	})
}
