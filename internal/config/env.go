package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix giving exactly the
// ENSEMBLE_<UPPER_SNAKE_PATH> override semantics spec.md §6 describes for
// TAKT_*, renamed to this module's own namespace.
const EnvPrefix = "ENSEMBLE"

// BindEnv wires viper's env overlay and pflag binding: for any option
// path, ENSEMBLE_<UPPER_SNAKE_PATH> replaces the bound value, with
// boolean-string coercion handled natively by viper/cast.
func BindEnv(v *viper.Viper, fs *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(fs)
}

// Load populates opts by unmarshalling v's resolved view (flags, env,
// config file, in that precedence) into it.
func Load(v *viper.Viper, opts *Options) error {
	return v.Unmarshal(opts)
}
