package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundViper(t *testing.T, o *Options) (*viper.Viper, *pflag.FlagSet) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	v := viper.New()
	require.NoError(t, BindEnv(v, fs))
	return v, fs
}

func TestBindEnv_EnvOverridesDefault(t *testing.T) {
	o := NewOptions()
	v, _ := newBoundViper(t, o)

	t.Setenv("ENSEMBLE_PROVIDER", "claude")
	assert.Equal(t, "claude", v.Get("provider"))
}

func TestBindEnv_DottedPathUsesUnderscores(t *testing.T) {
	o := NewOptions()
	v, _ := newBoundViper(t, o)

	t.Setenv("ENSEMBLE_LOG_LEVEL", "debug")
	assert.Equal(t, "debug", v.Get("log.level"))
}

func TestBindEnv_HyphenatedPathUsesUnderscores(t *testing.T) {
	o := NewOptions()
	v, _ := newBoundViper(t, o)

	t.Setenv("ENSEMBLE_HISTORY_DB_PATH", "/tmp/custom.db")
	assert.Equal(t, "/tmp/custom.db", v.Get("history.db-path"))
}

func TestLoad_UnmarshalsResolvedViewIntoOptions(t *testing.T) {
	o := NewOptions()
	v, fs := newBoundViper(t, o)
	require.NoError(t, fs.Parse([]string{"--run.concurrency=7"}))

	out := NewOptions()
	require.NoError(t, Load(v, out))
	assert.Equal(t, 7, out.Run.Concurrency)
}

func TestBindEnv_FlagTakesPrecedenceOverDefaultWithoutEnv(t *testing.T) {
	os.Unsetenv("ENSEMBLE_PROVIDER")
	o := NewOptions()
	v, fs := newBoundViper(t, o)
	require.NoError(t, fs.Parse([]string{"--provider=codex"}))
	assert.Equal(t, "codex", v.Get("provider"))
}
