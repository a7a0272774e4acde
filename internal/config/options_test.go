package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestNewOptions_DefaultsFilledIn(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, LanguageEnglish, o.Language)
	assert.True(t, o.Piece.EnableBuiltinPieces)
	assert.Equal(t, "mock", o.Provider.Provider)
	assert.Equal(t, "info", o.Log.Level)
	assert.Equal(t, "text", o.Log.Format)
	assert.Equal(t, ".ensemble/history.db", o.History.DBPath)
	assert.Equal(t, "127.0.0.1:8761", o.Server.Addr)
	assert.Equal(t, 1, o.Run.Concurrency)
}

func TestOptions_AddFlags_RegistersEverySection(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	for _, name := range []string{
		"language",
		"piece.default-piece",
		"piece.disabled-builtins",
		"piece.enable-builtin-pieces",
		"provider",
		"model",
		"log.level",
		"log.format",
		"history.db-path",
		"server.addr",
		"run.concurrency",
		"run.prevent-sleep",
		"run.notification-sound",
		"run.minimal-output",
	} {
		assert.NotNil(t, fs.Lookup(name), "expected flag %q to be registered", name)
	}
}

func TestOptions_AddFlags_OverridesDefaults(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require := func(err error) {
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}
	}
	require(fs.Parse([]string{"--provider=claude", "--run.concurrency=4"}))
	assert.Equal(t, "claude", o.Provider.Provider)
	assert.Equal(t, 4, o.Run.Concurrency)
}

func TestOptions_String_ProducesJSON(t *testing.T) {
	o := NewOptions()
	s := o.String()
	assert.Contains(t, s, `"language"`)
	assert.Contains(t, s, `"provider"`)
}
