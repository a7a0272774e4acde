// Package config implements the option-loading, env-overlay, piece-YAML
// loading, and project-scoped session cache surfaces that sit outside the
// piece engine proper (spec.md §1's "YAML configuration loading...the
// engine receives an already-normalized PieceConfig" boundary).
package config

import (
	"encoding/json"

	"github.com/spf13/pflag"
)

// Language is the engine-recognized InstructionBuilder header language.
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageJapanese Language = "ja"
)

// PieceOptions holds the piece-selection and iteration defaults.
type PieceOptions struct {
	DefaultPiece        string   `json:"default-piece" mapstructure:"default-piece"`
	DisabledBuiltins    []string `json:"disabled-builtins" mapstructure:"disabled-builtins"`
	EnableBuiltinPieces bool     `json:"enable-builtin-pieces" mapstructure:"enable-builtin-pieces"`
}

func NewPieceOptions() *PieceOptions {
	return &PieceOptions{EnableBuiltinPieces: true}
}

func (o *PieceOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DefaultPiece, "piece.default-piece", o.DefaultPiece, "Name of the piece to run when none is given explicitly.")
	fs.StringSliceVar(&o.DisabledBuiltins, "piece.disabled-builtins", o.DisabledBuiltins, "Builtin piece names the loader must ignore.")
	fs.BoolVar(&o.EnableBuiltinPieces, "piece.enable-builtin-pieces", o.EnableBuiltinPieces, "Toggle the builtin piece library.")
}

// ProviderOptions holds provider/model selection defaults.
type ProviderOptions struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`
}

func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{Provider: "mock"}
}

func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Provider, "provider", o.Provider, "Default agent provider: claude, codex, or mock.")
	fs.StringVar(&o.Model, "model", o.Model, "Default model for the selected provider.")
}

// LogOptions holds pkg/logger configuration.
type LogOptions struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

func NewLogOptions() *LogOptions {
	return &LogOptions{Level: "info", Format: "text"}
}

func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Log level: debug, info, warn, error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log format: text or json.")
}

// HistoryOptions holds internal/history store configuration.
type HistoryOptions struct {
	DBPath string `json:"db-path" mapstructure:"db-path"`
}

func NewHistoryOptions() *HistoryOptions {
	return &HistoryOptions{DBPath: ".ensemble/history.db"}
}

func (o *HistoryOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DBPath, "history.db-path", o.DBPath, "Path to the boltdb run-history database.")
}

// ServerOptions holds internal/server (inspection HTTP surface) configuration.
type ServerOptions struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

func NewServerOptions() *ServerOptions {
	return &ServerOptions{Addr: "127.0.0.1:8761"}
}

func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "server.addr", o.Addr, "Listen address for the inspection HTTP surface.")
}

// RunOptions holds process-wrapper concerns the engine itself does not
// consume, named in spec.md §6's configuration surface for completeness
// (`concurrency`, `prevent_sleep`, `notification_sound`, `minimal_output`).
type RunOptions struct {
	Concurrency        int  `json:"concurrency" mapstructure:"concurrency"`
	PreventSleep       bool `json:"prevent-sleep" mapstructure:"prevent-sleep"`
	NotificationSound  bool `json:"notification-sound" mapstructure:"notification-sound"`
	MinimalOutput      bool `json:"minimal-output" mapstructure:"minimal-output"`
}

func NewRunOptions() *RunOptions {
	return &RunOptions{Concurrency: 1}
}

func (o *RunOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Concurrency, "run.concurrency", o.Concurrency, "Concurrency setting for parallel sub-movements (1-10); recorded only, parallel children all start at once.")
	fs.BoolVar(&o.PreventSleep, "run.prevent-sleep", o.PreventSleep, "Sleep-prevention setting; recorded only, no sleep prevention is performed.")
	fs.BoolVar(&o.NotificationSound, "run.notification-sound", o.NotificationSound, "Notification-sound setting; recorded only, no sound is played.")
	fs.BoolVar(&o.MinimalOutput, "run.minimal-output", o.MinimalOutput, "Suppress streaming display (NDJSON logging is unaffected).")
}

// Options is the full option tree bound by the cobra root command.
type Options struct {
	Language Language `json:"language" mapstructure:"language"`

	Piece    *PieceOptions    `json:"piece" mapstructure:"piece"`
	Provider *ProviderOptions `json:"provider" mapstructure:",squash"`
	Log      *LogOptions      `json:"log" mapstructure:"log"`
	History  *HistoryOptions  `json:"history" mapstructure:"history"`
	Server   *ServerOptions   `json:"server" mapstructure:"server"`
	Run      *RunOptions      `json:"run" mapstructure:"run"`
}

// NewOptions builds an Options tree with every section's defaults filled
// in.
func NewOptions() *Options {
	return &Options{
		Language: LanguageEnglish,
		Piece:    NewPieceOptions(),
		Provider: NewProviderOptions(),
		Log:      NewLogOptions(),
		History:  NewHistoryOptions(),
		Server:   NewServerOptions(),
		Run:      NewRunOptions(),
	}
}

// AddFlags registers every section's flags on fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar((*string)(&o.Language), "language", string(o.Language), "InstructionBuilder header language: en or ja.")
	o.Piece.AddFlags(fs)
	o.Provider.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.History.AddFlags(fs)
	o.Server.AddFlags(fs)
	o.Run.AddFlags(fs)
}

func (o *Options) String() string {
	data, _ := json.MarshalIndent(o, "", "  ")
	return string(data)
}
