package agent

import (
	"testing"

	"github.com/cadenzalabs/ensemble/internal/piece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	err := r.Register("mock", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	require.NoError(t, err)

	a, err := r.Build("mock", Spec{Name: "mock"})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestRegistry_DuplicateRegisterErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("mock", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil }))
	err := r.Register("mock", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	assert.Error(t, err)
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("mock", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	assert.Panics(t, func() {
		r.MustRegister("mock", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	})
}

func TestRegistry_BuildUnknownProviderErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("nope", Spec{})
	assert.Error(t, err)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("a", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	r.MustRegister("b", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	assert.ElementsMatch(t, []string{"a", "b"}, r.List())
}

func TestDefault_RegistersBuiltinProviders(t *testing.T) {
	r := Default()
	assert.ElementsMatch(t, []string{"claude", "codex", "mock"}, r.List())

	a, err := r.Build("mock", Spec{})
	require.NoError(t, err)
	assert.NotNil(t, a)
}
