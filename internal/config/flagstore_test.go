package config_test

import (
	"testing"

	"codeberg.org/mutker/packmon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagStore(t *testing.T) {
	store := config.NewFlagStore(t.TempDir())

	assert.False(t, store.IsSet(), "flag should start clear")

	require.NoError(t, store.Set())
	assert.True(t, store.IsSet(), "flag should be set after Set")

	// setting twice is idempotent
	require.NoError(t, store.Set())
	assert.True(t, store.IsSet())

	require.NoError(t, store.Clear())
	assert.False(t, store.IsSet(), "flag should be clear after Clear")

	// clearing an absent flag is not an error
	require.NoError(t, store.Clear())
}
