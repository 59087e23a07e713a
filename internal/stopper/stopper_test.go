package stopper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldStop(t *testing.T) {
	store := NewStore()

	require.False(t, store.ShouldStop("alpha", "hunt"))
	require.False(t, store.ShouldStop("alpha", "hunt"))
	require.Equal(t, []string{"hunt"}, store.Running("alpha"))

	require.True(t, store.RequestStop("alpha", "hunt"))
	require.True(t, store.ShouldStop("alpha", "hunt"))
	require.Empty(t, store.Running("alpha"))

	// the stop was consumed, the next run starts clean
	require.False(t, store.ShouldStop("alpha", "hunt"))
}

func TestRequestStopUnknown(t *testing.T) {
	store := NewStore()

	require.False(t, store.RequestStop("alpha", "hunt"))
	require.False(t, store.ShouldStop("alpha", "hunt"))
}

func TestOperationsAreIndependent(t *testing.T) {
	store := NewStore()

	store.ShouldStop("alpha", "hunt")
	store.ShouldStop("alpha", "watch")
	store.ShouldStop("secura", "hunt")

	require.True(t, store.RequestStop("alpha", "hunt"))

	require.False(t, store.ShouldStop("alpha", "watch"))
	require.False(t, store.ShouldStop("secura", "hunt"))
	require.True(t, store.ShouldStop("alpha", "hunt"))
	require.Equal(t, []string{"watch"}, store.Running("alpha"))
}
