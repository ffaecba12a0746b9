package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	g := New()

	_, err := g.Register("/opt/plugins/foo", true)
	require.NoError(t, err)

	_, err = g.Register("/opt/plugins/foo", true)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestSnapshotOrder(t *testing.T) {
	t.Parallel()

	g := New()
	paths := []string{"/opt/plugins/c", "/opt/plugins/a", "/opt/plugins/b"}
	for _, p := range paths {
		_, err := g.Register(p, true)
		require.NoError(t, err)
	}

	// Registration order, not sorted, and stable across repeated calls.
	for range 3 {
		snap := g.Snapshot()
		require.Len(t, snap, len(paths))
		for i, rec := range snap {
			assert.Equal(t, paths[i], rec.Path())
		}
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	g := New()
	rec, err := g.Register("/opt/plugins/foo", true)
	require.NoError(t, err)

	tests := []struct {
		name       string
		identifier string
		want       *Record
	}{
		{name: "exact path", identifier: "/opt/plugins/foo", want: rec},
		{name: "basename", identifier: "foo", want: rec},
		{name: "different path same basename", identifier: "/elsewhere/foo", want: nil},
		{name: "unknown name", identifier: "bar", want: nil},
		{name: "prefix does not match", identifier: "fo", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Same(t, tt.want, g.Find(tt.identifier), "identifier %q", tt.identifier)
		})
	}
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	g := New()
	rec, err := g.Register("/opt/plugins/foo", true)
	require.NoError(t, err)
	assert.Equal(t, StateStarting, rec.State())

	rec.Activate()
	assert.Equal(t, StateActive, rec.State())
	assert.Equal(t, 1, g.ActiveCount())

	g.Kill(rec, "test")
	assert.Equal(t, StateKilled, rec.State())
	assert.Empty(t, g.Snapshot())
	assert.Equal(t, 0, g.ActiveCount())

	// A killed record does not reactivate.
	rec.Activate()
	assert.Equal(t, StateKilled, rec.State())
}

func TestRemoveRollsBackRegistration(t *testing.T) {
	t.Parallel()

	g := New()
	rec, err := g.Register("/opt/plugins/foo", true)
	require.NoError(t, err)

	g.Remove(rec)
	assert.Nil(t, g.Find("foo"))

	// The path is free again after removal.
	_, err = g.Register("/opt/plugins/foo", true)
	assert.NoError(t, err)
}

func TestDowngrade(t *testing.T) {
	t.Parallel()

	g := New()
	rec, err := g.Register("/opt/plugins/foo", true)
	require.NoError(t, err)
	assert.True(t, rec.Dynamic())

	rec.Downgrade()
	assert.False(t, rec.Dynamic())
}
