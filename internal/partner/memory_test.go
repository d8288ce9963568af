package partner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetAndList(t *testing.T) {
	store := NewMemoryStore([]*Record{
		{ID: "PART01", DisplayName: "Partner One", Enabled: true, AllowedAccess: AccessReadWrite},
		{ID: "PART02", DisplayName: "Partner Two", Enabled: false, AllowedAccess: AccessRead},
	})

	r, err := store.Get("PART01")
	require.NoError(t, err)
	assert.Equal(t, "Partner One", r.DisplayName)

	_, err = store.Get("MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := store.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreReloadIsAtomic(t *testing.T) {
	store := NewMemoryStore([]*Record{{ID: "PART01", Enabled: true}})
	store.Reload([]*Record{{ID: "PART02", Enabled: true}})

	_, err := store.Get("PART01")
	assert.ErrorIs(t, err, ErrNotFound)

	r, err := store.Get("PART02")
	require.NoError(t, err)
	assert.True(t, r.Enabled)
}
