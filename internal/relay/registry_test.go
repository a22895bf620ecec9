package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchalong/internal/coordinator"
	"watchalong/internal/platform/logger"
)

func TestInMemoryRegistry(t *testing.T) {
	reg := NewInMemoryRegistry()
	newTestOrigin := func(name, password string) *Origin {
		link := newFakeLink(sampleInfo(name, password))
		return newOrigin(link.info, link, logger.Discard(), coordinator.Options{})
	}

	a := newTestOrigin("Den", "")
	b := newTestOrigin("Attic", "pw")
	c := newTestOrigin("Cellar", "")

	t.Run("ids_increase", func(t *testing.T) {
		assert.Equal(t, int64(1), reg.Add(a))
		assert.Equal(t, int64(2), reg.Add(b))
		assert.Equal(t, int64(3), reg.Add(c))
		assert.Equal(t, 3, reg.Count())
	})

	t.Run("list_is_ordered", func(t *testing.T) {
		list := reg.List()
		require.Len(t, list, 3)
		assert.Equal(t, []string{"Den", "Attic", "Cellar"}, []string{list[0].Name, list[1].Name, list[2].Name})
		assert.True(t, list[1].HasPassword)
	})

	t.Run("viewer_counts", func(t *testing.T) {
		require.NoError(t, a.coord.AddViewer("v1", "alice"))
		require.NoError(t, c.coord.AddViewer("v2", "bob"))
		assert.Equal(t, 2, reg.ViewerCount())
		assert.Equal(t, 1, reg.List()[0].UserCount)
	})

	t.Run("removed_ids_are_not_reused", func(t *testing.T) {
		got, ok := reg.Remove(2)
		require.True(t, ok)
		assert.Same(t, b, got)

		_, ok = reg.Remove(2)
		assert.False(t, ok)

		d := newTestOrigin("Loft", "")
		assert.Equal(t, int64(4), reg.Add(d))
		_, ok = reg.Get(2)
		assert.False(t, ok)
	})
}

func TestOrigin_CheckPassword(t *testing.T) {
	open := &Origin{}
	assert.True(t, open.CheckPassword("anything"))

	locked := &Origin{Password: "pw"}
	assert.True(t, locked.CheckPassword("pw"))
	assert.False(t, locked.CheckPassword(""))
	assert.False(t, locked.CheckPassword("PW"))
}

func TestRoom_ClosedRejectsAdd(t *testing.T) {
	r := &Room{}
	r.close(1)
	assert.False(t, r.add(&Conn{}))
	assert.Zero(t, r.Len())
}
