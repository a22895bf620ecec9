package origin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchalong/internal/media"
)

func storedItem(name string) media.Item {
	return media.Item{
		VideoURL:  publicURL(testPublicURL, CategoryMedia, name),
		Title:     name,
		Duration:  60,
		Available: true,
		Kind:      media.KindStored,
		Subtitles: []media.Subtitle{{URL: publicURL(testPublicURL, CategorySubtitle, name+".vtt"), Name: "Full", Language: "eng"}},
	}
}

func acquiredItem(name string, available bool) media.Item {
	return media.Item{
		VideoURL:  publicURL(testPublicURL, CategoryDownload, name),
		Title:     name,
		Duration:  30,
		Available: available,
		Kind:      media.KindAcquired,
	}
}

func TestLibrary_Merge(t *testing.T) {
	onDisk := map[string]bool{}
	downloaded := func(name string) bool { return onDisk[name] }

	lib := NewLibrary()

	t.Run("first_scan_changes", func(t *testing.T) {
		res := lib.Merge([]media.Item{storedItem("a.mp4")}, nil, downloaded)
		assert.True(t, res.Changed)
		assert.Len(t, lib.Items(), 1)
	})

	t.Run("same_scan_is_unchanged", func(t *testing.T) {
		res := lib.Merge([]media.Item{storedItem("a.mp4")}, nil, downloaded)
		assert.False(t, res.Changed)
	})

	t.Run("pending_download_is_kept", func(t *testing.T) {
		lib.Add(acquiredItem("dl.mp4", false))
		res := lib.Merge([]media.Item{storedItem("a.mp4")}, nil, downloaded)
		assert.False(t, res.Changed)
		require.Len(t, lib.Items(), 2)
		assert.False(t, lib.Allowed(CategoryDownload, "dl.mp4"))
	})

	t.Run("finished_download_becomes_available", func(t *testing.T) {
		onDisk["dl.mp4"] = true
		res := lib.Merge([]media.Item{storedItem("a.mp4")}, nil, downloaded)
		assert.True(t, res.Changed)
		items := lib.Items()
		require.Len(t, items, 2)
		assert.Equal(t, media.KindAcquired, items[0].Kind)
		assert.True(t, items[0].Available)
		assert.True(t, lib.Allowed(CategoryDownload, "dl.mp4"))
		assert.False(t, lib.Allowed(CategoryMedia, "dl.mp4"))
	})

	t.Run("deleted_download_is_dropped", func(t *testing.T) {
		delete(onDisk, "dl.mp4")
		res := lib.Merge([]media.Item{storedItem("a.mp4")}, nil, downloaded)
		assert.True(t, res.Changed)
		assert.Equal(t, []string{"dl.mp4"}, res.Dropped)
		assert.Len(t, lib.Items(), 1)
	})

	t.Run("fonts_and_subtitles_count", func(t *testing.T) {
		fonts := []string{publicURL(testPublicURL, CategorySubtitle, "Sans.ttf")}
		res := lib.Merge([]media.Item{storedItem("a.mp4")}, fonts, downloaded)
		assert.True(t, res.Changed)
		assert.True(t, lib.Allowed(CategorySubtitle, "Sans.ttf"))
		assert.True(t, lib.Allowed(CategorySubtitle, "a.mp4.vtt"))

		bare := storedItem("a.mp4")
		bare.Subtitles = nil
		res = lib.Merge([]media.Item{bare}, fonts, downloaded)
		assert.True(t, res.Changed)
		assert.False(t, lib.Allowed(CategorySubtitle, "a.mp4.vtt"))
	})

	t.Run("removed_file_leaves_allow_list", func(t *testing.T) {
		res := lib.Merge(nil, nil, downloaded)
		assert.True(t, res.Changed)
		assert.False(t, lib.Allowed(CategoryMedia, "a.mp4"))
	})
}

func TestLibrary_AddRemove(t *testing.T) {
	lib := NewLibrary()
	item := acquiredItem("x.webm", false)
	lib.Add(item)
	assert.Len(t, lib.Items(), 1)
	assert.True(t, lib.Remove(item))
	assert.False(t, lib.Remove(item))
	assert.Empty(t, lib.Items())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a b.mp4", fileName(testPublicURL+"/media/a%20b.mp4"))
	assert.Equal(t, "", fileName(""))
	assert.Equal(t, "x.vtt", fileName("http://h/subtitle/x.vtt"))
}

func TestApprover(t *testing.T) {
	a := NewApprover([]string{" Mallory ", "", "eve"})
	assert.True(t, a.Approve("alice").Accept)
	assert.False(t, a.Approve("mallory").Accept)
	assert.False(t, a.Approve("EVE").Accept)
	assert.NotEmpty(t, a.Approve("Eve").Reason)
}
