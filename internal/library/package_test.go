package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() *Metadata {
	created := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return &Metadata{
		ID:           "a1",
		ShortName:    "wikipedia_en_all",
		Title:        "Wikipedia",
		Description:  "The free encyclopedia",
		LanguageCode: "en",
		Category:     CategoryWikipedia,
		Creator:      "Wikipedia",
		Publisher:    "Kiwix",
		CreationDate: &created,
		DownloadURL:  "https://download.kiwix.org/zim/wikipedia_en_all.zim.meta4",
		FaviconURL:   "https://library.kiwix.org/catalog/v2/illustration/a1",
		SizeBytes:    Int64(1024),
		ArticleCount: Int64(0),
		HasIndex:     true,
		HasPictures:  true,
	}
}

func TestNewRemotePackage(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("copies remote fields and defaults local state", func(t *testing.T) {
		t.Parallel()

		pkg := NewRemotePackage(sampleMetadata(), now)

		assert.Equal(t, "a1", pkg.ID)
		assert.Equal(t, StateRemoteOnly, pkg.State)
		assert.True(t, pkg.IncludeInSearch)
		assert.Equal(t, "Wikipedia", pkg.Title)
		require.NotNil(t, pkg.SizeBytes)
		assert.Equal(t, int64(1024), *pkg.SizeBytes)
		require.NotNil(t, pkg.ArticleCount)
		assert.Equal(t, int64(0), *pkg.ArticleCount, "zero is a known count")
		assert.Nil(t, pkg.MediaCount, "absent count stays absent")
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *pkg.CreationDate)
	})

	t.Run("missing creation date is stamped with ingestion time", func(t *testing.T) {
		t.Parallel()

		meta := sampleMetadata()
		meta.CreationDate = nil

		pkg := NewRemotePackage(meta, now)

		require.NotNil(t, pkg.CreationDate)
		assert.True(t, pkg.CreationDate.Equal(now))
	})

	t.Run("empty category becomes other", func(t *testing.T) {
		t.Parallel()

		meta := sampleMetadata()
		meta.Category = ""

		pkg := NewRemotePackage(meta, now)

		assert.Equal(t, CategoryOther, pkg.Category)
	})
}

func TestPackage_ApplyRemote(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		mutate      func(*Metadata)
		wantChanged bool
	}{
		{
			name:        "identical metadata reports no change",
			mutate:      func(*Metadata) {},
			wantChanged: false,
		},
		{
			name:        "title change",
			mutate:      func(m *Metadata) { m.Title = "Wikipedia (English)" },
			wantChanged: true,
		},
		{
			name:        "count becomes unknown",
			mutate:      func(m *Metadata) { m.ArticleCount = nil },
			wantChanged: true,
		},
		{
			name:        "count value change",
			mutate:      func(m *Metadata) { m.SizeBytes = Int64(2048) },
			wantChanged: true,
		},
		{
			name:        "flag change",
			mutate:      func(m *Metadata) { m.HasVideos = true },
			wantChanged: true,
		},
		{
			name:        "absent creation date keeps existing one",
			mutate:      func(m *Metadata) { m.CreationDate = nil },
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkg := NewRemotePackage(sampleMetadata(), now)
			meta := sampleMetadata()
			tt.mutate(meta)

			assert.Equal(t, tt.wantChanged, pkg.ApplyRemote(meta))
		})
	}
}

func TestPackage_ApplyRemoteLeavesLocalFields(t *testing.T) {
	t.Parallel()

	pkg := NewRemotePackage(sampleMetadata(), time.Now())
	pkg.State = StateDownloadPaused
	pkg.DownloadBytesWritten = 512
	pkg.DownloadResumeToken = []byte("resume")
	pkg.IncludeInSearch = false
	pkg.FaviconData = []byte{0x89, 0x50}

	meta := sampleMetadata()
	meta.Title = "Changed"
	changed := pkg.ApplyRemote(meta)

	assert.True(t, changed)
	assert.Equal(t, "Changed", pkg.Title)
	assert.Equal(t, StateDownloadPaused, pkg.State)
	assert.Equal(t, int64(512), pkg.DownloadBytesWritten)
	assert.Equal(t, []byte("resume"), pkg.DownloadResumeToken)
	assert.False(t, pkg.IncludeInSearch)
	assert.Equal(t, []byte{0x89, 0x50}, pkg.FaviconData)
}

func TestPackage_Clone(t *testing.T) {
	t.Parallel()

	pkg := NewRemotePackage(sampleMetadata(), time.Now())
	pkg.FileBookmark = []byte("bookmark")

	c := pkg.Clone()
	*c.SizeBytes = 1
	c.FileBookmark[0] = 'B'
	c.Title = "other"

	assert.Equal(t, int64(1024), *pkg.SizeBytes)
	assert.Equal(t, []byte("bookmark"), pkg.FileBookmark)
	assert.Equal(t, "Wikipedia", pkg.Title)
	assert.Nil(t, (*Package)(nil).Clone())
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Category
	}{
		{raw: "wikipedia", want: CategoryWikipedia},
		{raw: "  Wiktionary ", want: CategoryWiktionary},
		{raw: "stack_exchange", want: CategoryStackExchange},
		{raw: "ted", want: CategoryTED},
		{raw: "gutenberg", want: CategoryOther},
		{raw: "", want: CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseCategory(tt.raw))
		})
	}
}

func TestState(t *testing.T) {
	t.Parallel()

	for _, s := range States() {
		parsed, ok := ParseState(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}

	_, ok := ParseState("cloud")
	assert.False(t, ok)

	assert.False(t, StateRemoteOnly.IsLocallyOwned())
	assert.True(t, StateRetained.IsLocallyOwned())
	assert.True(t, StateDownloadInProgress.IsLocallyOwned())
}

func TestCategory_DisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Wikipedia", CategoryWikipedia.DisplayName())
	assert.Equal(t, "TED", CategoryTED.DisplayName())
	assert.Equal(t, "StackExchange", CategoryStackExchange.DisplayName())
	assert.Equal(t, "Other", CategoryOther.DisplayName())
	assert.Len(t, Categories(), 12)
}
