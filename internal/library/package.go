package library

import (
	"bytes"
	"time"
)

// Package is the persistent record describing one content package.
// JSON field names are the current (version 3) schema shape.
type Package struct {
	// ID is the catalog identifier and the primary key
	ID string `json:"id"`

	ShortName    string   `json:"shortName"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	LanguageCode string   `json:"languageCode"`
	Category     Category `json:"category"`

	Creator      string     `json:"creator,omitempty"`
	Publisher    string     `json:"publisher,omitempty"`
	CreationDate *time.Time `json:"creationDate,omitempty"`

	DownloadURL string `json:"downloadURL,omitempty"`
	FaviconURL  string `json:"faviconURL,omitempty"`
	// FaviconData is fetched lazily and is never touched by reconciliation
	FaviconData []byte `json:"faviconData,omitempty"`

	// Nil means unknown; zero is a valid count
	SizeBytes    *int64 `json:"sizeBytes,omitempty"`
	ArticleCount *int64 `json:"articleCount,omitempty"`
	MediaCount   *int64 `json:"mediaCount,omitempty"`

	HasDetails  bool `json:"hasDetails"`
	HasIndex    bool `json:"hasIndex"`
	HasPictures bool `json:"hasPictures"`
	HasVideos   bool `json:"hasVideos"`

	LocalState
}

// LocalState holds the lifecycle fields owned by the download subsystem and the user
type LocalState struct {
	State                State  `json:"state"`
	DownloadBytesWritten int64  `json:"downloadBytesWritten"`
	DownloadResumeToken  []byte `json:"downloadResumeToken,omitempty"`
	DownloadErrorMessage string `json:"downloadErrorMessage,omitempty"`
	IncludeInSearch      bool   `json:"includeInSearch"`
	FileBookmark         []byte `json:"fileBookmark,omitempty"`
}

// Metadata is the remote-owned projection of a package as described by the catalog
type Metadata struct {
	ID           string
	ShortName    string
	Title        string
	Description  string
	LanguageCode string
	Category     Category
	Creator      string
	Publisher    string
	CreationDate *time.Time
	DownloadURL  string
	FaviconURL   string
	SizeBytes    *int64
	ArticleCount *int64
	MediaCount   *int64
	HasDetails   bool
	HasIndex     bool
	HasPictures  bool
	HasVideos    bool
}

// NewRemotePackage creates a remote-only record from catalog metadata.
// A missing creation date is stamped with now and is kept on later updates.
func NewRemotePackage(meta *Metadata, now time.Time) *Package {
	pkg := &Package{
		ID: meta.ID,
		LocalState: LocalState{
			State:           StateRemoteOnly,
			IncludeInSearch: true,
		},
	}
	pkg.ApplyRemote(meta)
	if pkg.CreationDate == nil {
		stamp := now.UTC()
		pkg.CreationDate = &stamp
	}
	return pkg
}

// ApplyRemote copies the remote-owned fields from meta onto p and reports
// whether anything changed. Local lifecycle fields and the favicon data are
// left alone, and an absent creation date keeps the existing one.
func (p *Package) ApplyRemote(meta *Metadata) bool {
	before := p.remoteFields()

	p.ShortName = meta.ShortName
	p.Title = meta.Title
	p.Description = meta.Description
	p.LanguageCode = meta.LanguageCode
	p.Category = meta.Category
	if p.Category == "" {
		p.Category = CategoryOther
	}
	p.Creator = meta.Creator
	p.Publisher = meta.Publisher
	if meta.CreationDate != nil {
		d := meta.CreationDate.UTC()
		p.CreationDate = &d
	}
	p.DownloadURL = meta.DownloadURL
	p.FaviconURL = meta.FaviconURL
	p.SizeBytes = cloneInt64(meta.SizeBytes)
	p.ArticleCount = cloneInt64(meta.ArticleCount)
	p.MediaCount = cloneInt64(meta.MediaCount)
	p.HasDetails = meta.HasDetails
	p.HasIndex = meta.HasIndex
	p.HasPictures = meta.HasPictures
	p.HasVideos = meta.HasVideos

	return !before.equal(p.remoteFields())
}

// Clone returns a deep copy of p
func (p *Package) Clone() *Package {
	if p == nil {
		return nil
	}
	c := *p
	if p.CreationDate != nil {
		d := *p.CreationDate
		c.CreationDate = &d
	}
	c.FaviconData = cloneBytes(p.FaviconData)
	c.SizeBytes = cloneInt64(p.SizeBytes)
	c.ArticleCount = cloneInt64(p.ArticleCount)
	c.MediaCount = cloneInt64(p.MediaCount)
	c.DownloadResumeToken = cloneBytes(p.DownloadResumeToken)
	c.FileBookmark = cloneBytes(p.FileBookmark)
	return &c
}

// remoteSnapshot is a comparable view of the remote-owned fields
type remoteSnapshot struct {
	shortName, title, description, languageCode string
	category                                    Category
	creator, publisher                          string
	creationDate                                *time.Time
	downloadURL, faviconURL                     string
	size, articles, media                       *int64
	details, index, pictures, videos            bool
}

func (p *Package) remoteFields() remoteSnapshot {
	return remoteSnapshot{
		shortName:    p.ShortName,
		title:        p.Title,
		description:  p.Description,
		languageCode: p.LanguageCode,
		category:     p.Category,
		creator:      p.Creator,
		publisher:    p.Publisher,
		creationDate: p.CreationDate,
		downloadURL:  p.DownloadURL,
		faviconURL:   p.FaviconURL,
		size:         p.SizeBytes,
		articles:     p.ArticleCount,
		media:        p.MediaCount,
		details:      p.HasDetails,
		index:        p.HasIndex,
		pictures:     p.HasPictures,
		videos:       p.HasVideos,
	}
}

func (a remoteSnapshot) equal(b remoteSnapshot) bool {
	return a.shortName == b.shortName &&
		a.title == b.title &&
		a.description == b.description &&
		a.languageCode == b.languageCode &&
		a.category == b.category &&
		a.creator == b.creator &&
		a.publisher == b.publisher &&
		equalTime(a.creationDate, b.creationDate) &&
		a.downloadURL == b.downloadURL &&
		a.faviconURL == b.faviconURL &&
		equalInt64(a.size, b.size) &&
		equalInt64(a.articles, b.articles) &&
		equalInt64(a.media, b.media) &&
		a.details == b.details &&
		a.index == b.index &&
		a.pictures == b.pictures &&
		a.videos == b.videos
}

// Int64 returns a pointer to v, for populating optional counts
func Int64(v int64) *int64 {
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

func equalInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
