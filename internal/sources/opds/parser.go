// Package opds parses Kiwix OPDS (Atom) catalogs into library feeds.
package opds

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"golang.org/x/text/language"

	"github.com/zimshelf/zim-library/internal/library"
)

const (
	relAcquisition = "http://opds-spec.org/acquisition"
	relThumbnail   = "http://opds-spec.org/image/thumbnail"
	relImage       = "http://opds-spec.org/image"

	uuidPrefix = "urn:uuid:"
)

// ParseError reports a catalog that is not a readable OPDS feed
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid catalog: %s: %v", e.Reason, e.Err)
	}
	return "invalid catalog: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser turns catalog bytes into a feed
type Parser struct{}

// NewParser creates an OPDS parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads every entry of the catalog. base is the catalog location and
// resolves relative links. Entries without an id are dropped; entries with
// an id but unusable fields are kept with nil metadata.
func (*Parser) Parse(data []byte, base string) (*library.Feed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Reason: "empty document"}
	}

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: "malformed XML", Err: err}
	}

	root := xmlquery.FindOne(doc, "/*[local-name()='feed']")
	if root == nil {
		return nil, &ParseError{Reason: "missing feed element"}
	}

	baseURL, _ := url.Parse(base)

	feed := library.NewFeed()
	dropped, malformed := 0, 0
	for _, entry := range xmlquery.Find(root, "*[local-name()='entry']") {
		id := entryID(entry)
		if id == "" {
			dropped++
			continue
		}
		meta, err := parseEntry(entry, id, baseURL)
		if err != nil {
			slog.Debug("Skipping malformed catalog entry", "package_id", id, "error", err)
			malformed++
		}
		feed.Add(id, meta)
	}

	slog.Debug("Parsed catalog",
		"package_count", feed.Len(),
		"malformed", malformed,
		"dropped", dropped)
	return feed, nil
}

func entryID(entry *xmlquery.Node) string {
	id := strings.TrimSpace(childText(entry, "id"))
	return strings.TrimPrefix(id, uuidPrefix)
}

func parseEntry(entry *xmlquery.Node, id string, base *url.URL) (*library.Metadata, error) {
	title := strings.TrimSpace(childText(entry, "title"))
	if title == "" {
		return nil, fmt.Errorf("missing title")
	}

	articles, err := optionalInt(childText(entry, "articleCount"))
	if err != nil {
		return nil, fmt.Errorf("articleCount: %w", err)
	}
	media, err := optionalInt(childText(entry, "mediaCount"))
	if err != nil {
		return nil, fmt.Errorf("mediaCount: %w", err)
	}

	tags := parseTags(childText(entry, "tags"))

	meta := &library.Metadata{
		ID:           id,
		ShortName:    strings.TrimSpace(childText(entry, "name")),
		Title:        title,
		Description:  strings.TrimSpace(childText(entry, "summary")),
		LanguageCode: NormalizeLanguage(childText(entry, "language")),
		Category:     entryCategory(entry, tags),
		Creator:      strings.TrimSpace(nestedText(entry, "author", "name")),
		Publisher:    strings.TrimSpace(nestedText(entry, "publisher", "name")),
		CreationDate: parseDate(childText(entry, "updated")),
		ArticleCount: articles,
		MediaCount:   media,
		HasDetails:   tags.flag("_details", true),
		HasIndex:     tags.flag("_ftindex", false),
		HasPictures:  tags.flag("_pictures", true),
		HasVideos:    tags.flag("_videos", true),
	}

	for _, link := range xmlquery.Find(entry, "*[local-name()='link']") {
		rel := link.SelectAttr("rel")
		href := strings.TrimSpace(link.SelectAttr("href"))
		if href == "" {
			continue
		}
		switch {
		case strings.HasPrefix(rel, relAcquisition):
			meta.DownloadURL = resolve(base, href)
			size, err := optionalInt(link.SelectAttr("length"))
			if err != nil {
				return nil, fmt.Errorf("length: %w", err)
			}
			meta.SizeBytes = size
		case rel == relThumbnail || (rel == relImage && meta.FaviconURL == ""):
			meta.FaviconURL = resolve(base, href)
		}
	}

	return meta, nil
}

func entryCategory(entry *xmlquery.Node, tags tagSet) library.Category {
	if raw := strings.TrimSpace(childText(entry, "category")); raw != "" {
		return library.ParseCategory(raw)
	}
	if raw, ok := tags["_category"]; ok {
		return library.ParseCategory(raw)
	}
	return library.CategoryOther
}

// NormalizeLanguage reduces a catalog language value to its base language
// subtag: "eng" becomes "en", "fra,eng" becomes "fr". Unknown values are
// returned lowercased.
func NormalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	base, _ := tag.Base()
	return base.String()
}

type tagSet map[string]string

// parseTags splits "wikipedia;_category:wikipedia;_pictures:no" into a set.
// Plain tags map to an empty value.
func parseTags(raw string) tagSet {
	tags := tagSet{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		tags[key] = strings.TrimSpace(value)
	}
	return tags
}

func (t tagSet) flag(key string, absent bool) bool {
	value, ok := t[key]
	if !ok {
		return absent
	}
	switch strings.ToLower(value) {
	case "yes", "true", "1":
		return true
	case "no", "false", "0":
		return false
	default:
		return absent
	}
}

func childText(n *xmlquery.Node, name string) string {
	child := xmlquery.FindOne(n, "*[local-name()='"+name+"']")
	if child == nil {
		return ""
	}
	return child.InnerText()
}

func nestedText(n *xmlquery.Node, outer, inner string) string {
	child := xmlquery.FindOne(n, "*[local-name()='"+outer+"']/*[local-name()='"+inner+"']")
	if child == nil {
		return ""
	}
	return child.InnerText()
}

func optionalInt(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, fmt.Errorf("negative value %d", v)
	}
	return &v, nil
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil || ref.IsAbs() || base.Scheme == "" {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
