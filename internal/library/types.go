// Package library defines the content package record tracked by the catalog
// store, along with its lifecycle state and category enums.
package library

import "strings"

// State represents the local lifecycle state of a content package
type State string

const (
	// StateRemoteOnly means the package is only known from the catalog
	StateRemoteOnly State = "remoteOnly"

	// StateLocal means the package file is present on this device
	StateLocal State = "local"

	// StateRetained means the package was kept by the user after the catalog dropped it
	StateRetained State = "retained"

	// StateDownloadQueued means a download has been requested but not started
	StateDownloadQueued State = "downloadQueued"

	// StateDownloadInProgress means the package is being downloaded
	StateDownloadInProgress State = "downloadInProgress"

	// StateDownloadPaused means the download was paused and can be resumed
	StateDownloadPaused State = "downloadPaused"

	// StateDownloadError means the last download attempt failed
	StateDownloadError State = "downloadError"
)

var allStates = []State{
	StateRemoteOnly,
	StateLocal,
	StateRetained,
	StateDownloadQueued,
	StateDownloadInProgress,
	StateDownloadPaused,
	StateDownloadError,
}

// States returns every known lifecycle state
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// Valid reports whether s is one of the known lifecycle states
func (s State) Valid() bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsLocallyOwned reports whether the record carries user-owned local state.
// Reconciliation never deletes locally owned records, even when the catalog
// no longer lists them.
func (s State) IsLocallyOwned() bool {
	return s != StateRemoteOnly
}

// ParseState parses a state string. Unknown values are reported as not ok.
func ParseState(raw string) (State, bool) {
	s := State(raw)
	return s, s.Valid()
}

// Category is the content family a package belongs to
type Category string

// Category values as they appear in the catalog
const (
	CategoryWikibooks     Category = "wikibooks"
	CategoryWikinews      Category = "wikinews"
	CategoryWikipedia     Category = "wikipedia"
	CategoryWikiquote     Category = "wikiquote"
	CategoryWikisource    Category = "wikisource"
	CategoryWikiversity   Category = "wikiversity"
	CategoryWikivoyage    Category = "wikivoyage"
	CategoryWiktionary    Category = "wiktionary"
	CategoryTED           Category = "ted"
	CategoryVikidia       Category = "vikidia"
	CategoryStackExchange Category = "stack_exchange"
	CategoryOther         Category = "other"
)

var allCategories = []Category{
	CategoryWikibooks,
	CategoryWikinews,
	CategoryWikipedia,
	CategoryWikiquote,
	CategoryWikisource,
	CategoryWikiversity,
	CategoryWikivoyage,
	CategoryWiktionary,
	CategoryTED,
	CategoryVikidia,
	CategoryStackExchange,
	CategoryOther,
}

// Categories returns every known category
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory maps a raw catalog value onto the closed category set.
// Anything unrecognised is CategoryOther.
func ParseCategory(raw string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allCategories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// DisplayName returns a human readable category label
func (c Category) DisplayName() string {
	switch c {
	case CategoryTED:
		return "TED"
	case CategoryStackExchange:
		return "StackExchange"
	case CategoryOther, "":
		return "Other"
	default:
		s := string(c)
		return strings.ToUpper(s[:1]) + s[1:]
	}
}
