package library

// Feed is one parsed catalog: the full set of remote ids plus the metadata
// for each. A nil Metadata marks an entry that was present but malformed; its
// id still counts as remote.
type Feed struct {
	ids     []string
	entries map[string]*Metadata
}

// NewFeed returns an empty feed
func NewFeed() *Feed {
	return &Feed{entries: make(map[string]*Metadata)}
}

// Add records id with its metadata. A repeated id keeps its first position
// and takes the latest metadata.
func (f *Feed) Add(id string, meta *Metadata) {
	if f.entries == nil {
		f.entries = make(map[string]*Metadata)
	}
	if _, seen := f.entries[id]; !seen {
		f.ids = append(f.ids, id)
	}
	if meta != nil && meta.ID == "" {
		meta.ID = id
	}
	f.entries[id] = meta
}

// IDs returns the remote ids in first-seen order
func (f *Feed) IDs() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.ids...)
}

// Contains reports whether id appears in the feed
func (f *Feed) Contains(id string) bool {
	if f == nil {
		return false
	}
	_, ok := f.entries[id]
	return ok
}

// Metadata returns the metadata for id, nil when absent or malformed
func (f *Feed) Metadata(id string) *Metadata {
	if f == nil {
		return nil
	}
	return f.entries[id]
}

// Len returns the number of distinct ids
func (f *Feed) Len() int {
	if f == nil {
		return 0
	}
	return len(f.ids)
}

// Valid returns the number of ids with usable metadata
func (f *Feed) Valid() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, meta := range f.entries {
		if meta != nil {
			n++
		}
	}
	return n
}
