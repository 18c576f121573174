// Package migration rewrites persisted package records between schema versions.
//
// Records are handled in their decoded JSON shape (map[string]any) so that
// every historical version can be read without a Go type per version. Each
// step only touches the keys it knows about, which makes re-applying a step to
// an already migrated record a no-op.
package migration

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Record is one persisted package in its raw decoded form
type Record = map[string]any

// Step upgrades records from Version-1 to Version
type Step struct {
	Version     int
	Description string
	Apply       func(rec Record)
}

// rename moves a field to its new key. The value already stored under the new
// key wins if both exist.
type rename struct {
	from, to string
}

// steps is the version-indexed chain of record rewrites
var steps = []Step{
	{
		Version:     2,
		Description: "rename v1 fields, drop unknown zero counts, rename category values",
		Apply:       upgradeToV2,
	},
	{
		Version:     3,
		Description: "rename v2 fields to current names, rename state values, default flags",
		Apply:       upgradeToV3,
	},
}

var v2Renames = []rename{
	{from: "pid", to: "name"},
	{from: "bookDescription", to: "fileDescription"},
	{from: "hasPicture", to: "hasPictures"},
	{from: "hasEmbeddedIndex", to: "hasIndex"},
	{from: "icon", to: "faviconData"},
	{from: "fileSize", to: "size"},
	{from: "remoteURL", to: "downloadURL"},
}

var v2CategoryValues = map[string]string{
	"stackExchange": "stack_exchange",
	"ted":           "other",
}

var v3Renames = []rename{
	{from: "name", to: "shortName"},
	{from: "fileDescription", to: "description"},
	{from: "size", to: "sizeBytes"},
	{from: "categoryRaw", to: "category"},
	{from: "stateRaw", to: "state"},
	{from: "downloadTotalBytesWritten", to: "downloadBytesWritten"},
	{from: "downloadResumeData", to: "downloadResumeToken"},
	{from: "downloadErrorDescription", to: "downloadErrorMessage"},
	{from: "openInPlaceURLBookmark", to: "fileBookmark"},
}

var v3StateValues = map[string]string{
	"cloud": "remoteOnly",
}

var v3BoolDefaults = map[string]bool{
	"includeInSearch": true,
	"hasDetails":      false,
	"hasIndex":        false,
	"hasPictures":     false,
	"hasVideos":       false,
}

// Steps returns the registered migration steps in version order
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// LatestVersion is the highest version reachable through the chain
func LatestVersion() int {
	all := Steps()
	return all[len(all)-1].Version
}

// Pending reports whether records stored at version from need rewriting to reach to
func Pending(from, to int) bool {
	return from < to
}

// Apply rewrites records in place from version from to version to and returns
// them. Steps at or below from are never run, so an already current set of
// records is returned untouched.
func Apply(records []Record, from, to int) ([]Record, error) {
	if to > LatestVersion() {
		return nil, fmt.Errorf("unknown schema version %d (latest is %d)", to, LatestVersion())
	}
	if from < 1 {
		return nil, fmt.Errorf("invalid stored schema version %d", from)
	}
	if !Pending(from, to) {
		return records, nil
	}

	for _, step := range Steps() {
		if step.Version <= from || step.Version > to {
			continue
		}
		for _, rec := range records {
			if rec != nil {
				step.Apply(rec)
			}
		}
	}
	return records, nil
}

func upgradeToV2(rec Record) {
	applyRenames(rec, v2Renames)

	// v1 stored these counts as non-optional with a default of 0, so a stored 0
	// cannot be told apart from a missing value; both become absent in v2
	for _, key := range []string{"size", "articleCount", "mediaCount"} {
		if n, ok := number(rec[key]); ok && n == 0 {
			delete(rec, key)
		}
	}

	renameValue(rec, "categoryRaw", v2CategoryValues)
}

func upgradeToV3(rec Record) {
	applyRenames(rec, v3Renames)
	renameValue(rec, "state", v3StateValues)

	if _, ok := rec["state"]; !ok {
		rec["state"] = "remoteOnly"
	}
	if _, ok := rec["category"]; !ok {
		rec["category"] = "other"
	}
	for key, def := range v3BoolDefaults {
		if _, ok := rec[key]; !ok {
			rec[key] = def
		}
	}
}

func applyRenames(rec Record, renames []rename) {
	for _, r := range renames {
		v, ok := rec[r.from]
		if !ok {
			continue
		}
		if _, exists := rec[r.to]; !exists {
			rec[r.to] = v
		}
		delete(rec, r.from)
	}
}

func renameValue(rec Record, key string, values map[string]string) {
	s, ok := rec[key].(string)
	if !ok {
		return
	}
	if renamed, ok := values[s]; ok {
		rec[key] = renamed
	}
}

// number extracts a numeric value from the shapes encoding/json can produce
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
