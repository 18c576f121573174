package versions

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfoWithValues(t *testing.T) {
	t.Parallel()

	vcs := func() map[string]string {
		return map[string]string{
			"vcs.revision": "0123456789abcdef",
			"vcs.time":     "2026-03-01T10:30:00Z",
		}
	}

	tests := []struct {
		name          string
		version       string
		commit        string
		buildDate     string
		settings      buildSettings
		wantVersion   string
		wantCommit    string
		wantBuildDate string
	}{
		{
			name:          "release build keeps its values",
			version:       "v1.2.0",
			commit:        "abc",
			buildDate:     "2026-03-01T10:30:00Z",
			settings:      vcs,
			wantVersion:   "v1.2.0",
			wantCommit:    "abc",
			wantBuildDate: "2026-03-01 10:30:00 UTC",
		},
		{
			name:          "dev build reads vcs settings",
			version:       "dev",
			commit:        unknownStr,
			buildDate:     unknownStr,
			settings:      vcs,
			wantVersion:   "build-01234567",
			wantCommit:    "0123456789abcdef",
			wantBuildDate: "2026-03-01 10:30:00 UTC",
		},
		{
			name:          "dev build without build info",
			version:       "dev",
			commit:        unknownStr,
			buildDate:     unknownStr,
			wantVersion:   "build-unknown",
			wantCommit:    unknownStr,
			wantBuildDate: unknownStr,
		},
		{
			name:          "unparseable build date is kept",
			version:       "v1.0.0",
			commit:        "abc",
			buildDate:     "yesterday",
			wantVersion:   "v1.0.0",
			wantCommit:    "abc",
			wantBuildDate: "yesterday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info := getVersionInfoWithValues(tt.version, tt.commit, tt.buildDate, tt.settings)
			assert.Equal(t, tt.wantVersion, info.Version)
			assert.Equal(t, tt.wantCommit, info.Commit)
			assert.Equal(t, tt.wantBuildDate, info.BuildDate)
			assert.Equal(t, runtime.Version(), info.GoVersion)
			assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
		})
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()
	assert.Contains(t, UserAgent(), "zim-library/")
}
