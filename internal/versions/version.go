// Package versions provides build version information for zim-library.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	unknownStr = "unknown"
)

// Version information set by build using -ldflags
var (
	// Version is the current version of zim-library
	Version = "dev"
	// Commit is the git commit hash of the build
	//nolint:goconst // This is a placeholder for the commit hash
	Commit = unknownStr
	// BuildDate is the date when the binary was built
	//nolint:goconst // This is a placeholder for the build date
	BuildDate = unknownStr
)

// VersionInfo represents the version information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information
func GetVersionInfo() VersionInfo {
	return getVersionInfoWithValues(Version, Commit, BuildDate, readBuildSettings)
}

// UserAgent identifies this build on outgoing catalog requests
func UserAgent() string {
	return "zim-library/" + GetVersionInfo().Version
}

// buildSettings returns the vcs settings embedded by the go toolchain
type buildSettings func() map[string]string

func readBuildSettings() map[string]string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

func getVersionInfoWithValues(version, commit, buildDate string, settings buildSettings) VersionInfo {
	if strings.HasPrefix(version, "dev") && settings != nil {
		vcs := settings()
		if commit == unknownStr && vcs["vcs.revision"] != "" {
			commit = vcs["vcs.revision"]
		}
		if buildDate == unknownStr && vcs["vcs.time"] != "" {
			buildDate = vcs["vcs.time"]
		}
	}

	if buildDate != unknownStr {
		if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = t.Format("2006-01-02 15:04:05 MST")
		}
	}

	// A bare "dev" version is replaced by the short commit
	if version == "dev" {
		version = fmt.Sprintf("build-%.*s", 8, commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
