package coordinator

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// localeEnvVars are consulted in POSIX precedence order
var localeEnvVars = []string{"LC_ALL", "LC_MESSAGES", "LANG"}

// DetectLocale returns the process locale from the environment,
// or English when none is set or it cannot be parsed
func DetectLocale() language.Tag {
	for _, name := range localeEnvVars {
		if tag, ok := parseLocale(os.Getenv(name)); ok {
			return tag
		}
	}
	return language.English
}

// parseLocale parses POSIX locale names such as de_DE.UTF-8 or pt_BR@euro
func parseLocale(raw string) (language.Tag, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "C" || raw == "POSIX" {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// baseLanguage returns the ISO 639-1 code of tag, matching the codes the
// catalog parser stores on packages
func baseLanguage(tag language.Tag) string {
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}
