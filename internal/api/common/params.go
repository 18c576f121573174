package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// PathParam returns the decoded chi path parameter name. Package and job
// identifiers never contain whitespace or control characters, so values with
// either are rejected along with empty ones.
func PathParam(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	if strings.IndexFunc(value, func(c rune) bool { return unicode.IsSpace(c) || unicode.IsControl(c) }) >= 0 {
		return "", fmt.Errorf("%s cannot contain whitespace or control characters", name)
	}
	return value, nil
}
