// Package version exposes the weft release version embedded at build
// time from the VERSION file.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the weft version string, trimmed of surrounding
// whitespace.
func Get() string {
	return strings.TrimSpace(raw)
}
