package capture

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Destination builds projects/{project}/{unixMillis}_{filename}. Both names are
// NFC-normalized and stripped of path separators so each stays one segment.
func Destination(project, filename string, t time.Time) string {
	name := segment(filepath.Base(filename))
	return "projects/" + segment(project) + "/" + strconv.FormatInt(t.UnixMilli(), 10) + "_" + name
}

func segment(value string) string {
	value = strings.TrimSpace(norm.NFC.String(value))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, value)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "unnamed"
	}
	return cleaned
}
