package stem

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var separatorRun = regexp.MustCompile(`[_-]+`)

// DeriveLabel returns the display name of a stem. An explicit label wins;
// otherwise the name comes from the source file, minus its extension and any
// leading song-id prefix ("Agust-02_bass.mp3" in song "Agust" -> "Bass").
func DeriveLabel(label, source, songID string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	if source == "" {
		return "Stem"
	}

	name := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSuffix(name, path.Ext(name))

	if songID != "" && len(name) >= len(songID) && strings.EqualFold(name[:len(songID)], songID) {
		name = strings.TrimLeft(name[len(songID):], "0123456789-_")
	}

	name = strings.TrimSpace(separatorRun.ReplaceAllString(name, " "))
	if name == "" || name == "." || name == "/" {
		return "Stem"
	}

	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}
