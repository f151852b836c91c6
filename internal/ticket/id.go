package ticket

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeID makes a ticket key safe for use as a directory name. Keys such
// as "PROJ-123" pass through unchanged.
func SanitizeID(key string) string {
	id := unsafeIDChars.ReplaceAllString(strings.TrimSpace(key), "_")
	id = strings.Trim(id, "._")
	if id == "" {
		return "ticket"
	}
	return id
}

// ManualID derives a stable id for a ticket without a key from its content,
// so re-analyzing the same text resolves to the same stored record.
func ManualID(title, description string) string {
	return "MANUAL-" + ContentHash(title, description)[:12]
}

// ContentHash returns the hex BLAKE3 digest of the given parts, each
// terminated by a newline.
func ContentHash(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
