package ticket

import (
	"regexp"
	"strings"
)

var figmaLinkPattern = regexp.MustCompile(`https?://(?:www\.)?figma\.com/(?:file|proto|design)/[A-Za-z0-9]+[^\s)\]>"'<]*`)

// ExtractFigmaLinks returns Figma file/proto/design URLs found in texts, in
// order of first appearance and without duplicates. Trailing sentence
// punctuation is not part of a link.
func ExtractFigmaLinks(texts ...string) []string {
	links := []string{}
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, m := range figmaLinkPattern.FindAllString(text, -1) {
			m = strings.TrimRight(m, ".,;:!?")
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			links = append(links, m)
		}
	}
	return links
}

var figmaKeyPattern = regexp.MustCompile(`figma\.com/(?:file|proto|design)/([A-Za-z0-9]+)`)

// FigmaFileKey returns the file key embedded in a Figma URL, or "" if url is
// not a Figma file link.
func FigmaFileKey(url string) string {
	m := figmaKeyPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}
