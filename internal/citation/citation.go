// Package citation turns the model's trailing "來源：#1 #3" line into readable
// titles and links.
package citation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dwizi/groundbot/internal/evidence"
)

var (
	markerPattern = regexp.MustCompile(`(?m)(^|\n)[ \t]*(?:來源|Sources?)[ \t]*[:：][ \t]*([#0-9 \t]+?)[ \t]*$`)
	indexPattern  = regexp.MustCompile(`#\s*(\d{1,3})`)
)

// Render rewrites the last citation marker line. Indices are 1-based into
// sources; out-of-range and repeated indices are dropped with citation order
// kept. Text without a usable marker is returned unchanged.
func Render(text string, sources []evidence.Source) string {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	last := matches[len(matches)-1]
	start, end := last[0], last[1]
	ids := text[last[4]:last[5]]

	seen := map[int]struct{}{}
	lines := []string{"來源："}
	for _, match := range indexPattern.FindAllStringSubmatch(ids, -1) {
		index, err := strconv.Atoi(match[1])
		if err != nil || index < 1 || index > len(sources) {
			continue
		}
		if _, ok := seen[index]; ok {
			continue
		}
		seen[index] = struct{}{}
		source := sources[index-1]
		title := strings.TrimSpace(source.Title)
		if title == "" {
			title = "Source #" + strconv.Itoa(index)
		}
		if link := strings.TrimSpace(source.Link); link != "" {
			lines = append(lines, "- "+title+"\n  "+link)
		} else {
			lines = append(lines, "- "+title)
		}
	}
	if len(lines) == 1 {
		return text
	}
	prefix := text[:start]
	// Keep the newline the marker consumed; a marker at a line start consumed none.
	if last[3] > last[2] {
		prefix += "\n"
	}
	return prefix + strings.Join(lines, "\n") + text[end:]
}
