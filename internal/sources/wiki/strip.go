package wiki

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptPattern    = regexp.MustCompile(`(?si)<script.*?>.*?</script>`)
	stylePattern     = regexp.MustCompile(`(?si)<style.*?>.*?</style>`)
	commentPattern   = regexp.MustCompile(`(?s)<!--.*?-->`)
	editLinkPattern  = regexp.MustCompile(`(?si)<span class="mw-editsection".*?</span>\s*</span>`)
	blockTagPattern  = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6]|table|ul|ol)[^>]*>`)
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	spacePattern     = regexp.MustCompile(`[ \t\x{00a0}\x{3000}]+`)
	blankLinePattern = regexp.MustCompile(`\n\s*\n+`)
)

// StripHTML reduces rendered wiki HTML to plain text lines.
func StripHTML(markup string) string {
	text := scriptPattern.ReplaceAllString(markup, "")
	text = stylePattern.ReplaceAllString(text, "")
	text = commentPattern.ReplaceAllString(text, "")
	text = editLinkPattern.ReplaceAllString(text, "")
	text = blockTagPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = spacePattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = blankLinePattern.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(text)
}
