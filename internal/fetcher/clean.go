package fetcher

import (
	"regexp"
	"strings"
)

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	salaryPattern = regexp.MustCompile(`[$£€][\d,]+`)
)

// entityReplacer decodes the fixed entity set the feeds are known to emit
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// cleanText strips markup tags and decodes entities from a feed text field
func cleanText(text string) string {
	return strings.TrimSpace(entityReplacer.Replace(tagPattern.ReplaceAllString(text, "")))
}

// extractSalary pulls currency amounts out of free text, joining multiple
// matches into a range. Returns "" when the text mentions no salary.
func extractSalary(text string) string {
	matches := salaryPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.Join(matches, " - ")
}
