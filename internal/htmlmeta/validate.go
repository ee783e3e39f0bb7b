package htmlmeta

import "strings"

// implausibleAuthorNames are byline-scrape artifacts that are not real
// author names and should be discarded by the validation pass.
var implausibleAuthorNames = map[string]bool{
	"admin": true, "staff": true, "unknown": true, "anonymous": true, "": true,
}

// validate trims whitespace, discards empty/implausible author names,
// dedupes keywords, and derives reading_time when absent.
func validate(d *Document) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)

	author := strings.TrimSpace(d.Author)
	if implausibleAuthorNames[strings.ToLower(author)] || len(author) > 200 {
		d.Author = ""
	} else {
		d.Author = author
	}

	d.Keywords = dedupeKeywords(d.Keywords)

	if d.ReadingTimeMin == 0 {
		words := len(strings.Fields(d.Description)) + len(strings.Fields(d.Title))
		d.ReadingTimeMin = readingTime(words)
	}
}

// readingTime derives reading_time = max(1, word_count/200).
func readingTime(wordCount int) int {
	rt := wordCount / 200
	if rt < 1 {
		return 1
	}
	return rt
}

// SetReadingTimeFromBody overrides the reading-time estimate using the full
// extracted body word count; callers that also ran the structured-text
// extractor should call this after Extract for a more accurate figure than
// the title+description fallback validate() computes on its own.
func (d *Document) SetReadingTimeFromBody(wordCount int) {
	d.ReadingTimeMin = readingTime(wordCount)
}
