package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	datePrefixes = []string{"Premiered", "Streamed live on", "Started streaming on", "Scheduled for"}
	isoDuration  = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
)

// createDocument creates a goquery.Document from an HTML string
func createDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// firstMatch returns the first non-empty selection among selectors
func firstMatch(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		selection := doc.Find(selector).First()
		if selection.Length() > 0 && strings.TrimSpace(selection.Text()) != "" {
			return selection
		}
	}
	return nil
}

// extractText tries selectors in priority order and returns the first text
func extractText(doc *goquery.Document, selectors []string) string {
	if selection := firstMatch(doc, selectors); selection != nil {
		return collapseSpace(selection.Text())
	}
	return ""
}

// metaContent returns the content attribute of the first element matching selector
func metaContent(doc *goquery.Document, selector string) string {
	value, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(value)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeUploadDate turns "Premiered Mar 3, 2021" or "2021-03-03" into
// RFC3339. Text that is not a calendar date ("3 hours ago") is kept as is.
func normalizeUploadDate(raw string) string {
	cleaned := collapseSpace(raw)
	for _, prefix := range datePrefixes {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
			break
		}
	}
	if cleaned == "" {
		return ""
	}

	formats := []string{
		time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return cleaned
}

// clockDuration converts an ISO 8601 duration such as PT1H2M3S to 1:02:03
func clockDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return ""
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}

	total := atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3])
	hours, minutes, seconds := total/3600, total%3600/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
