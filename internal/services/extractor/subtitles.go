package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/spectare/internal/interfaces"
)

// Subtitle kinds stored on VideoRecord.SubtitlesType
const (
	SubtitlesUserGenerated = "user_generated"
	SubtitlesAutoGenerated = "auto_generated"
)

// ErrNoSubtitles means the video has no captions in the requested language
var ErrNoSubtitles = errors.New("no subtitles found")

// timedTextPattern finds the caption track URL inside the player response.
// Inside page scripts '&' is escaped as \u0026.
var timedTextPattern = regexp.MustCompile(`https:(?:\\/|/){2}www\.youtube\.com(?:\\/|/)api(?:\\/|/)timedtext\?v=[^"]*`)

// json3 is the caption format served with fmt=json3
type json3 struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// TimedTextURL returns the caption base URL embedded in a watch page
func TimedTextURL(html string) (string, bool) {
	match := timedTextPattern.FindString(html)
	if match == "" {
		return "", false
	}
	replacer := strings.NewReplacer(`\\u0026`, "&", `\u0026`, "&", `\/`, "/")
	return replacer.Replace(strings.TrimRight(match, `\`)), true
}

// FetchSubtitles downloads the captions for the page loaded in driver, user
// made ones first, falling back to automatic ones. It returns SRT text and
// the subtitle kind.
func FetchSubtitles(ctx context.Context, driver interfaces.Driver, html, language string) (string, string, error) {
	base, ok := TimedTextURL(html)
	if !ok {
		return "", "", ErrNoSubtitles
	}
	lang := url.QueryEscape(language)

	candidates := []struct {
		kind string
		url  string
	}{
		{SubtitlesUserGenerated, base + "&lang=" + lang + "&fmt=json3"},
		{SubtitlesAutoGenerated, base + "&lang=" + lang + "&fmt=json3&kind=asr"},
	}

	var lastErr error = ErrNoSubtitles
	for _, candidate := range candidates {
		body, err := fetchInPage(ctx, driver, candidate.url)
		if err != nil {
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			lastErr = err
			continue
		}
		srt, err := ConvertJSON3ToSRT(body)
		if err != nil {
			lastErr = err
			continue
		}
		return srt, candidate.kind, nil
	}
	return "", "", lastErr
}

// fetchInPage requests target from inside the page so cookies and origin match
func fetchInPage(ctx context.Context, driver interfaces.Driver, target string) (string, error) {
	script := fmt.Sprintf(`fetch(%s, {credentials: 'include'}).then(r => r.ok ? r.text() : '')`, strconv.Quote(target))

	var body string
	if err := driver.Evaluate(ctx, script, &body); err != nil {
		return "", fmt.Errorf("failed to fetch subtitles: %w", err)
	}
	return body, nil
}

// ConvertJSON3ToSRT renders json3 caption events as numbered SRT cues.
// Events without text are skipped; newlines inside a cue become spaces.
func ConvertJSON3ToSRT(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", ErrNoSubtitles
	}

	var captions json3
	if err := json.Unmarshal([]byte(body), &captions); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoSubtitles, err)
	}

	var b strings.Builder
	cue := 1
	for _, event := range captions.Events {
		if len(event.Segs) == 0 {
			continue
		}
		var line strings.Builder
		for _, seg := range event.Segs {
			line.WriteString(strings.ReplaceAll(seg.UTF8, "\n", " "))
		}
		if strings.TrimSpace(line.String()) == "" {
			continue
		}

		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			cue, srtTimestamp(event.StartMs), srtTimestamp(event.StartMs+event.DurationMs), line.String())
		cue++
	}

	if cue == 1 {
		return "", ErrNoSubtitles
	}
	return b.String(), nil
}

// srtTimestamp formats milliseconds as HH:MM:SS,mmm
func srtTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := ms % 3_600_000 / 60_000
	seconds := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms%1000)
}
