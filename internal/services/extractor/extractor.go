// -----------------------------------------------------------------------
// Detail Extractor - Reads a rendered video page into a VideoRecord
// -----------------------------------------------------------------------

package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/classifier"
	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// ErrIncompleteRecord means the page rendered without the video metadata
var ErrIncompleteRecord = errors.New("video page has no title")

const commentsTurnedOffText = "comments are turned off"

// Extractor reads video detail pages
type Extractor struct {
	config Config
	logger arbor.ILogger
	now    func() time.Time
}

// NewExtractor creates an extractor
func NewExtractor(config Config, logger arbor.ILogger) *Extractor {
	return &Extractor{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Extract scrolls the page loaded in driver so comments render, then reads
// the record and, when enabled, its subtitles
func (x *Extractor) Extract(ctx context.Context, driver interfaces.Driver, item *models.WorkItem) (*models.VideoRecord, error) {
	// The comments header only renders after two scrolls
	for i := 0; i < 2; i++ {
		if err := driver.ScrollBy(ctx, 0); err != nil {
			return nil, fmt.Errorf("failed to scroll video page: %w", err)
		}
		if i == 0 {
			if err := common.Sleep(ctx, x.config.SettleInterval); err != nil {
				return nil, err
			}
		}
	}

	html, err := driver.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read video page: %w", err)
	}

	record, err := x.Parse(html, item.URL)
	if err != nil {
		return nil, err
	}
	record.SearchTerm = item.SearchTerm

	if x.config.DownloadSubtitles {
		subtitles, kind, err := FetchSubtitles(ctx, driver, html, x.config.SubtitlesLanguage)
		if err != nil {
			x.logger.Warn().Err(err).Str("url", item.URL).Msg("No subtitles found")
		} else {
			record.Subtitles = subtitles
			record.SubtitlesType = kind
		}
	}

	x.logger.Debug().
		Str("id", record.ID).
		Str("title", record.Title).
		Int64("views", record.ViewCount).
		Msg("Video page extracted")

	return record, nil
}

// Parse reads a rendered watch page
func (x *Extractor) Parse(html, pageURL string) (*models.VideoRecord, error) {
	doc, err := createDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse video page: %w", err)
	}
	sel := x.config.Selectors

	record := &models.VideoRecord{
		ID:        classifier.VideoID(pageURL),
		URL:       pageURL,
		ScrapedAt: x.now(),
	}

	record.Title = extractText(doc, sel.Title)
	if record.Title == "" {
		record.Title = metaContent(doc, `meta[itemprop="name"]`)
	}
	if record.Title == "" {
		record.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	if record.Title == "" {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteRecord, pageURL)
	}

	if views := extractText(doc, sel.ViewCount); views != "" {
		record.ViewCount = common.UnformatNumbers(views)
	} else {
		record.ViewCount = common.UnformatNumbers(metaContent(doc, `meta[itemprop="interactionCount"]`))
	}

	date := extractText(doc, sel.Date)
	if date == "" {
		date = metaContent(doc, `meta[itemprop="datePublished"]`)
	}
	if date == "" {
		date = metaContent(doc, `meta[itemprop="uploadDate"]`)
	}
	record.Date = normalizeUploadDate(date)

	record.Likes = x.likes(doc)

	if channel := firstMatch(doc, sel.Channel); channel != nil {
		record.ChannelName = collapseSpace(channel.Text())
		if href, ok := channel.Attr("href"); ok {
			record.ChannelURL, _ = classifier.Resolve(pageURL, href)
		}
	}
	if record.ChannelName == "" {
		record.ChannelName = strings.TrimSpace(doc.Find(`[itemprop="author"] [itemprop="name"]`).First().AttrOr("content", ""))
	}
	if record.ChannelURL == "" {
		if href := doc.Find(`[itemprop="author"] [itemprop="url"]`).First().AttrOr("href", ""); href != "" {
			record.ChannelURL, _ = classifier.Resolve(pageURL, href)
		}
	}

	subscribers := extractText(doc, sel.Subscribers)
	record.NumberOfSubscribers = common.UnformatNumbers(strings.TrimSpace(strings.ReplaceAll(strings.ToLower(subscribers), "subscribers", "")))

	record.Duration = extractText(doc, sel.Duration)
	if record.Duration == "" {
		record.Duration = clockDuration(metaContent(doc, `meta[itemprop="duration"]`))
	}

	if disabled := extractText(doc, sel.CommentsDisabled); strings.Contains(strings.ToLower(disabled), commentsTurnedOffText) {
		record.CommentsTurnedOff = true
	} else {
		record.CommentsCount = common.UnformatNumbers(extractText(doc, sel.CommentsCount))
	}

	record.Description = x.description(doc, pageURL)

	return record, nil
}

// likes reads the like count from the button text or, when the count is only
// announced to screen readers, from its label
func (x *Extractor) likes(doc *goquery.Document) int64 {
	if text := extractText(doc, x.config.Selectors.Likes); text != "" {
		if n := common.UnformatNumbers(text); n > 0 {
			return n
		}
	}

	var likes int64
	doc.Find(`like-button-view-model button[aria-label], #segmented-like-button button[aria-label]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		likes = common.UnformatNumbers(s.AttrOr("aria-label", ""))
		return likes == 0
	})
	return likes
}

// description converts the description block to markdown
func (x *Extractor) description(doc *goquery.Document, pageURL string) string {
	selection := firstMatch(doc, x.config.Selectors.Description)
	if selection == nil {
		return metaContent(doc, `meta[name="description"]`)
	}

	html, err := selection.Html()
	if err != nil || html == "" {
		return collapseSpace(selection.Text())
	}

	mdConverter := md.NewConverter(pageURL, true, nil)
	markdown, err := mdConverter.ConvertString(html)
	if err != nil {
		x.logger.Debug().Err(err).Msg("Failed to convert description to markdown")
		return collapseSpace(selection.Text())
	}
	return strings.TrimSpace(markdown)
}
