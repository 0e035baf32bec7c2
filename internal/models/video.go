package models

import "time"

// VideoRecord is one output row. Detail pages fill every field they can find;
// listing-only records (Simplified) carry what the result tile shows.
type VideoRecord struct {
	ID                  string    `json:"id"`
	URL                 string    `json:"url"`
	Title               string    `json:"title"`
	ViewCount           int64     `json:"viewCount"`
	Date                string    `json:"date"`
	Likes               int64     `json:"likes"`
	ChannelName         string    `json:"channelName"`
	ChannelURL          string    `json:"channelUrl"`
	NumberOfSubscribers int64     `json:"numberOfSubscribers"`
	Duration            string    `json:"duration"`
	CommentsCount       int64     `json:"commentsCount"`
	CommentsTurnedOff   bool      `json:"commentsTurnedOff"`
	Description         string    `json:"description,omitempty"`
	Subtitles           string    `json:"subtitles,omitempty"`
	SubtitlesType       string    `json:"subtitlesType,omitempty"`
	SearchTerm          string    `json:"searchTerm,omitempty"`
	Simplified          bool      `json:"simplified,omitempty" badgerholdIndex:"Simplified"`
	ScrapedAt           time.Time `json:"scrapedAt"`
}

// DebugRecord describes a request that failed permanently
type DebugRecord struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Category   Category  `json:"category"`
	SearchTerm string    `json:"searchTerm,omitempty"`
	Attempts   int       `json:"attempts"`
	Errors     []string  `json:"errors"`
	FailedAt   time.Time `json:"failedAt"`
}
