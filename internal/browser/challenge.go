package browser

import (
	"context"
	"strings"

	"github.com/ternarybob/spectare/internal/classifier"
	"github.com/ternarybob/spectare/internal/interfaces"
)

var challengePatterns = []string{
	"verifying you are human",
	"verify you are human",
	"confirm you're not a bot",
	"confirm you’re not a bot",
	"confirm you&#39;re not a bot",
	"checking your browser",
	"unusual traffic from your computer network",
	"our systems have detected unusual traffic",
}

// DetectChallenge reports whether html is a bot check page rather than content
func DetectChallenge(html string) (string, bool) {
	lower := strings.ToLower(html)
	for _, pattern := range challengePatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	if strings.Contains(lower, "www.google.com/recaptcha") && strings.Contains(lower, "captcha-form") {
		return "captcha form", true
	}
	return "", false
}

// CheckPage returns a BlockedError when the navigation status or the rendered
// page shows the platform refused the request. The page HTML is returned for
// callers that parse it anyway.
func CheckPage(ctx context.Context, driver interfaces.Driver, url string, status int) (string, error) {
	if classifier.IsErrorStatus(status) {
		return "", &BlockedError{URL: url, Status: status}
	}

	html, err := driver.HTML(ctx)
	if err != nil {
		return "", err
	}
	if reason, blocked := DetectChallenge(html); blocked {
		return html, &BlockedError{URL: url, Reason: reason}
	}
	return html, nil
}
