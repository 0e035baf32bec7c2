package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/spectare/internal/browser"
	"github.com/ternarybob/spectare/internal/browser/browsertest"
)

func TestDetectChallenge(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		blocked bool
	}{
		{"video page", `<html><body><ytd-app><h1>Some video</h1></ytd-app></body></html>`, false},
		{"empty", ``, false},
		{"bot check", `<html><body><p>Sign in to confirm you're not a bot</p></body></html>`, true},
		{"bot check typographic apostrophe", `<p>Sign in to confirm you’re not a bot</p>`, true},
		{"bot check escaped apostrophe", `<p>Sign in to confirm you&#39;re not a bot</p>`, true},
		{"age gate", `<div id="reason">Sign in to confirm your age</div><p>This video may be inappropriate for some users.</p>`, false},
		{"unusual traffic", `<div>Our systems have detected unusual traffic from your computer network.</div>`, true},
		{"captcha form", `<form id="captcha-form"><script src="https://www.google.com/recaptcha/api.js"></script></form>`, true},
		{"recaptcha mention only", `<p>www.google.com/recaptcha is a service</p>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, blocked := browser.DetectChallenge(tt.html)
			assert.Equal(t, tt.blocked, blocked)
			if blocked {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCheckPage_ErrorStatus(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")

	_, err := browser.CheckPage(context.Background(), driver, "https://www.youtube.com/watch?v=abcdefghijk", 429)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrBlocked)

	var blocked *browser.BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, 429, blocked.Status)
	assert.Zero(t, driver.Called("HTML"), "status alone decides")
}

func TestCheckPage_Challenge(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Page = `<html><body>Before you continue, verify you are human</body></html>`

	html, err := browser.CheckPage(context.Background(), driver, "https://www.youtube.com/", 200)
	assert.ErrorIs(t, err, browser.ErrBlocked)
	assert.Equal(t, driver.Page, html)
}

func TestCheckPage_OK(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Page = `<html><body><ytd-app></ytd-app></body></html>`

	html, err := browser.CheckPage(context.Background(), driver, "https://www.youtube.com/", 200)
	require.NoError(t, err)
	assert.Equal(t, driver.Page, html)
}

func TestCheckPage_HTMLFailure(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Errors["HTML"] = browser.ErrTimeout

	_, err := browser.CheckPage(context.Background(), driver, "https://www.youtube.com/", 200)
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.NotErrorIs(t, err, browser.ErrBlocked)
}
