// -----------------------------------------------------------------------
// URL Classifier - Maps platform URLs to crawl categories
// -----------------------------------------------------------------------

package classifier

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ternarybob/spectare/internal/models"
)

// PlatformHost is the canonical host every URL is rewritten to
const PlatformHost = "www.youtube.com"

var platformBase = &url.URL{Scheme: "https", Host: PlatformHost, Path: "/"}

// videoIDPattern matches an id that follows a path separator or '=' sign.
// A match followed by '#' or '/' is a path segment, not an id.
var videoIDPattern = regexp.MustCompile(`[/=]([0-9A-Za-z_-]{10,})([#/]?)`)

var channelMarkers = []string{"/channel/", "/user/", "/c/"}

// channelListingSegments are channel tabs that already list videos
var channelListingSegments = map[string]bool{
	"videos":  true,
	"streams": true,
	"shorts":  true,
}

// Classify returns the category for raw, or false when raw is not a platform URL
func Classify(raw string) (models.Category, bool) {
	u, ok := parse(raw)
	if !ok {
		return "", false
	}
	return classify(u), true
}

func classify(u *url.URL) models.Category {
	if isShortHost(u.Host) {
		if shortLinkID(u) != "" {
			return models.CategoryDetail
		}
		return models.CategoryMaster
	}

	query := u.Query()
	if query.Get("v") != "" {
		return models.CategoryDetail
	}
	if query.Get("search_query") != "" {
		return models.CategorySearch
	}
	if embeddedID(u.Path) != "" {
		return models.CategoryDetail
	}
	for _, marker := range channelMarkers {
		if strings.Contains(u.Path+"/", marker) {
			return models.CategoryChannel
		}
	}
	return models.CategoryMaster
}

// Canonicalize returns the dedup form of raw: https on the canonical host,
// no fragment, and only the query parameters that identify the page.
func Canonicalize(raw string) (string, models.Category, bool) {
	u, ok := parse(raw)
	if !ok {
		return "", "", false
	}
	category := classify(u)

	canonical := &url.URL{Scheme: "https", Host: PlatformHost}

	switch category {
	case models.CategoryDetail:
		id := u.Query().Get("v")
		if id == "" {
			if isShortHost(u.Host) {
				id = shortLinkID(u)
			} else {
				id = embeddedID(u.Path)
			}
		}
		canonical.Path = "/watch"
		canonical.RawQuery = url.Values{"v": {id}}.Encode()

	case models.CategorySearch:
		query := u.Query()
		values := url.Values{"search_query": {query.Get("search_query")}}
		if sp := query.Get("sp"); sp != "" {
			values.Set("sp", sp)
		}
		canonical.Path = "/results"
		canonical.RawQuery = values.Encode()

	case models.CategoryChannel:
		canonical.Path = channelVideosPath(u.Path)

	default:
		p := strings.TrimSuffix(u.Path, "/")
		if p == "" || isShortHost(u.Host) {
			p = "/"
		}
		canonical.Path = p
		canonical.RawQuery = u.Query().Encode()
	}

	return canonical.String(), category, true
}

// VideoID extracts the platform video id from watch, short, embed and /shorts/ links
func VideoID(raw string) string {
	if u, ok := parse(raw); ok {
		if id := u.Query().Get("v"); validID(id) {
			return id
		}
		if isShortHost(u.Host) {
			if id := shortLinkID(u); id != "" {
				return id
			}
		}
		if id := embeddedID(u.Path); id != "" {
			return id
		}
	}

	for _, match := range videoIDPattern.FindAllStringSubmatch(raw, -1) {
		if match[2] == "" && len(match[1]) <= 12 {
			return match[1]
		}
	}
	return ""
}

// Resolve turns an href found on a page at base into an absolute URL
func Resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
		return "", false
	}

	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		baseURL = platformBase
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return baseURL.ResolveReference(ref).String(), true
}

// IsErrorStatus reports whether an HTTP status means the page could not be loaded
func IsErrorStatus(status int) bool {
	return status >= 400
}

func parse(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case strings.HasPrefix(raw, "/"):
		raw = "https://" + PlatformHost + raw
	case !strings.Contains(raw, "://"):
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.User != nil {
		return nil, false
	}
	u.Host = strings.ToLower(u.Hostname())
	if !isPlatformHost(u.Host) && !isShortHost(u.Host) {
		return nil, false
	}
	return u, true
}

func isPlatformHost(host string) bool {
	switch host {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		return true
	}
	return false
}

func isShortHost(host string) bool {
	return host == "youtu.be"
}

func shortLinkID(u *url.URL) string {
	id := strings.Trim(u.Path, "/")
	if validID(id) {
		return id
	}
	return ""
}

// embeddedID returns the id from /embed/, /shorts/, /v/ and /live/ paths
func embeddedID(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "embed", "shorts", "v", "live":
		if validID(parts[1]) {
			return parts[1]
		}
	}
	return ""
}

func validID(id string) bool {
	if len(id) < 10 || len(id) > 12 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func channelVideosPath(p string) string {
	p = strings.TrimSuffix(path.Clean(p), "/")
	if channelListingSegments[path.Base(p)] {
		return p
	}

	// Drop other tabs (about, playlists, featured) so every channel lists videos
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		if (part == "channel" || part == "user" || part == "c") && i+1 < len(parts) {
			return "/" + strings.Join(parts[:i+2], "/") + "/videos"
		}
	}
	return p + "/videos"
}
