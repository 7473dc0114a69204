// Package domain defines the media and link vocabulary shared by the bot,
// the downloaders and the storage backends.
package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies the social network a link points to.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformPinterest Platform = "pinterest"
	PlatformUnknown   Platform = "unknown"
)

// ContentKind is what a link is expected to yield once downloaded.
type ContentKind string

const (
	KindVideo     ContentKind = "video"
	KindImage     ContentKind = "image"
	KindSlideshow ContentKind = "slideshow"
)

var (
	urlPattern = regexp.MustCompile(`https?://(?:[-\w.]|(?:%[\da-fA-F]{2}))+[^\s]*`)

	supportedHosts = []struct {
		fragment string
		platform Platform
	}{
		{"tiktok.com", PlatformTikTok},
		{"instagram.com", PlatformInstagram},
		{"youtube.com", PlatformYouTube},
		{"youtu.be", PlatformYouTube},
		{"pinterest.com", PlatformPinterest},
		{"pin.it", PlatformPinterest},
	}

	pinterestVideoMarkers = []string{"/video/", "watch/", "player/", "reel/"}

	groupPlatforms = map[Platform]struct{}{
		PlatformTikTok:    {},
		PlatformInstagram: {},
		PlatformPinterest: {},
	}
)

// ExtractURL returns the first link in text that points to a supported
// platform.
func ExtractURL(text string) (string, bool) {
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		if PlatformOf(candidate) != PlatformUnknown {
			return candidate, true
		}
	}
	return "", false
}

// PlatformOf maps a link to its platform by host.
func PlatformOf(link string) Platform {
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	for _, supported := range supportedHosts {
		if host == supported.fragment || strings.HasSuffix(host, "."+supported.fragment) {
			return supported.platform
		}
	}
	return PlatformUnknown
}

// ClassifyURL reports what content a link is expected to produce.
func ClassifyURL(link string) (ContentKind, Platform) {
	platform := PlatformOf(link)

	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return KindVideo, platform
	}
	path := strings.ToLower(parsed.Path)

	switch platform {
	case PlatformPinterest:
		for _, marker := range pinterestVideoMarkers {
			if strings.Contains(path, marker) {
				return KindVideo, platform
			}
		}
		return KindImage, platform
	case PlatformTikTok:
		if strings.Contains(path, "/photo/") {
			return KindSlideshow, platform
		}
	}

	return KindVideo, platform
}

// AllowedInGroups reports whether links from the platform are handled in
// group chats.
func AllowedInGroups(platform Platform) bool {
	_, ok := groupPlatforms[platform]
	return ok
}
