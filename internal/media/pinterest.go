package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	dimensionPattern = regexp.MustCompile(`(\d+)x(\d+)?`)
	imageMarkers     = []string{"jpg", "jpeg", "png", "webp", "gif"}
)

func (s *Service) downloadPinterest(ctx context.Context, dir, link string, kind domain.ContentKind) (Result, error) {
	pageURL := s.resolveShortLink(ctx, link)

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return Result{}, err
	}

	var (
		assetURL string
		mediaTyp domain.MediaType
	)
	if kind == domain.KindImage {
		assetURL, mediaTyp = findPinterestImage(doc), domain.MediaImage
	} else {
		assetURL, mediaTyp = findPinterestVideo(doc), domain.MediaVideo
		if assetURL != "" && looksLikeImage(assetURL) {
			return Result{}, fmt.Errorf("%w: pin video resolved to an image", ErrNoMedia)
		}
	}
	if assetURL == "" {
		return Result{}, fmt.Errorf("%w: no %s on pinterest page", ErrNoMedia, mediaTyp)
	}

	assetURL = absoluteURL(pageURL, assetURL)
	path, err := s.fetchAsset(ctx, dir, assetURL, mediaTyp)
	if err != nil {
		return Result{}, err
	}

	return Result{Dir: dir, Files: []File{{Path: path, Type: mediaTyp}}}, nil
}

// resolveShortLink follows pin.it redirects; failures keep the original link.
func (s *Service) resolveShortLink(ctx context.Context, link string) string {
	parsed, err := url.Parse(link)
	if err != nil || !strings.Contains(strings.ToLower(parsed.Host), "pin.it") {
		return link
	}

	req, err := s.newRequest(ctx, http.MethodHead, link)
	if err != nil {
		return link
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.WithField("event", "pinterest_resolve").WithError(err).Warn("failed to follow short link")
		return link
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Request == nil || resp.Request.URL == nil {
		return link
	}

	resolved := resp.Request.URL.String()
	s.logger.WithFields(logging.Fields{"event": "pinterest_resolve", "resolved": resolved}).Debug("resolved short link")
	return resolved
}

func (s *Service) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := s.newRequest(ctx, http.MethodGet, pageURL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pinterest page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pinterest page: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse pinterest page: %w", err)
	}
	return doc, nil
}

func (s *Service) fetchAsset(ctx context.Context, dir, assetURL string, mediaType domain.MediaType) (string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, assetURL)
	if err != nil {
		return "", err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch pinterest %s: %w", mediaType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch pinterest %s: unexpected status %d", mediaType, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var ext string
	if mediaType == domain.MediaImage {
		ext = imageExtension(contentType)
	} else {
		if !strings.Contains(contentType, "video") && !strings.Contains(contentType, "octet-stream") {
			return "", fmt.Errorf("%w: content is not a video (%s)", ErrNoMedia, contentType)
		}
		ext = videoExtension(assetURL)
	}

	path := filepath.Join(dir, "pinterest_"+string(mediaType)+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s file: %w", mediaType, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("write %s file: %w", mediaType, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.pinterest.com/")
	return req, nil
}

// findPinterestImage tries og:image, then the widest pinimg <img>, then the
// closeup image container.
func findPinterestImage(doc *goquery.Document) string {
	if content := metaContent(doc, "og:image"); content != "" {
		return content
	}

	best, bestWidth := "", -1
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" || !(strings.Contains(src, "pinimg.com") || strings.Contains(src, "pinterest.com")) {
			return
		}
		if width := imageWidth(img, src); width > bestWidth {
			best, bestWidth = src, width
		}
	})
	if best != "" {
		return best
	}

	var closeup string
	doc.Find(`[data-test-id="pin-closeup-image"] img`).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		closeup, _ = img.Attr("src")
		return closeup == ""
	})
	return closeup
}

// findPinterestVideo tries og:video, og:video:url, <video>/<source>, JSON-LD
// and finally the embedded page state.
func findPinterestVideo(doc *goquery.Document) string {
	for _, property := range []string{"og:video", "og:video:url"} {
		if content := metaContent(doc, property); content != "" {
			return content
		}
	}

	var found string
	doc.Find("video").EachWithBreak(func(_ int, video *goquery.Selection) bool {
		if src, _ := video.Attr("src"); src != "" {
			found = src
			return false
		}
		video.Find("source").EachWithBreak(func(_ int, source *goquery.Selection) bool {
			found, _ = source.Attr("src")
			return found == ""
		})
		return found == ""
	})
	if found != "" {
		return found
	}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		var data struct {
			Video struct {
				ContentURL string `json:"contentUrl"`
			} `json:"video"`
		}
		if json.Unmarshal([]byte(script.Text()), &data) == nil && data.Video.ContentURL != "" {
			found = data.Video.ContentURL
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	doc.Find(`script[type="application/json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := script.Text()
		if !strings.Contains(text, `"videos"`) {
			return true
		}
		found = videoFromPageState(text)
		return found == ""
	})
	return found
}

type pageState struct {
	Props struct {
		InitialReduxState struct {
			Pins map[string]struct {
				Videos *struct {
					VideoList map[string]struct {
						URL   string  `json:"url"`
						Width float64 `json:"width"`
					} `json:"video_list"`
				} `json:"videos"`
			} `json:"pins"`
		} `json:"initialReduxState"`
	} `json:"props"`
}

// videoFromPageState picks the widest rendition from the embedded pin state.
func videoFromPageState(raw string) string {
	var state pageState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return ""
	}

	best, bestWidth := "", 0.0
	for _, pin := range state.Props.InitialReduxState.Pins {
		if pin.Videos == nil {
			continue
		}
		for _, video := range pin.Videos.VideoList {
			if video.URL != "" && video.Width > bestWidth {
				best, bestWidth = video.URL, video.Width
			}
		}
		if best != "" {
			break
		}
	}
	return best
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

func imageWidth(img *goquery.Selection, src string) int {
	if raw, ok := img.Attr("width"); ok {
		if width, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return width
		}
		return 0
	}
	if m := dimensionPattern.FindStringSubmatch(src); m != nil {
		width, _ := strconv.Atoi(m[1])
		return width
	}
	return 0
}

func looksLikeImage(assetURL string) bool {
	lower := strings.ToLower(assetURL)
	for _, marker := range imageMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func imageExtension(contentType string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case strings.Contains(mediaType, "png"):
		return ".png"
	case strings.Contains(mediaType, "gif"):
		return ".gif"
	case strings.Contains(mediaType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

func videoExtension(assetURL string) string {
	lower := strings.ToLower(assetURL)
	switch {
	case strings.Contains(lower, "mp4"):
		return ".mp4"
	case strings.Contains(lower, "webm"):
		return ".webm"
	case strings.Contains(lower, "mov"):
		return ".mov"
	default:
		return ".mp4"
	}
}

func absoluteURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
