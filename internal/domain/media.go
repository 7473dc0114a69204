package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MediaType classifies a media file delivered to or saved by a user.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaImage MediaType = "image"
)

// MaxNameLength bounds user supplied names for saved media.
const MaxNameLength = 50

const defaultSavedName = "media_file"

var (
	videoExtensions = map[string]struct{}{
		".mp4": {}, ".avi": {}, ".mov": {}, ".flv": {}, ".wmv": {}, ".mkv": {}, ".webm": {},
	}
	audioExtensions = map[string]struct{}{
		".mp3": {}, ".wav": {}, ".ogg": {}, ".m4a": {}, ".flac": {}, ".aac": {},
	}
	imageExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	}

	invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// SavedMedia is a named media file a user kept for later retrieval.
type SavedMedia struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Name      string    `bson:"name" json:"name"`
	Type      MediaType `bson:"type" json:"type"`
	Path      string    `bson:"path" json:"path"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ParseMediaType maps a free-form value to a MediaType, reporting whether it is known.
func ParseMediaType(value string) (MediaType, bool) {
	switch MediaType(strings.ToLower(strings.TrimSpace(value))) {
	case MediaVideo:
		return MediaVideo, true
	case MediaAudio:
		return MediaAudio, true
	case MediaImage:
		return MediaImage, true
	default:
		return "", false
	}
}

// Icon returns the list marker shown next to a saved entry.
func (t MediaType) Icon() string {
	switch t {
	case MediaAudio:
		return "🎵"
	case MediaImage:
		return "🖼️"
	default:
		return "🎬"
	}
}

// Title returns the capitalized type name used in chat replies.
func (t MediaType) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// MediaTypeFromPath infers the media type from a file extension. Unknown
// extensions are treated as video.
func MediaTypeFromPath(path string) MediaType {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := audioExtensions[ext]; ok {
		return MediaAudio
	}
	if _, ok := imageExtensions[ext]; ok {
		return MediaImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return MediaVideo
	}
	return MediaVideo
}

// DefaultExtension is used when a saved source file has no extension.
func DefaultExtension(mediaType MediaType) string {
	switch mediaType {
	case MediaVideo:
		return ".mp4"
	case MediaImage:
		return ".jpg"
	default:
		return ".mp3"
	}
}

// SanitizeName makes a user supplied name safe to use as a file name.
func SanitizeName(name string) string {
	sanitized := invalidNameChars.ReplaceAllString(name, "_")
	sanitized = truncateRunes(sanitized, MaxNameLength)
	sanitized = strings.TrimSpace(sanitized)
	if sanitized == "" {
		return defaultSavedName
	}
	return sanitized
}

// ValidName reports whether a name can be used to save media.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && utf8.RuneCountInString(name) <= MaxNameLength
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
