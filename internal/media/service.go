// Package media fetches content behind social media links and derives audio
// tracks from downloaded videos. Video and slideshow links go through yt-dlp,
// Pinterest pins are scraped directly and audio is produced by ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/config"
	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/metrics"
)

var (
	// ErrUnsupportedURL is returned for links outside the supported platforms.
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrNoMedia is returned when a download finished without producing a usable file.
	ErrNoMedia = errors.New("no media found")
)

const maxToolOutput = 2000

// runCommand is overridable for tests.
var runCommand = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// File is one downloaded file.
type File struct {
	Path string
	Type domain.MediaType
}

// Result holds every file a single download produced, in name order.
type Result struct {
	Dir   string
	Files []File
}

// Primary returns the first file of the result.
func (r Result) Primary() (File, bool) {
	if len(r.Files) == 0 {
		return File{}, false
	}
	return r.Files[0], true
}

// Images returns the image files.
func (r Result) Images() []File {
	return r.ofType(domain.MediaImage)
}

// Audio returns the first audio file, if any.
func (r Result) Audio() (File, bool) {
	files := r.ofType(domain.MediaAudio)
	if len(files) == 0 {
		return File{}, false
	}
	return files[0], true
}

// Videos returns the video files.
func (r Result) Videos() []File {
	return r.ofType(domain.MediaVideo)
}

func (r Result) ofType(t domain.MediaType) []File {
	var out []File
	for _, f := range r.Files {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// Service downloads media and extracts audio.
type Service struct {
	ytdlp   string
	ffmpeg  string
	workDir string
	timeout time.Duration
	http    *http.Client
	logger  *logrus.Entry
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient replaces the client used for Pinterest pages and assets.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.http = client
		}
	}
}

// NewService builds a Service from configuration.
func NewService(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Service, error) {
	if strings.TrimSpace(cfg.DownloadDir) == "" {
		return nil, errors.New("download directory is required")
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if logger == nil {
		logger = logging.Logger()
	}

	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = config.DefaultDownloadTimeout
	}

	s := &Service{
		ytdlp:   orDefault(cfg.YTDLPPath, config.DefaultYTDLPPath),
		ffmpeg:  orDefault(cfg.FFmpegPath, config.DefaultFFmpegPath),
		workDir: cfg.DownloadDir,
		timeout: timeout,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Download fetches the content behind link into a fresh directory.
func (s *Service) Download(ctx context.Context, link string, kind domain.ContentKind, platform domain.Platform) (Result, error) {
	if platform == domain.PlatformUnknown {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, link)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dir, err := os.MkdirTemp(s.workDir, "dl-")
	if err != nil {
		return Result{}, fmt.Errorf("create download dir: %w", err)
	}

	logger := s.logger.WithFields(logging.Fields{
		"event":    "media_download",
		"platform": platform,
		"kind":     kind,
	})
	logger.Info("starting download")

	start := time.Now()
	var result Result
	if platform == domain.PlatformPinterest {
		result, err = s.downloadPinterest(ctx, dir, link, kind)
	} else {
		result, err = s.downloadWithYTDLP(ctx, dir, link, kind)
	}

	metrics.DownloadDuration.WithLabelValues(string(platform)).Observe(time.Since(start).Seconds())
	metrics.Downloads.WithLabelValues(string(platform), metrics.Outcome(err)).Inc()

	if err != nil {
		_ = os.RemoveAll(dir)
		logger.WithError(err).Warn("download failed")
		return Result{}, err
	}

	logger.WithField("files", len(result.Files)).Info("download finished")
	return result, nil
}

func (s *Service) downloadWithYTDLP(ctx context.Context, dir, link string, kind domain.ContentKind) (Result, error) {
	args := []string{
		"--no-warnings",
		"--no-check-certificates",
		"--restrict-filenames",
		"--quiet",
		"-o", filepath.Join(dir, "media_%(autonumber)s.%(ext)s"),
	}
	if kind == domain.KindSlideshow {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "-f", "best", "--no-playlist")
	}
	args = append(args, link)

	out, runErr := runCommand(ctx, dir, s.ytdlp, args...)

	result, err := collectFiles(dir)
	if err != nil {
		return Result{}, err
	}
	if len(result.Files) == 0 {
		if runErr != nil {
			return Result{}, fmt.Errorf("yt-dlp: %w: %s", runErr, trimOutput(out))
		}
		return Result{}, ErrNoMedia
	}
	if runErr != nil {
		// yt-dlp exits non-zero when a single playlist entry fails; keep what it produced.
		s.logger.WithFields(logging.Fields{
			"event":  "media_download_partial",
			"output": trimOutput(out),
		}).WithError(runErr).Warn("yt-dlp reported an error but produced files")
	}
	return result, nil
}

// ExtractAudio converts a video into an mp3 next to the download directory.
func (s *Service) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("video file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	audioDir := filepath.Join(s.workDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	audioPath := filepath.Join(audioDir, filepath.Base(filepath.Dir(videoPath))+"_"+base+".mp3")

	out, err := runCommand(ctx, audioDir, s.ffmpeg, "-i", videoPath, "-q:a", "0", "-map", "a", "-y", audioPath)
	if err == nil {
		if _, statErr := os.Stat(audioPath); statErr != nil {
			err = fmt.Errorf("output file not created: %w", statErr)
		}
	} else {
		err = fmt.Errorf("ffmpeg: %w: %s", err, trimOutput(out))
	}

	metrics.AudioExtractions.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.WithField("event", "audio_extract").WithError(err).Warn("audio extraction failed")
		return "", err
	}

	s.logger.WithField("event", "audio_extract").Info("audio extracted")
	return audioPath, nil
}

// CheckYTDLP reports whether the yt-dlp binary can be executed.
func (s *Service) CheckYTDLP(ctx context.Context) error {
	return s.checkTool(ctx, s.ytdlp, "--version")
}

// CheckFFmpeg reports whether the ffmpeg binary can be executed.
func (s *Service) CheckFFmpeg(ctx context.Context) error {
	return s.checkTool(ctx, s.ffmpeg, "-version")
}

func (s *Service) checkTool(ctx context.Context, name, flag string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := runCommand(ctx, s.workDir, name, flag)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, flag, err, trimOutput(out))
	}
	return nil
}

// collectFiles classifies every finished file in dir.
func collectFiles(dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("read download dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	result := Result{Dir: dir}
	for _, name := range names {
		path := filepath.Join(dir, name)
		result.Files = append(result.Files, File{Path: path, Type: domain.MediaTypeFromPath(path)})
	}
	return result, nil
}

func isPartial(name string) bool {
	for _, suffix := range []string{".part", ".ytdl", ".temp", ".json"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= maxToolOutput {
		return s
	}
	return s[:maxToolOutput] + "... (truncated)"
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
