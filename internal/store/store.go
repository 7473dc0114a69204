// Package store keeps per-user saved media: files live under a storage
// directory while a pluggable index (bolt, MongoDB or PostgreSQL) maps
// user-chosen names to those files.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
)

// ErrNotFound is returned when a user has no saved media under a name.
var ErrNotFound = errors.New("media not found")

// Index persists saved media metadata. Find matches the exact name first and
// falls back to a case-insensitive match.
type Index interface {
	Put(ctx context.Context, entry domain.SavedMedia) error
	Find(ctx context.Context, userID int64, name string) (domain.SavedMedia, error)
	List(ctx context.Context, userID int64) ([]domain.SavedMedia, error)
	Remove(ctx context.Context, userID int64, name string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store combines an Index with the on-disk copies of saved files.
type Store struct {
	index  Index
	dir    string
	logger *logrus.Entry
	now    func() time.Time
}

// New constructs a Store rooted at dir.
func New(index Index, dir string, logger *logrus.Entry) (*Store, error) {
	if index == nil {
		return nil, errors.New("media index is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Store{
		index:  index,
		dir:    dir,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}, nil
}

// Save copies srcPath into the user's directory and records it under name.
// An existing entry with the same sanitized name is replaced.
func (s *Store) Save(ctx context.Context, userID int64, name, srcPath string, mediaType domain.MediaType) (domain.SavedMedia, error) {
	if userID == 0 {
		return domain.SavedMedia{}, errors.New("user id is required")
	}

	safeName := domain.SanitizeName(name)
	ext := filepath.Ext(srcPath)
	if ext == "" {
		ext = domain.DefaultExtension(mediaType)
	}
	fileName := safeName + ext

	userDir, err := s.userDir(userID)
	if err != nil {
		return domain.SavedMedia{}, err
	}

	previous, findErr := s.index.Find(ctx, userID, safeName)
	replacing := findErr == nil && previous.Name == safeName

	dest := filepath.Join(userDir, fileName)
	if err := copyFile(srcPath, dest); err != nil {
		return domain.SavedMedia{}, fmt.Errorf("copy media: %w", err)
	}

	entry := domain.SavedMedia{
		UserID:    userID,
		Name:      safeName,
		Type:      mediaType,
		Path:      fileName,
		CreatedAt: s.now(),
	}

	if err := s.index.Put(ctx, entry); err != nil {
		// The earlier entry still points at dest when the paths match.
		if !replacing || previous.Path != fileName {
			if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				s.logger.WithField("event", "media_save_cleanup").WithError(rmErr).Warn("failed to remove unindexed media file")
			}
		}
		return domain.SavedMedia{}, fmt.Errorf("index media: %w", err)
	}

	if replacing && previous.Path != fileName {
		if rmErr := os.Remove(filepath.Join(userDir, previous.Path)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.WithField("event", "media_replace_cleanup").WithError(rmErr).Warn("failed to remove replaced media file")
		}
	}

	s.logger.WithFields(logging.Fields{
		"event":      "media_saved",
		"user_id":    userID,
		"name":       safeName,
		"media_type": mediaType,
	}).Info("saved user media")

	entry.Path = filepath.Join(userDir, fileName)
	return entry, nil
}

// Retrieve returns the saved entry with Path resolved to the file on disk.
func (s *Store) Retrieve(ctx context.Context, userID int64, name string) (domain.SavedMedia, error) {
	entry, err := s.index.Find(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		return domain.SavedMedia{}, err
	}

	fullPath := filepath.Join(s.dir, userKey(userID), entry.Path)
	if _, err := os.Stat(fullPath); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":   "media_file_missing",
			"user_id": userID,
			"name":    entry.Name,
		}).WithError(err).Warn("saved media file is missing")
		return domain.SavedMedia{}, ErrNotFound
	}

	entry.Path = fullPath
	return entry, nil
}

// List returns the user's saved media ordered by name.
func (s *Store) List(ctx context.Context, userID int64) ([]domain.SavedMedia, error) {
	entries, err := s.index.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Delete removes both the saved file and its index entry. A file that is
// already gone does not fail the deletion.
func (s *Store) Delete(ctx context.Context, userID int64, name string) error {
	entry, err := s.index.Find(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		return err
	}

	fullPath := filepath.Join(s.dir, userKey(userID), entry.Path)
	if err := os.Remove(fullPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove media file: %w", err)
		}
		s.logger.WithFields(logging.Fields{
			"event":   "media_file_missing",
			"user_id": userID,
			"name":    entry.Name,
		}).Warn("deleting media whose file is already gone")
	}

	if err := s.index.Remove(ctx, userID, entry.Name); err != nil {
		return fmt.Errorf("remove media entry: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":   "media_deleted",
		"user_id": userID,
		"name":    entry.Name,
	}).Info("deleted user media")

	return nil
}

// Ping checks the index backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}

// Close releases the index backend.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.index == nil {
		return nil
	}
	return s.index.Close(ctx)
}

func (s *Store) userDir(userID int64) (string, error) {
	dir := filepath.Join(s.dir, userKey(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	return dir, nil
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
