package telegram

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"mediagrab_bot/internal/domain"
)

const mediaIDLength = 12

type cachedMedia struct {
	path      string
	mediaType domain.MediaType
}

type pendingSave struct {
	mediaID   string
	path      string
	mediaType domain.MediaType
	chatID    int64
}

// sessions tracks per-user chat state for this process: downloaded files
// that buttons refer to and saves waiting for a name.
type sessions struct {
	mu      sync.Mutex
	media   map[int64]map[string]cachedMedia
	pending map[int64]pendingSave
	newID   func() string
}

func newSessions() *sessions {
	return &sessions{
		media:   make(map[int64]map[string]cachedMedia),
		pending: make(map[int64]pendingSave),
		newID:   newMediaID,
	}
}

func newMediaID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:mediaIDLength]
}

func (s *sessions) remember(userID int64, path string, mediaType domain.MediaType) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if s.media[userID] == nil {
		s.media[userID] = make(map[string]cachedMedia)
	}
	s.media[userID][id] = cachedMedia{path: path, mediaType: mediaType}
	return id
}

func (s *sessions) lookup(userID int64, id string) (cachedMedia, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.media[userID][id]
	return entry, ok
}

func (s *sessions) forget(userID int64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.media[userID], id)
	if len(s.media[userID]) == 0 {
		delete(s.media, userID)
	}
}

func (s *sessions) beginSave(userID int64, p pendingSave) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[userID] = p
}

func (s *sessions) pendingSave(userID int64) (pendingSave, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	return p, ok
}

func (s *sessions) endSave(userID int64) (pendingSave, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	delete(s.pending, userID)
	return p, ok
}
