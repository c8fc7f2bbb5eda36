package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkadenge/shulelink/internal/concern"
	"github.com/mkadenge/shulelink/internal/models"
)

// ThreadStore is the in-memory ThreadRepository used by tests and local
// development. It mirrors the postgres store's behavior exactly:
// validation, subject derivation, the reply status lifecycle, and
// monotonic message ordering.
type ThreadStore struct {
	mu       sync.RWMutex
	threads  map[uuid.UUID]*models.Thread
	messages map[uuid.UUID][]models.Message

	nextMsgID int64
	lastStamp time.Time

	// Now is the store's clock, swappable in tests.
	Now func() time.Time
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		threads:  make(map[uuid.UUID]*models.Thread),
		messages: make(map[uuid.UUID][]models.Message),
		Now:      time.Now,
	}
}

// stamp returns a timestamp that never goes backwards, so appended
// messages are always ordered even when the clock's resolution is
// coarser than the append rate.
func (s *ThreadStore) stamp() time.Time {
	now := s.Now()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

func (s *ThreadStore) CreateThread(ctx context.Context, initiator models.Viewer, child models.Child, subject, firstMessage string) (*models.Thread, error) {
	if strings.TrimSpace(firstMessage) == "" {
		return nil, concern.ErrEmptyMessage
	}
	if child.ID == uuid.Nil {
		return nil, concern.ErrNoChild
	}
	if strings.TrimSpace(subject) == "" {
		subject = concern.DeriveSubject(firstMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	th := &models.Thread{
		ID:                uuid.New(),
		CreatedByUserID:   initiator.ID,
		CreatedByUserName: initiator.Name,
		ChildID:           child.ID,
		ChildName:         child.Name,
		Subject:           subject,
		Status:            models.StatusPending,
		CreatedAt:         now,
		LastUpdated:       now,
		LastMessage: models.LastMessage{
			Text:       concern.TruncatePreview(firstMessage),
			SenderName: initiator.Name,
			Role:       initiator.Role,
		},
		LastReadBy: map[uuid.UUID]time.Time{},
	}
	s.threads[th.ID] = th

	s.nextMsgID++
	s.messages[th.ID] = []models.Message{{
		ID:         s.nextMsgID,
		ThreadID:   th.ID,
		SenderID:   initiator.ID,
		SenderName: initiator.Name,
		Role:       initiator.Role,
		Text:       firstMessage,
		CreatedAt:  now,
	}}

	out := cloneThread(th)
	return &out, nil
}

func (s *ThreadStore) AppendMessage(ctx context.Context, threadID uuid.UUID, sender models.Viewer, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, concern.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return nil, concern.ErrNotFound
	}

	now := s.stamp()
	s.nextMsgID++
	msg := models.Message{
		ID:         s.nextMsgID,
		ThreadID:   threadID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Role:       sender.Role,
		Text:       text,
		CreatedAt:  now,
	}
	s.messages[threadID] = append(s.messages[threadID], msg)

	th.Status = concern.NextStatus(th.Status, sender.Role)
	th.LastUpdated = now
	th.LastMessage = models.LastMessage{
		Text:       concern.TruncatePreview(text),
		SenderName: sender.Name,
		Role:       sender.Role,
	}

	return &msg, nil
}

func (s *ThreadStore) SetStatus(ctx context.Context, threadID uuid.UUID, status models.Status, by models.Viewer) error {
	if _, err := concern.ParseStatus(string(status)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return concern.ErrNotFound
	}

	now := s.stamp()
	th.Status = status
	th.LastUpdated = now
	if status == models.StatusSolved {
		th.ClosedBy = by.ID
		closedAt := now
		th.ClosedAt = &closedAt
	} else {
		th.ClosedBy = uuid.Nil
		th.ClosedAt = nil
	}
	return nil
}

func (s *ThreadStore) MarkRead(ctx context.Context, threadID, viewerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return concern.ErrNotFound
	}
	th.LastReadBy[viewerID] = s.stamp()
	return nil
}

func (s *ThreadStore) GetByID(ctx context.Context, threadID uuid.UUID) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	out := cloneThread(th)
	return &out, nil
}

func (s *ThreadStore) ListAll(ctx context.Context) ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]models.Thread, 0, len(s.threads))
	for _, th := range s.threads {
		threads = append(threads, cloneThread(th))
	}
	sortByLastUpdated(threads)
	return threads, nil
}

func (s *ThreadStore) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]models.Thread, 0)
	for _, th := range s.threads {
		if th.CreatedByUserID == parentID {
			threads = append(threads, cloneThread(th))
		}
	}
	sortByLastUpdated(threads)
	return threads, nil
}

func (s *ThreadStore) ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[threadID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func sortByLastUpdated(threads []models.Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastUpdated.After(threads[j].LastUpdated)
	})
}

// cloneThread deep-copies a thread so callers never share the store's
// internal lastReadBy map.
func cloneThread(th *models.Thread) models.Thread {
	out := *th
	out.LastReadBy = make(map[uuid.UUID]time.Time, len(th.LastReadBy))
	for viewer, at := range th.LastReadBy {
		out.LastReadBy[viewer] = at
	}
	if th.ClosedAt != nil {
		closedAt := *th.ClosedAt
		out.ClosedAt = &closedAt
	}
	return out
}
