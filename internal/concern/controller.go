package concern

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/notify"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository"
)

// View is the snapshot both controllers expose, so a single
// presentation layer can host either role.
type View struct {
	Threads        []models.Thread  `json:"threads"`
	SelectedThread *models.Thread   `json:"selectedThread"`
	Messages       []models.Message `json:"messages"`
	Loading        bool             `json:"loading"`
	Sending        bool             `json:"sending"`
	UnreadCount    int              `json:"unreadCount"`
}

// Controller is the contract shared by the parent and admin
// controllers. ParentController adds CreateThread and Children;
// AdminController adds UpdateStatus and SetFilter.
type Controller interface {
	// Snapshot returns the current view state.
	Snapshot() View

	// Updates delivers a fresh View after every state change. Slow
	// consumers only ever see the latest snapshot; intermediate ones
	// are coalesced away.
	Updates() <-chan View

	// SelectThread loads the thread's messages and marks it read for
	// this viewer (best-effort).
	SelectThread(ctx context.Context, threadID uuid.UUID) error

	// ClearSelection drops the selected thread and its messages.
	ClearSelection()

	// SendReply appends a message to the selected thread.
	SendReply(ctx context.Context, text string) error

	// Refresh re-fetches the feed on demand (pull-to-refresh); the
	// live subscription calls the same path automatically.
	Refresh(ctx context.Context)

	// Close cancels the live subscription. The controller is unusable
	// afterwards.
	Close()
}

// fetchTimeout bounds the re-fetch triggered by a change event, which
// runs outside any request context.
const fetchTimeout = 10 * time.Second

// session is the state and subscription plumbing shared by both
// controllers. The concrete controllers configure it with their
// role-specific list query, event filter, and snapshot hooks.
type session struct {
	repo     repository.ThreadRepository
	bus      realtime.Bus
	notifier notify.Notifier
	logger   *zap.Logger
	viewer   models.Viewer
	tracker  *UnreadTracker

	// listThreads is the role's feed query: global for admins, scoped
	// to the viewer for parents.
	listThreads func(ctx context.Context) ([]models.Thread, error)
	// accept decides whether a bus event concerns this feed.
	accept func(ev realtime.Event) bool
	// observe, when set, sees every fresh thread snapshot before it is
	// published (the admin's new-concern watcher hooks in here).
	observe func(threads []models.Thread)
	// filter, when set, narrows the threads exposed in the View
	// without touching the underlying snapshot.
	filter func(th models.Thread) bool

	mu         sync.Mutex
	threads    []models.Thread
	selectedID uuid.UUID
	messages   []models.Message
	loading    bool
	sending    bool

	updates   chan View
	cancelSub func()
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(
	repo repository.ThreadRepository,
	bus realtime.Bus,
	notifier notify.Notifier,
	logger *zap.Logger,
	viewer models.Viewer,
) *session {
	return &session{
		repo:     repo,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		viewer:   viewer,
		tracker:  NewUnreadTracker(viewer.ID),
		threads:  []models.Thread{},
		messages: []models.Message{},
		loading:  true,
		updates:  make(chan View, 1),
		done:     make(chan struct{}),
	}
}

// start performs the initial fetch and begins consuming change events.
// Called by the concrete constructors once their hooks are in place.
func (s *session) start(ctx context.Context) {
	events, cancel := s.bus.Subscribe()
	s.cancelSub = cancel

	s.refresh(ctx)
	s.mu.Lock()
	s.loading = false
	s.pushUpdateLocked()
	s.mu.Unlock()

	go s.loop(events)
}

func (s *session) loop(events <-chan realtime.Event) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if s.accept != nil && !s.accept(ev) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
			s.refresh(ctx)
			cancel()
		}
	}
}

// refresh re-fetches the thread feed and, when a thread is selected,
// its message log. A transport failure degrades the feed to empty
// rather than surfacing an error: the subscription stays alive and the
// next successful event repopulates it.
func (s *session) refresh(ctx context.Context) {
	threads, err := s.listThreads(ctx)
	if err != nil {
		s.logger.Error("refresh thread feed", zap.Error(err))
		threads = []models.Thread{}
	}
	if s.observe != nil {
		s.observe(threads)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = threads

	if s.selectedID != uuid.Nil {
		messages, err := s.repo.ListMessages(ctx, s.selectedID)
		if err != nil {
			s.logger.Error("refresh messages", zap.Error(err))
		} else {
			s.messages = messages
		}
	}
	s.pushUpdateLocked()
}

func (s *session) Refresh(ctx context.Context) {
	s.refresh(ctx)
}

func (s *session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() View {
	visible := s.threads
	if s.filter != nil {
		visible = make([]models.Thread, 0, len(s.threads))
		for _, th := range s.threads {
			if s.filter(th) {
				visible = append(visible, th)
			}
		}
	}

	v := View{
		Threads:     visible,
		Messages:    s.messages,
		Loading:     s.loading,
		Sending:     s.sending,
		UnreadCount: s.tracker.CountUnread(s.threads),
	}
	if s.selectedID != uuid.Nil {
		for i := range s.threads {
			if s.threads[i].ID == s.selectedID {
				th := s.threads[i]
				v.SelectedThread = &th
				break
			}
		}
	}
	return v
}

// pushUpdateLocked publishes the latest snapshot, replacing any
// undelivered one.
func (s *session) pushUpdateLocked() {
	v := s.snapshotLocked()
	for {
		select {
		case s.updates <- v:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

func (s *session) Updates() <-chan View {
	return s.updates
}

func (s *session) SelectThread(ctx context.Context, threadID uuid.UUID) error {
	th, err := s.repo.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if th == nil {
		return ErrNotFound
	}

	messages, err := s.repo.ListMessages(ctx, threadID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.selectedID = threadID
	s.messages = messages
	s.pushUpdateLocked()
	s.mu.Unlock()

	// Mark-read is best-effort: a failure is logged and never blocks
	// opening the thread. The in-flight write counts as read so the
	// unread badge doesn't flicker while the server timestamp
	// round-trips.
	s.tracker.MarkPending(threadID)
	if err := s.repo.MarkRead(ctx, threadID, s.viewer.ID); err != nil {
		s.logger.Warn("mark read failed",
			zap.String("thread_id", threadID.String()),
			zap.Error(err),
		)
	}
	s.refresh(ctx)
	s.tracker.Resolve(threadID)

	s.mu.Lock()
	s.pushUpdateLocked()
	s.mu.Unlock()
	return nil
}

func (s *session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = uuid.Nil
	s.messages = []models.Message{}
	s.pushUpdateLocked()
}

func (s *session) SendReply(ctx context.Context, text string) error {
	s.mu.Lock()
	selectedID := s.selectedID
	var selected *models.Thread
	for i := range s.threads {
		if s.threads[i].ID == selectedID {
			th := s.threads[i]
			selected = &th
			break
		}
	}
	s.mu.Unlock()

	if selectedID == uuid.Nil {
		return ErrNoSelection
	}
	// The solved gate lives here, not in the repository: the
	// conversation is closed for normal replies once staff mark it
	// solved.
	if selected != nil && selected.Status == models.StatusSolved {
		s.notifier.Notify(notify.Notification{Level: notify.LevelError, Text: ErrThreadSolved.Error()})
		return ErrThreadSolved
	}

	s.setSending(true)
	defer s.setSending(false)

	msg, err := s.repo.AppendMessage(ctx, selectedID, s.viewer, text)
	if err != nil {
		if !errors.Is(err, ErrEmptyMessage) {
			s.logger.Error("send reply", zap.Error(err))
		}
		s.notifier.Notify(notify.Notification{Level: notify.LevelError, Text: "Failed to send reply. Please try again."})
		return err
	}

	s.bus.Publish(realtime.Event{
		Kind:     realtime.EventMessageAdded,
		ThreadID: msg.ThreadID,
		ParentID: s.parentOf(selectedID, selected),
	})
	s.refresh(ctx)
	return nil
}

func (s *session) setSending(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = v
	s.pushUpdateLocked()
}

// parentOf resolves the thread creator for event routing, falling back
// to a lookup when the thread isn't in the local snapshot.
func (s *session) parentOf(threadID uuid.UUID, cached *models.Thread) uuid.UUID {
	if cached != nil {
		return cached.CreatedByUserID
	}
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	th, err := s.repo.GetByID(ctx, threadID)
	if err != nil || th == nil {
		return uuid.Nil
	}
	return th.CreatedByUserID
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cancelSub != nil {
			s.cancelSub()
		}
	})
}
