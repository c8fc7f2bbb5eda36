package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkadenge/shulelink/internal/concern"
	"github.com/mkadenge/shulelink/internal/models"
)

// ThreadStore persists concern threads in three tables:
//
//	concern_threads  (id uuid pk, created_by_user_id, created_by_user_name,
//	                  child_id, child_name, subject, status, created_at,
//	                  last_updated, last_message_text, last_message_sender,
//	                  last_message_role, closed_by uuid null, closed_at null)
//	concern_messages (id bigserial pk, thread_id fk, sender_id, sender_name,
//	                  role, text, created_at)
//	concern_reads    (thread_id, viewer_id, read_at; pk (thread_id, viewer_id))
//
// The thread's lastReadBy map is assembled from concern_reads on every
// read, so a viewer's mark-read never races a thread update at the row
// level.
type ThreadStore struct {
	pool *pgxpool.Pool
}

func NewThreadStore(pool *pgxpool.Pool) *ThreadStore {
	return &ThreadStore{pool: pool}
}

const threadColumns = `id, created_by_user_id, created_by_user_name, child_id, child_name,
	subject, status, created_at, last_updated,
	last_message_text, last_message_sender, last_message_role,
	closed_by, closed_at`

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

	// The thread row and its first message commit together: a thread
	// with zero messages cannot exist.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create thread: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO concern_threads (
			id, created_by_user_id, created_by_user_name, child_id, child_name,
			subject, status, created_at, last_updated,
			last_message_text, last_message_sender, last_message_role
		)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, $5, $6, now(), now(), $7, $8, $9)
		RETURNING id, created_at, last_updated`

	th := models.Thread{
		CreatedByUserID:   initiator.ID,
		CreatedByUserName: initiator.Name,
		ChildID:           child.ID,
		ChildName:         child.Name,
		Subject:           subject,
		Status:            models.StatusPending,
		LastMessage: models.LastMessage{
			Text:       concern.TruncatePreview(firstMessage),
			SenderName: initiator.Name,
			Role:       initiator.Role,
		},
		LastReadBy: map[uuid.UUID]time.Time{},
	}
	err = tx.QueryRow(ctx, query,
		initiator.ID, initiator.Name, child.ID, child.Name,
		subject, models.StatusPending,
		th.LastMessage.Text, initiator.Name, initiator.Role,
	).Scan(&th.ID, &th.CreatedAt, &th.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO concern_messages (thread_id, sender_id, sender_name, role, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		th.ID, initiator.ID, initiator.Name, initiator.Role, firstMessage, th.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert first message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create thread: %w", err)
	}
	return &th, nil
}

func (s *ThreadStore) AppendMessage(ctx context.Context, threadID uuid.UUID, sender models.Viewer, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, concern.ErrEmptyMessage
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the thread row so concurrent replies serialize their status
	// and preview updates instead of clobbering each other blindly.
	var current models.Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM concern_threads WHERE id = $1 FOR UPDATE`,
		threadID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, concern.ErrNotFound
		}
		return nil, fmt.Errorf("lock thread: %w", err)
	}

	msg := models.Message{
		ThreadID:   threadID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Role:       sender.Role,
		Text:       text,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO concern_messages (thread_id, sender_id, sender_name, role, text, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`,
		threadID, sender.ID, sender.Name, sender.Role, text,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// lastUpdated takes the message's own timestamp so the feed order
	// and the message log never disagree.
	_, err = tx.Exec(ctx, `
		UPDATE concern_threads
		SET status = $2, last_updated = $3,
		    last_message_text = $4, last_message_sender = $5, last_message_role = $6
		WHERE id = $1`,
		threadID, concern.NextStatus(current, sender.Role), msg.CreatedAt,
		concern.TruncatePreview(text), sender.Name, sender.Role,
	)
	if err != nil {
		return nil, fmt.Errorf("update thread preview: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append message: %w", err)
	}
	return &msg, nil
}

func (s *ThreadStore) SetStatus(ctx context.Context, threadID uuid.UUID, status models.Status, by models.Viewer) error {
	if _, err := concern.ParseStatus(string(status)); err != nil {
		return err
	}

	// closed_by/closed_at travel with solved and only with solved; an
	// explicit reopen clears them.
	tag, err := s.pool.Exec(ctx, `
		UPDATE concern_threads
		SET status = $2,
		    last_updated = now(),
		    closed_by = CASE WHEN $2 = 'solved' THEN $3 ELSE NULL END,
		    closed_at = CASE WHEN $2 = 'solved' THEN now() ELSE NULL END
		WHERE id = $1`,
		threadID, status, by.ID,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return concern.ErrNotFound
	}
	return nil
}

func (s *ThreadStore) MarkRead(ctx context.Context, threadID, viewerID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO concern_reads (thread_id, viewer_id, read_at)
		VALUES ($1, $2, now())
		ON CONFLICT (thread_id, viewer_id) DO UPDATE SET read_at = now()`,
		threadID, viewerID,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *ThreadStore) GetByID(ctx context.Context, threadID uuid.UUID) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM concern_threads WHERE id = $1`

	th, err := scanThread(s.pool.QueryRow(ctx, query, threadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if err := s.loadReads(ctx, []*models.Thread{th}); err != nil {
		return nil, err
	}
	return th, nil
}

func (s *ThreadStore) ListAll(ctx context.Context) ([]models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM concern_threads ORDER BY last_updated DESC`
	return s.listThreads(ctx, query)
}

func (s *ThreadStore) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM concern_threads
		WHERE created_by_user_id = $1
		ORDER BY last_updated DESC`
	return s.listThreads(ctx, query, parentID)
}

func (s *ThreadStore) ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, sender_name, role, text, created_at
		FROM concern_messages
		WHERE thread_id = $1
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Role,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *ThreadStore) listThreads(ctx context.Context, query string, args ...any) ([]models.Thread, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := make([]models.Thread, 0)
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, *th)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	refs := make([]*models.Thread, len(threads))
	for i := range threads {
		refs[i] = &threads[i]
	}
	if err := s.loadReads(ctx, refs); err != nil {
		return nil, err
	}
	return threads, nil
}

// loadReads fills in lastReadBy for the given threads in one query.
func (s *ThreadStore) loadReads(ctx context.Context, threads []*models.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Thread, len(threads))
	ids := make([]uuid.UUID, 0, len(threads))
	for _, th := range threads {
		th.LastReadBy = map[uuid.UUID]time.Time{}
		byID[th.ID] = th
		ids = append(ids, th.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT thread_id, viewer_id, read_at FROM concern_reads WHERE thread_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("load reads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var threadID, viewerID uuid.UUID
		var readAt time.Time
		if err := rows.Scan(&threadID, &viewerID, &readAt); err != nil {
			return fmt.Errorf("scan read: %w", err)
		}
		if th, ok := byID[threadID]; ok {
			th.LastReadBy[viewerID] = readAt
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reads: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*models.Thread, error) {
	var th models.Thread
	var closedBy *uuid.UUID
	err := row.Scan(
		&th.ID,
		&th.CreatedByUserID,
		&th.CreatedByUserName,
		&th.ChildID,
		&th.ChildName,
		&th.Subject,
		&th.Status,
		&th.CreatedAt,
		&th.LastUpdated,
		&th.LastMessage.Text,
		&th.LastMessage.SenderName,
		&th.LastMessage.Role,
		&closedBy,
		&th.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if closedBy != nil {
		th.ClosedBy = *closedBy
	}
	return &th, nil
}
