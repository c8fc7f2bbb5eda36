package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkadenge/shulelink/internal/models"
)

// ChildStore is the household directory: which children belong to which
// parent. The enrollment side of the application owns writes to the
// children table; this store only reads it.
type ChildStore struct {
	pool *pgxpool.Pool
}

func NewChildStore(pool *pgxpool.Pool) *ChildStore {
	return &ChildStore{pool: pool}
}

func (s *ChildStore) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Child, error) {
	query := `
		SELECT id, parent_id, name
		FROM children
		WHERE parent_id = $1
		ORDER BY name ASC`

	rows, err := s.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	children := make([]models.Child, 0)
	for rows.Next() {
		var c models.Child
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}

	return children, nil
}

func (s *ChildStore) GetByID(ctx context.Context, childID uuid.UUID) (*models.Child, error) {
	query := `SELECT id, parent_id, name FROM children WHERE id = $1`

	var c models.Child
	err := s.pool.QueryRow(ctx, query, childID).Scan(&c.ID, &c.ParentID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get child: %w", err)
	}
	return &c, nil
}
