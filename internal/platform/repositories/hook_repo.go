package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
)

var ErrHookNotFound = errors.New("hook not found")

const hookColumns = `id, owner, event, target, created_at, updated_at`

type HookRepository struct {
	db *database.DB
}

func NewHookRepository(db *database.DB) *HookRepository {
	return &HookRepository{db: db}
}

func (r *HookRepository) Create(ctx context.Context, hook *models.Hook) error {
	now := time.Now().Unix()
	hook.CreatedAt = now
	hook.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO hooks (owner, event, target, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	return r.db.QueryRowContext(ctx, query, nullOwner(hook.Owner), hook.Event, hook.Target, hook.CreatedAt, hook.UpdatedAt).
		Scan(&hook.ID)
}

func (r *HookRepository) GetByID(ctx context.Context, id int64) (*models.Hook, error) {
	query := r.db.Rebind(`SELECT ` + hookColumns + ` FROM hooks WHERE id = ?`)
	hook, err := scanHook(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHookNotFound
	}
	if err != nil {
		return nil, err
	}
	return hook, nil
}

// ListByOwner returns the hooks of one principal, newest first.
func (r *HookRepository) ListByOwner(ctx context.Context, owner string) ([]models.Hook, error) {
	query := r.db.Rebind(`SELECT ` + hookColumns + ` FROM hooks WHERE owner = ? ORDER BY id DESC`)
	return r.query(ctx, query, owner)
}

func (r *HookRepository) ListByEvent(ctx context.Context, event string) ([]models.Hook, error) {
	query := r.db.Rebind(`SELECT ` + hookColumns + ` FROM hooks WHERE event = ?`)
	return r.query(ctx, query, event)
}

func (r *HookRepository) ListByEventOwner(ctx context.Context, event, owner string) ([]models.Hook, error) {
	query := r.db.Rebind(`SELECT ` + hookColumns + ` FROM hooks WHERE event = ? AND owner = ?`)
	return r.query(ctx, query, event, owner)
}

func (r *HookRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM hooks WHERE id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrHookNotFound
	}
	return nil
}

func (r *HookRepository) query(ctx context.Context, query string, args ...any) ([]models.Hook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hooks := []models.Hook{}
	for rows.Next() {
		hook, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *hook)
	}
	return hooks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHook(row scanner) (*models.Hook, error) {
	var h models.Hook
	var owner sql.NullString
	if err := row.Scan(&h.ID, &owner, &h.Event, &h.Target, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		h.Owner = owner.String
	}
	return &h, nil
}

func nullOwner(owner string) sql.NullString {
	return sql.NullString{String: owner, Valid: owner != ""}
}
