package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iliyamo/auth-service/internal/model"
)

// LoginHistoryRepo appends and lists login records. Records are never
// updated or deleted by the service.
type LoginHistoryRepo struct{ DB *sql.DB }

func NewLoginHistoryRepo(db *sql.DB) *LoginHistoryRepo { return &LoginHistoryRepo{DB: db} }

// Append stores a login record.
func (r *LoginHistoryRepo) Append(ctx context.Context, rec model.LoginHistory) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO login_history (id, user_id, user_agent, device_type, created_at) VALUES (?,?,?,?,?)",
		rec.ID, rec.UserID, rec.UserAgent, rec.DeviceType, rec.CreatedAt.UTC())
	return err
}

// ListByUser returns a page of userID's records, newest first.
func (r *LoginHistoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.LoginHistory, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, user_agent, device_type, created_at
		 FROM login_history WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.LoginHistory{}
	for rows.Next() {
		var h model.LoginHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.UserAgent, &h.DeviceType, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
