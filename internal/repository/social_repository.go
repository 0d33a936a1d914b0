package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/auth-service/internal/model"
)

// SocialRepo persists links between provider identities and local users.
type SocialRepo struct{ DB *sql.DB }

func NewSocialRepo(db *sql.DB) *SocialRepo { return &SocialRepo{DB: db} }

// ResolveOrCreate returns the user linked to (provider, subject), creating
// the user and the link in a single transaction when none exists yet. The
// boolean result reports whether a new user was created. newHash supplies
// the password hash of a new user and is only called when no link exists.
//
// Two concurrent callbacks for the same new subject race on the unique keys
// of users.email and social_accounts(provider, subject): the loser's insert
// fails with a duplicate entry, its transaction is rolled back and the
// winner's link is read back. If no link appears the email belongs to an
// unrelated local account and ErrConflict is returned.
func (r *SocialRepo) ResolveOrCreate(ctx context.Context, provider, subject, email string, newHash func() (string, error)) (model.User, bool, error) {
	u, err := findLinkedUser(ctx, r.DB, provider, subject)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, false, err
	}
	passwordHash, err := newHash()
	if err != nil {
		return model.User{}, false, err
	}

	created := model.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, IsActive: true}
	err = withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, created); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO social_accounts (id, user_id, provider, subject) VALUES (?,?,?,?)",
			uuid.NewString(), created.ID, provider, subject)
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	})
	if errors.Is(err, ErrConflict) {
		u, lookupErr := findLinkedUser(ctx, r.DB, provider, subject)
		if lookupErr == nil {
			return u, false, nil
		}
		if errors.Is(lookupErr, ErrNotFound) {
			return model.User{}, false, ErrConflict
		}
		return model.User{}, false, lookupErr
	}
	if err != nil {
		return model.User{}, false, err
	}

	u, err = findLinkedUser(ctx, r.DB, provider, subject)
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

func findLinkedUser(ctx context.Context, db DBTX, provider, subject string) (model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.is_active, u.created_at, u.updated_at
		 FROM social_accounts s JOIN users u ON u.id = s.user_id
		 WHERE s.provider = ? AND s.subject = ? LIMIT 1`, provider, subject).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}
