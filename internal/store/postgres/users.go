package postgres

import (
	"context"
	"database/sql"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type users struct{ db queryer }

const userColumns = `id, name, email, COALESCE(password_hash, ''), COALESCE(google_id, ''), role,
	COALESCE(reset_token_hash, ''), reset_token_expiry, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	u := &models.User{}
	var expiry sql.NullTime
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.GoogleID, &u.Role,
		&u.ResetTokenHash, &expiry, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if expiry.Valid {
		t := expiry.Time
		u.ResetTokenExpiry = &t
	}
	return u, nil
}

func (r users) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, google_id, role,
			reset_token_hash, reset_token_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, nullString(u.PasswordHash),
		nullString(u.GoogleID), u.Role, nullString(u.ResetTokenHash), u.ResetTokenExpiry,
		u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (r users) Get(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r users) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
}

func (r users) GetByResetToken(ctx context.Context, tokenHash string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, tokenHash))
}

func (r users) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users SET name = $2, email = $3, password_hash = $4, google_id = $5, role = $6,
			reset_token_hash = $7, reset_token_expiry = $8, updated_at = $9
		WHERE id = $1
	`
	return expectOne(r.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, nullString(u.PasswordHash),
		nullString(u.GoogleID), u.Role, nullString(u.ResetTokenHash), u.ResetTokenExpiry, u.UpdatedAt))
}

func (r users) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
