package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type reviews struct{ db queryer }

const reviewColumns = `id, COALESCE(user_id, ''), author_name, COALESCE(email, ''), COALESCE(product_id, ''),
	text, rating, photos, approved, reply_text, COALESCE(reply_admin_id, ''), replied_at,
	created_at, updated_at, deleted_at`

func scanReview(row interface{ Scan(...interface{}) error }) (*models.Review, error) {
	rv := &models.Review{}
	var (
		rating    sql.NullInt64
		replyText sql.NullString
		replyBy   string
		repliedAt sql.NullTime
		deleted   sql.NullTime
	)
	err := row.Scan(&rv.ID, &rv.UserID, &rv.AuthorName, &rv.Email, &rv.ProductID,
		&rv.Text, &rating, pq.Array(&rv.Photos), &rv.Approved, &replyText, &replyBy, &repliedAt,
		&rv.CreatedAt, &rv.UpdatedAt, &deleted)
	if err != nil {
		return nil, mapErr(err)
	}
	if rating.Valid {
		n := int(rating.Int64)
		rv.Rating = &n
	}
	if replyText.Valid {
		rv.Reply = &models.ReviewReply{Text: replyText.String, AdminID: replyBy, RepliedAt: repliedAt.Time}
	}
	if deleted.Valid {
		rv.DeletedAt = &deleted.Time
	}
	return rv, nil
}

func (r reviews) Create(ctx context.Context, rv *models.Review) error {
	query := `
		INSERT INTO reviews (id, user_id, author_name, email, product_id, text, rating, photos,
			approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	photos := rv.Photos
	if photos == nil {
		photos = []string{}
	}
	_, err := r.db.ExecContext(ctx, query, rv.ID, nullString(rv.UserID), rv.AuthorName,
		nullString(rv.Email), nullString(rv.ProductID), rv.Text, rv.Rating, pq.Array(photos),
		rv.Approved, rv.CreatedAt, rv.UpdatedAt)
	return mapErr(err)
}

func (r reviews) Get(ctx context.Context, id string) (*models.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r reviews) List(ctx context.Context, approvedOnly bool) ([]models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews
		WHERE deleted_at IS NULL AND (approved OR NOT $1)
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, approvedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rv)
	}
	return out, rows.Err()
}

func (r reviews) Update(ctx context.Context, rv *models.Review) error {
	var (
		replyText sql.NullString
		replyBy   sql.NullString
		repliedAt *time.Time
	)
	if rv.Reply != nil {
		replyText = sql.NullString{String: rv.Reply.Text, Valid: true}
		replyBy = nullString(rv.Reply.AdminID)
		repliedAt = &rv.Reply.RepliedAt
	}
	query := `
		UPDATE reviews SET approved = $2, reply_text = $3, reply_admin_id = $4, replied_at = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`
	return expectOne(r.db.ExecContext(ctx, query, rv.ID, rv.Approved, replyText, replyBy, repliedAt, rv.UpdatedAt))
}

func (r reviews) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE reviews SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at))
}
