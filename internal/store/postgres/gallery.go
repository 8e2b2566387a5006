package postgres

import (
	"context"
	"time"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type gallery struct{ db queryer }

func (r gallery) Create(ctx context.Context, p *models.GalleryPhoto) error {
	query := `
		INSERT INTO gallery_photos (id, image, title, description, position, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Image, p.Title, p.Description, p.Position,
		p.Active, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r gallery) ListActive(ctx context.Context) ([]models.GalleryPhoto, error) {
	query := `
		SELECT id, image, title, description, position, active, created_at, updated_at
		FROM gallery_photos
		WHERE active AND deleted_at IS NULL
		ORDER BY position ASC, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.GalleryPhoto, 0)
	for rows.Next() {
		var p models.GalleryPhoto
		if err := rows.Scan(&p.ID, &p.Image, &p.Title, &p.Description, &p.Position, &p.Active,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r gallery) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE gallery_photos SET deleted_at = $2, active = FALSE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`, id, at))
}
