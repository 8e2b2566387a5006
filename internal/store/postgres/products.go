package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type products struct{ db queryer }

const productColumns = `id, name, description, price_cents, image, flavor, available, stock,
	created_at, updated_at, deleted_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	p := &models.Product{}
	var deleted sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Image, &p.Flavor,
		&p.Available, &p.Stock, &p.CreatedAt, &p.UpdatedAt, &deleted)
	if err != nil {
		return nil, mapErr(err)
	}
	if deleted.Valid {
		p.DeletedAt = &deleted.Time
	}
	return p, nil
}

func (r products) List(ctx context.Context, includeUnavailable bool) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE deleted_at IS NULL AND (available OR $1)
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, includeUnavailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r products) Get(ctx context.Context, id string) (*models.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r products) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, description, price_cents, image, flavor, available, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.PriceCents, p.Image,
		p.Flavor, p.Available, p.Stock, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r products) Update(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET name = $2, description = $3, price_cents = $4, image = $5, flavor = $6,
			available = $7, stock = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL
	`
	return expectOne(r.db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.PriceCents,
		p.Image, p.Flavor, p.Available, p.Stock, p.UpdatedAt))
}

func (r products) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE products SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at))
}
