package postgres

import (
	"context"
	"errors"

	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type pricing struct{ db queryer }

func (r pricing) Get(ctx context.Context) (models.BoxPricing, error) {
	var p models.BoxPricing
	err := r.db.QueryRowContext(ctx,
		`SELECT price_4_cents, price_6_cents, price_12_cents, updated_at FROM box_pricing WHERE id = 1`,
	).Scan(&p.Price4, &p.Price6, &p.Price12, &p.UpdatedAt)
	if err = mapErr(err); errors.Is(err, store.ErrNotFound) {
		return models.DefaultBoxPricing(), nil
	}
	return p, err
}

func (r pricing) Save(ctx context.Context, p models.BoxPricing) error {
	query := `
		INSERT INTO box_pricing (id, price_4_cents, price_6_cents, price_12_cents, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET price_4_cents = EXCLUDED.price_4_cents,
			price_6_cents = EXCLUDED.price_6_cents, price_12_cents = EXCLUDED.price_12_cents,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, p.Price4, p.Price6, p.Price12, p.UpdatedAt)
	return err
}
