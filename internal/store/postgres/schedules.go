package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type schedules struct{ db queryer }

const scheduleColumns = `id, location, date, times, available, created_at, updated_at`

func scanSchedule(row interface{ Scan(...interface{}) error }) (*models.PickupSchedule, error) {
	sc := &models.PickupSchedule{}
	err := row.Scan(&sc.ID, &sc.Location, &sc.Date, pq.Array(&sc.Times), &sc.Available,
		&sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return sc, nil
}

func (r schedules) Upsert(ctx context.Context, sc *models.PickupSchedule) error {
	query := `
		INSERT INTO pickup_schedules (id, location, date, times, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (location, date) DO UPDATE
			SET times = EXCLUDED.times, available = EXCLUDED.available, updated_at = EXCLUDED.updated_at
		RETURNING ` + scheduleColumns
	stored, err := scanSchedule(r.db.QueryRowContext(ctx, query, sc.ID, sc.Location, sc.Date,
		pq.Array(sc.Times), sc.Available, sc.CreatedAt, sc.UpdatedAt))
	if err != nil {
		return err
	}
	*sc = *stored
	return nil
}

func (r schedules) Find(ctx context.Context, location, date string) (*models.PickupSchedule, error) {
	return scanSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM pickup_schedules WHERE location = $1 AND date = $2`, location, date))
}

func (r schedules) List(ctx context.Context) ([]models.PickupSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM pickup_schedules ORDER BY date ASC, location ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.PickupSchedule, 0)
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (r schedules) AvailableDates(ctx context.Context, location, from string) ([]string, error) {
	query := `
		SELECT DISTINCT date FROM pickup_schedules
		WHERE location = $1 AND available AND date >= $2 AND cardinality(times) > 0
		ORDER BY date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, location, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r schedules) Delete(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM pickup_schedules WHERE id = $1`, id))
}
