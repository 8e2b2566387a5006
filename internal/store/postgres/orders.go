package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type orders struct{ db *sql.DB }

const orderColumns = `id, COALESCE(user_id, ''), guest_name, guest_email, guest_phone,
	subtotal_cents, delivery_fee_cents, total_cents, status, reception_mode,
	COALESCE(pickup_location, ''), COALESCE(delivery_city, ''), COALESCE(delivery_street, ''),
	COALESCE(delivery_postal_code, ''), COALESCE(delivery_instructions, ''),
	reception_date, reception_time, payment_method, payment_confirmed,
	COALESCE(payment_intent_id, ''), created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	o := &models.Order{}
	var (
		guestName, guestEmail, guestPhone sql.NullString
		mode                              models.ReceptionMode
		location, city, street            string
		postal, instructions, date, clock string
	)
	err := row.Scan(&o.ID, &o.UserID, &guestName, &guestEmail, &guestPhone,
		&o.SubtotalCents, &o.DeliveryFeeCents, &o.TotalCents, &o.Status, &mode,
		&location, &city, &street, &postal, &instructions,
		&date, &clock, &o.PaymentMethod, &o.PaymentConfirmed,
		&o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if guestEmail.Valid {
		o.Guest = &models.GuestContact{Name: guestName.String, Email: guestEmail.String, Phone: guestPhone.String}
	}
	switch mode {
	case models.ModePickup:
		o.Reception.Reception = models.PickupReception{Location: location, Date: date, Time: clock}
	case models.ModeDelivery:
		o.Reception.Reception = models.DeliveryReception{
			City: city, Street: street, PostalCode: postal, Instructions: instructions,
			Date: date, Time: clock,
		}
	default:
		return nil, fmt.Errorf("order %s has unknown reception mode %q", o.ID, mode)
	}
	return o, nil
}

func (r orders) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var guestName, guestEmail, guestPhone sql.NullString
	if o.Guest != nil {
		guestName = nullString(o.Guest.Name)
		guestEmail = nullString(o.Guest.Email)
		guestPhone = nullString(o.Guest.Phone)
	}
	var location, city, street, postal, instructions sql.NullString
	switch rec := o.Reception.Reception.(type) {
	case models.PickupReception:
		location = nullString(rec.Location)
	case models.DeliveryReception:
		city = nullString(rec.City)
		street = nullString(rec.Street)
		postal = nullString(rec.PostalCode)
		instructions = nullString(rec.Instructions)
	default:
		return fmt.Errorf("order %s has no reception", o.ID)
	}
	date, clock := o.Reception.Slot()

	query := `
		INSERT INTO orders (id, user_id, guest_name, guest_email, guest_phone,
			subtotal_cents, delivery_fee_cents, total_cents, status, reception_mode,
			pickup_location, delivery_city, delivery_street, delivery_postal_code, delivery_instructions,
			reception_date, reception_time, payment_method, payment_confirmed, payment_intent_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = tx.ExecContext(ctx, query, o.ID, nullString(o.UserID), guestName, guestEmail, guestPhone,
		o.SubtotalCents, o.DeliveryFeeCents, o.TotalCents, o.Status, o.Reception.Mode(),
		location, city, street, postal, instructions,
		date, clock, o.PaymentMethod, o.PaymentConfirmed, nullString(o.PaymentIntentID),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, box_index, box_size, box_price_cents, product_id, product_name, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, box := range o.Boxes {
		for _, item := range box.Items {
			_, err = tx.ExecContext(ctx, itemQuery, o.ID, i, int(box.Size), box.PriceCents,
				item.ProductID, item.ProductName, item.Quantity)
			if err != nil {
				return mapErr(err)
			}
		}
	}

	return tx.Commit()
}

func (r orders) Get(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadBoxes(ctx, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r orders) List(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, f.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadBoxes(ctx, list); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(list))
	for _, o := range list {
		out = append(out, *o)
	}
	return out, nil
}

// loadBoxes fills Boxes for every order with a single items query.
func (r orders) loadBoxes(ctx context.Context, list []*models.Order) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*models.Order, len(list))
	ids := make([]string, 0, len(list))
	for _, o := range list {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `
		SELECT order_id, box_index, box_size, box_price_cents, product_id, product_name, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, box_index, id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			index   int
			size    int
			price   int64
			item    models.BoxItem
		)
		if err := rows.Scan(&orderID, &index, &size, &price, &item.ProductID, &item.ProductName, &item.Quantity); err != nil {
			return err
		}
		o := byID[orderID]
		for len(o.Boxes) <= index {
			o.Boxes = append(o.Boxes, models.Box{})
		}
		o.Boxes[index].Size = models.BoxSize(size)
		o.Boxes[index].PriceCents = price
		o.Boxes[index].Items = append(o.Boxes[index].Items, item)
	}
	return rows.Err()
}

func (r orders) Update(ctx context.Context, o *models.Order) error {
	query := `
		UPDATE orders SET status = $2, payment_method = $3, payment_confirmed = $4,
			payment_intent_id = $5, updated_at = $6
		WHERE id = $1
	`
	return expectOne(r.db.ExecContext(ctx, query, o.ID, o.Status, o.PaymentMethod, o.PaymentConfirmed,
		nullString(o.PaymentIntentID), o.UpdatedAt))
}

func (r orders) LinkGuestOrders(ctx context.Context, userID, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET user_id = $1 WHERE user_id IS NULL AND lower(guest_email) = lower($2)`,
		userID, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
