package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `
	id::text, order_number, COALESCE(user_id,''),
	COALESCE(guest_name,''), COALESCE(guest_email,''), COALESCE(guest_phone,''),
	COALESCE(pickup_address_id::text,''), COALESCE(delivery_address_id::text,''),
	pickup_address, delivery_address,
	subtotal, delivery_fee, discount_amount, total_amount, COALESCE(promo_code,''),
	status, payment_method, payment_status,
	preferred_pickup_time, preferred_delivery_time, actual_pickup_time, actual_delivery_time,
	COALESCE(special_instructions,''), COALESCE(assigned_driver_id,''),
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                       Order
		status, method, payment string
		g                       Guest
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID,
		&g.Name, &g.Email, &g.Phone,
		&o.PickupAddressID, &o.DeliveryAddressID,
		&o.PickupAddress, &o.DeliveryAddress,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total, &o.PromoCode,
		&status, &method, &payment,
		&o.PreferredPickupAt, &o.PreferredDeliveryAt, &o.ActualPickupAt, &o.ActualDeliveryAt,
		&o.SpecialInstructions, &o.AssignedDriverID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	o.Status, o.PaymentMethod, o.PaymentStatus = Status(status), PaymentMethod(method), PaymentStatus(payment)
	if g.Name != "" || g.Phone != "" {
		o.Guest = &g
	}
	return o, nil
}

// rowID reports whether id can name a row. Order and address ids are uuid
// columns, and Postgres rejects anything else with a syntax error rather
// than an empty result.
func rowID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repo) InsertOrder(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	var g Guest
	if o.Guest != nil {
		g = *o.Guest
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(
			id, order_number, user_id, guest_name, guest_email, guest_phone,
			pickup_address_id, delivery_address_id, pickup_address, delivery_address,
			subtotal, delivery_fee, discount_amount, total_amount, promo_code,
			status, payment_method, payment_status,
			preferred_pickup_time, preferred_delivery_time,
			special_instructions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		o.ID, o.OrderNumber, nullable(o.UserID), nullable(g.Name), nullable(g.Email), nullable(g.Phone),
		nullable(o.PickupAddressID), nullable(o.DeliveryAddressID), o.PickupAddress, o.DeliveryAddress,
		o.Subtotal, o.DeliveryFee, o.Discount, o.Total, nullable(o.PromoCode),
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus),
		o.PreferredPickupAt, o.PreferredDeliveryAt,
		nullable(o.SpecialInstructions), o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// InsertItems writes all lines in one transaction: either every line lands
// or none does.
func (r *Repo) InsertItems(ctx context.Context, orderID string, items []Item) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = orderID
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, service_id, service_name, quantity, weight_kg, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, orderID, it.ServiceID, it.ServiceName, it.Quantity, it.WeightKg, it.UnitPrice, it.TotalPrice,
		); err != nil {
			return fmt.Errorf("insert item %s: %w", it.ServiceID, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) AppendTracking(ctx context.Context, e TrackingEntry) error {
	return insertTracking(ctx, r.DB, e)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTracking(ctx context.Context, db querier, e TrackingEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var id string
	return db.QueryRow(ctx, `
		INSERT INTO order_tracking(id, order_id, status, notes, updated_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id::text`,
		e.ID, e.OrderID, string(e.Status), nullable(e.Notes), nullable(e.UpdatedBy), e.CreatedAt,
	).Scan(&id)
}

func (r *Repo) DeleteOrder(ctx context.Context, orderID string) error {
	if !rowID(orderID) {
		return nil
	}
	_, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	return err
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	if !rowID(orderID) {
		return Order{}, apperr.NotFound("order", orderID)
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order", orderID)
	}
	return o, err
}

func (r *Repo) Items(ctx context.Context, orderID string) ([]Item, error) {
	if !rowID(orderID) {
		return nil, apperr.NotFound("order", orderID)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id::text, order_id::text, service_id::text, service_name, quantity, weight_kg, unit_price, total_price
		FROM order_items WHERE order_id=$1 ORDER BY service_name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ServiceID, &it.ServiceName, &it.Quantity,
			&it.WeightKg, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) Tracking(ctx context.Context, orderID string) ([]TrackingEntry, error) {
	if !rowID(orderID) {
		return nil, apperr.NotFound("order", orderID)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id::text, order_id::text, status, COALESCE(notes,''), COALESCE(updated_by,''), created_at
		FROM order_tracking WHERE order_id=$1 ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackingEntry
	for rows.Next() {
		var e TrackingEntry
		var s string
		if err := rows.Scan(&e.ID, &e.OrderID, &s, &e.Notes, &e.UpdatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = Status(s)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Apply conditions the update on the previously read status pair so a
// concurrent admin edit surfaces as a conflict instead of a lost update.
func (r *Repo) Apply(ctx context.Context, m Mutation) (Order, error) {
	if !rowID(m.OrderID) {
		return Order{}, apperr.NotFound("order", m.OrderID)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	setDriver := m.AssignedDriverID != nil
	var driver string
	if setDriver {
		driver = *m.AssignedDriverID
	}
	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET
			status = $4,
			payment_status = $5,
			payment_method = COALESCE($6, payment_method),
			assigned_driver_id = CASE WHEN $7::boolean THEN NULLIF($8, '') ELSE assigned_driver_id END,
			actual_pickup_time = COALESCE($9, actual_pickup_time),
			actual_delivery_time = COALESCE($10, actual_delivery_time),
			updated_at = $11
		WHERE id=$1 AND status=$2 AND payment_status=$3
		RETURNING `+orderColumns,
		m.OrderID, string(m.ExpectStatus), string(m.ExpectPayment),
		string(m.Status), string(m.PaymentStatus), nullable(string(m.PaymentMethod)),
		setDriver, driver, m.ActualPickupAt, m.ActualDeliveryAt, m.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		var current string
		err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, m.OrderID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound("order", m.OrderID)
		}
		if err != nil {
			return Order{}, err
		}
		return Order{}, apperr.StaleWrite(current)
	}
	if err != nil {
		return Order{}, err
	}

	if m.Tracking != nil {
		e := *m.Tracking
		e.OrderID = m.OrderID
		if err := insertTracking(ctx, tx, e); err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// AddressRepo is the Postgres AddressRepository.
type AddressRepo struct{ DB *pgxpool.Pool }

const addressColumns = `id::text, user_id, COALESCE(label,''), address_line1, COALESCE(address_line2,''),
	area, city, COALESCE(postal_code,''), COALESCE(delivery_instructions,''), is_primary, created_at`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Line1, &a.Line2, &a.Area, &a.City,
		&a.PostalCode, &a.DeliveryInstructions, &a.IsPrimary, &a.CreatedAt)
	return a, err
}

func (r *AddressRepo) ListByUser(ctx context.Context, userID string) ([]Address, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+addressColumns+` FROM addresses
		WHERE user_id=$1 ORDER BY is_primary DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AddressRepo) Get(ctx context.Context, id string) (Address, error) {
	if !rowID(id) {
		return Address{}, apperr.NotFound("address", id)
	}
	a, err := scanAddress(r.DB.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, apperr.NotFound("address", id)
	}
	return a, err
}

// Create makes the address primary when requested or when it is the user's
// first one, demoting any previous primary in the same transaction.
func (r *AddressRepo) Create(ctx context.Context, a *Address) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id=$1`, a.UserID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		a.IsPrimary = true
	}
	if a.IsPrimary {
		if _, err := tx.Exec(ctx, `UPDATE addresses SET is_primary=false WHERE user_id=$1 AND is_primary`, a.UserID); err != nil {
			return err
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO addresses(id, user_id, label, address_line1, address_line2, area, city,
			postal_code, delivery_instructions, is_primary)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING created_at`,
		a.ID, a.UserID, nullable(a.Label), a.Line1, nullable(a.Line2), a.Area, a.City,
		nullable(a.PostalCode), nullable(a.DeliveryInstructions), a.IsPrimary,
	).Scan(&a.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update rewrites an owned address; making it primary demotes the user's
// other addresses in the same transaction.
func (r *AddressRepo) Update(ctx context.Context, a *Address) error {
	if !rowID(a.ID) {
		return apperr.NotFound("address", a.ID)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if a.IsPrimary {
		if _, err := tx.Exec(ctx, `UPDATE addresses SET is_primary=false
			WHERE user_id=$1 AND is_primary AND id<>$2`, a.UserID, a.ID); err != nil {
			return err
		}
	}
	err = tx.QueryRow(ctx, `
		UPDATE addresses SET label=$3, address_line1=$4, address_line2=$5, area=$6, city=$7,
			postal_code=$8, delivery_instructions=$9, is_primary=$10
		WHERE id=$1 AND user_id=$2 RETURNING created_at`,
		a.ID, a.UserID, nullable(a.Label), a.Line1, nullable(a.Line2), a.Area, a.City,
		nullable(a.PostalCode), nullable(a.DeliveryInstructions), a.IsPrimary,
	).Scan(&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("address", a.ID)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AddressRepo) Delete(ctx context.Context, userID, id string) error {
	if !rowID(id) {
		return apperr.NotFound("address", id)
	}
	ct, err := r.DB.Exec(ctx, `DELETE FROM addresses WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("address", id)
	}
	return nil
}
