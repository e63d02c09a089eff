package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"time"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Repo is the Postgres Store. Competing orders serialize on the product row
// lock taken by LockProduct (SELECT ... FOR UPDATE).
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) FindOrderByExternalID(ctx context.Context, externalID string) (Order, bool, error) {
	return findOrderByExternalID(ctx, t.tx, externalID)
}

func (t *pgTx) LockProduct(ctx context.Context, id int64) (Product, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id)
	return scanProduct(row)
}

func (t *pgTx) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(external_id, customer_name, customer_phone, customer_email,
			postal_code, house_number, due_date, time_window,
			product_id, product_name, product_description, product_image_ref,
			rate, quantity, total, payment_method, payment_status, delivery_status)
		VALUES (NULLIF($1,''), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13::numeric, $14, $15::numeric, $16, $17, $18)
		RETURNING id, created_at, updated_at`,
		o.ExternalID, o.Customer.Name, o.Customer.Phone, o.Customer.Email,
		o.Delivery.PostalCode, o.Delivery.HouseNumber, o.Delivery.DueDate, o.Delivery.TimeWindow,
		o.ProductID, o.ProductName, o.ProductDescription, o.ProductImageRef,
		o.Rate.String(), o.Quantity, o.Total.String(),
		string(o.PaymentMethod), string(o.PaymentStatus), string(o.DeliveryStatus),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return Order{}, ErrAlreadyExists
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2`, productID, qty)
	if pgCode(err) == pgCheckViolation {
		return ErrInsufficientStock
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *Repo) FindOrderByExternalID(ctx context.Context, externalID string) (Order, bool, error) {
	return findOrderByExternalID(ctx, r.DB, externalID)
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return o, err
}

func (r *Repo) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	where := ""
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if f.DeliveryStatus != "" {
		add("delivery_status=$%d", string(f.DeliveryStatus))
	}
	if f.Assignee != "" {
		add("assignee=$%d", f.Assignee)
	}
	args = append(args, f.limit())
	q := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY id DESC LIMIT $%d`, orderColumns, where, len(args))

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

func (r *Repo) SetDeliveryProof(ctx context.Context, id int64, ref string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET delivery_proof=$2, updated_at=now()
		WHERE id=$1 AND delivery_status='pending'`, id, ref)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetOrder(ctx, id); err != nil {
		return err
	}
	return invalid("proofRef", "delivery is already completed")
}

func (r *Repo) CompleteDelivery(ctx context.Context, id int64, proofRef string, deliveredOn time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET delivery_status='completed', delivery_proof=$2, actual_delivery_date=$3, updated_at=now()
		WHERE id=$1 AND delivery_status='pending'`, id, proofRef, deliveredOn)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) SetAssignee(ctx context.Context, id int64, assignee string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET assignee=$2, updated_at=now() WHERE id=$1`, id, assignee)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, ErrNotFound) {
		return Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	var amount *string
	if p.SubscriptionAmount != nil {
		s := p.SubscriptionAmount.String()
		amount = &s
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products(name, description, image_ref, rate, stock,
			subscription, subscription_amount, subscription_days)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.ImageRef, p.Rate.String(), p.Stock,
		p.Subscription, amount, p.SubscriptionDays,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// ---- row mapping ----

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func findOrderByExternalID(ctx context.Context, q querier, externalID string) (Order, bool, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

// Numerics travel as text so decimals keep their exact value.
const productColumns = `id, name, description, image_ref, rate::text, stock,
	subscription, subscription_amount::text, subscription_days, created_at, updated_at`

func scanProduct(row scanner) (Product, error) {
	var (
		p      Product
		rate   string
		amount *string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ImageRef, &rate, &p.Stock,
		&p.Subscription, &amount, &p.SubscriptionDays, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	if p.Rate, err = decimal.NewFromString(rate); err != nil {
		return Product{}, fmt.Errorf("decode rate: %w", err)
	}
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return Product{}, fmt.Errorf("decode subscription amount: %w", err)
		}
		p.SubscriptionAmount = &d
	}
	return p, nil
}

const orderColumns = `id, COALESCE(external_id, ''), customer_name, customer_phone, customer_email,
	postal_code, house_number, due_date, time_window,
	product_id, product_name, product_description, product_image_ref,
	rate::text, quantity, total::text, payment_method, payment_status, delivery_status,
	actual_delivery_date, assignee, delivery_proof, created_at, updated_at`

func scanOrder(row scanner) (Order, error) {
	var (
		o                      Order
		rate, total            string
		method, paid, delivery string
	)
	err := row.Scan(&o.ID, &o.ExternalID, &o.Customer.Name, &o.Customer.Phone, &o.Customer.Email,
		&o.Delivery.PostalCode, &o.Delivery.HouseNumber, &o.Delivery.DueDate, &o.Delivery.TimeWindow,
		&o.ProductID, &o.ProductName, &o.ProductDescription, &o.ProductImageRef,
		&rate, &o.Quantity, &total, &method, &paid, &delivery,
		&o.ActualDeliveryDate, &o.Assignee, &o.DeliveryProof, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if o.Rate, err = decimal.NewFromString(rate); err != nil {
		return Order{}, fmt.Errorf("decode rate: %w", err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("decode total: %w", err)
	}
	o.PaymentMethod = PaymentMethod(method)
	o.PaymentStatus = PaymentStatus(paid)
	o.DeliveryStatus = DeliveryStatus(delivery)
	return o, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
