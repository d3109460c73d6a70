// Package postgres persists the shop in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nazeru/tx-lab-shop-go/internal/shop/domain"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
	"github.com/nazeru/tx-lab-shop-go/pkg/contracts"
	"github.com/nazeru/tx-lab-shop-go/pkg/outbox"
)

//go:embed schema.sql
var schema string

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q querier
}

type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveCart and InsertOrder touch several tables, so outside InTx they open their own transaction.

func (s *Store) SaveCart(ctx context.Context, cart domain.Cart) error {
	return s.InTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.SaveCart(ctx, cart) })
}

func (s *Store) InsertOrder(ctx context.Context, o domain.Order) error {
	return s.InTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.InsertOrder(ctx, o) })
}

const productColumns = `id, name, description, price::text, stock, category, image, created_at, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	var id, price string
	if err := row.Scan(&id, &p.Name, &p.Description, &price, &p.Stock, &p.Category, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.ID = domain.ProductID(id)
	p.Price = d
	return p, nil
}

func (q queries) GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	p, err := scanProduct(q.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.NotFoundf("product not found")
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (q queries) GetProducts(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.Product, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, string(id))
	}
	rows, err := q.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ProductID]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (q queries) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var where []string
	var args []any
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, f.MinPrice.String())
		where = append(where, fmt.Sprintf("price >= $%d::numeric", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, f.MaxPrice.String())
		where = append(where, fmt.Sprintf("price <= $%d::numeric", len(args)))
	}
	sql := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at, id`

	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q queries) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := q.q.Exec(ctx, `INSERT INTO products(id, name, description, price, stock, category, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
		string(p.ID), p.Name, p.Description, p.Price.String(), p.Stock, p.Category, p.Image, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return &domain.Error{Kind: domain.KindConflict, Msg: "product already exists"}
	}
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (q queries) DecrementStock(ctx context.Context, id domain.ProductID, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.Invalidf("stock adjustment must be positive")
	}
	tag, err := q.q.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2`, string(id), qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q queries) IncrementStock(ctx context.Context, id domain.ProductID, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.Invalidf("stock adjustment must be positive")
	}
	tag, err := q.q.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, string(id), qty)
	if err != nil {
		return false, fmt.Errorf("increment stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q queries) GetCart(ctx context.Context, session domain.SessionID) (domain.Cart, error) {
	c := domain.Cart{SessionID: session}
	err := q.q.QueryRow(ctx, `SELECT created_at, updated_at FROM carts WHERE session_id=$1 FOR UPDATE`, string(session)).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, domain.NotFoundf("cart not found")
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	rows, err := q.q.Query(ctx, `SELECT product_id, quantity FROM cart_lines WHERE session_id=$1 ORDER BY position`, string(session))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart lines: %w", err)
	}
	defer rows.Close()
	c.Lines = []domain.CartLine{}
	for rows.Next() {
		var id string
		var l domain.CartLine
		if err := rows.Scan(&id, &l.Quantity); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart line: %w", err)
		}
		l.ProductID = domain.ProductID(id)
		c.Lines = append(c.Lines, l)
	}
	return c, rows.Err()
}

func (q queries) SaveCart(ctx context.Context, cart domain.Cart) error {
	_, err := q.q.Exec(ctx, `INSERT INTO carts(session_id, created_at, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		string(cart.SessionID), cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	if _, err := q.q.Exec(ctx, `DELETE FROM cart_lines WHERE session_id=$1`, string(cart.SessionID)); err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}
	for i, l := range cart.Lines {
		_, err := q.q.Exec(ctx, `INSERT INTO cart_lines(session_id, product_id, quantity, position) VALUES ($1, $2, $3, $4)`,
			string(cart.SessionID), string(l.ProductID), l.Quantity, i)
		if err != nil {
			return fmt.Errorf("insert cart line: %w", err)
		}
	}
	return nil
}

func (q queries) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := q.q.Exec(ctx, `INSERT INTO orders(id, status, total_amount, customer_name, customer_email, customer_address, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`,
		string(o.ID), string(o.Status), o.TotalAmount.String(), o.Customer.Name, o.Customer.Email, o.Customer.Address, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return &domain.Error{Kind: domain.KindConflict, Msg: "order already exists"}
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, l := range o.Lines {
		_, err := q.q.Exec(ctx, `INSERT INTO order_lines(order_id, line_no, product_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)`,
			string(o.ID), i, string(l.ProductID), l.Name, l.Quantity, l.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

const orderColumns = `id, status, total_amount::text, customer_name, customer_email, customer_address, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var id, status, total string
	if err := row.Scan(&id, &status, &total, &o.Customer.Name, &o.Customer.Email, &o.Customer.Address, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	o.ID = domain.OrderID(id)
	o.Status = domain.OrderStatus(status)
	o.TotalAmount = d
	return o, nil
}

func (q queries) getOrder(ctx context.Context, id domain.OrderID, lock bool) (domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.NotFoundf("order not found")
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	lines, err := q.orderLines(ctx, []string{string(id)})
	if err != nil {
		return domain.Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (q queries) GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return q.getOrder(ctx, id, false)
}

func (q queries) GetOrderForUpdate(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return q.getOrder(ctx, id, true)
}

func (q queries) orderLines(ctx context.Context, ids []string) (map[domain.OrderID][]domain.OrderLine, error) {
	rows, err := q.q.Query(ctx, `SELECT order_id, product_id, name, quantity, unit_price::text
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.OrderID][]domain.OrderLine, len(ids))
	for rows.Next() {
		var orderID, productID, price string
		var l domain.OrderLine
		if err := rows.Scan(&orderID, &productID, &l.Name, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse unit price %q: %w", price, err)
		}
		l.ProductID = domain.ProductID(productID)
		l.UnitPrice = d
		out[domain.OrderID(orderID)] = append(out[domain.OrderID(orderID)], l)
	}
	return out, rows.Err()
}

func (q queries) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if f.CustomerEmail != "" {
		sql += ` WHERE customer_email = $1`
		args = append(args, f.CustomerEmail)
	}
	sql += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := []domain.Order{}
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
		ids = append(ids, string(o.ID))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := q.orderLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (q queries) UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus, at time.Time) error {
	tag, err := q.q.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, string(id), string(status), at)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("order not found")
	}
	return nil
}

func (q queries) DeleteOrder(ctx context.Context, id domain.OrderID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, string(id))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("order not found")
	}
	return nil
}

func (q queries) AppendEvent(ctx context.Context, evt contracts.Event) error {
	if err := outbox.Insert(ctx, q.q, evt.EventID, evt.Type, evt.OrderID, evt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
