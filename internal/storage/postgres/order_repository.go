package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

const orderColumns = `id, number, status, billing, mailing_list, shipping_method, lines, totals,
	sale_sent, refund_sent, debit_invoice_id, debit_store_id, last_error,
	refund_requested_at, last_attempt_at, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Upsert пишет снимок витрины; колонки синхронизации при конфликте не трогаются.
func (r *orderRepository) Upsert(order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	doc, err := encodeOrderDocument(order)
	if err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (
			id, number, status, billing, mailing_list, shipping_method, lines, totals,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10)
		ON CONFLICT (id) DO UPDATE
		SET number = EXCLUDED.number,
		    status = EXCLUDED.status,
		    billing = EXCLUDED.billing,
		    mailing_list = EXCLUDED.mailing_list,
		    shipping_method = EXCLUDED.shipping_method,
		    lines = EXCLUDED.lines,
		    totals = EXCLUDED.totals,
		    version = orders.version + 1,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+orderColumns,
		order.ID, order.Number, string(order.Status), doc.billing, order.MailingList,
		order.ShippingMethod, doc.lines, doc.totals, createdAt, now,
	)

	stored, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, fmt.Errorf("upsert order: %w", err)
	}
	return stored, nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) ListByStatus(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at ASC, id ASC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", string(status), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	doc, err := encodeOrderDocument(order)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET number = $1,
		    status = $2,
		    billing = $3,
		    mailing_list = $4,
		    shipping_method = $5,
		    lines = $6,
		    totals = $7,
		    sale_sent = $8,
		    refund_sent = $9,
		    debit_invoice_id = $10,
		    debit_store_id = $11,
		    last_error = $12,
		    refund_requested_at = $13,
		    last_attempt_at = $14,
		    version = version + 1,
		    updated_at = $15
		WHERE id = $16
		  AND version = $17
	`,
		order.Number,
		string(order.Status),
		doc.billing,
		order.MailingList,
		order.ShippingMethod,
		doc.lines,
		doc.totals,
		order.Sync.SaleSent,
		order.Sync.RefundSent,
		order.Sync.DebitInvoiceID,
		order.Sync.DebitStoreID,
		order.Sync.LastError,
		order.Sync.RefundRequestedAt,
		order.Sync.LastAttemptAt,
		time.Now().UTC(),
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order             domain.Order
		status            string
		billing           []byte
		lines             []byte
		totals            []byte
		refundRequestedAt sql.NullTime
		lastAttemptAt     sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.Number, &status, &billing, &order.MailingList, &order.ShippingMethod,
		&lines, &totals,
		&order.Sync.SaleSent, &order.Sync.RefundSent, &order.Sync.DebitInvoiceID, &order.Sync.DebitStoreID,
		&order.Sync.LastError, &refundRequestedAt, &lastAttemptAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Sync.RefundRequestedAt = nullTimePtr(refundRequestedAt)
	order.Sync.LastAttemptAt = nullTimePtr(lastAttemptAt)
	if err := decodeOrderDocument(&order, billing, lines, totals); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// Снимок витрины хранится в jsonb-колонках; форма записи не зависит от доменных типов.
type billingRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
}

type lineRecord struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	SubtotalTax decimal.Decimal `json:"subtotal_tax"`
	Total       decimal.Decimal `json:"total"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	Taxable     bool            `json:"taxable"`
}

type totalsRecord struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Shipping    decimal.Decimal `json:"shipping"`
	ShippingTax decimal.Decimal `json:"shipping_tax"`
	Total       decimal.Decimal `json:"total"`
}

type orderDocument struct {
	billing []byte
	lines   []byte
	totals  []byte
}

func encodeOrderDocument(order domain.Order) (orderDocument, error) {
	var (
		doc orderDocument
		err error
	)

	b := order.Billing
	doc.billing, err = json.Marshal(billingRecord{
		FirstName: b.FirstName, LastName: b.LastName, Email: b.Email, Phone: b.Phone,
		Address1: b.Address1, Address2: b.Address2, City: b.City,
	})
	if err != nil {
		return orderDocument{}, fmt.Errorf("encode billing: %w", err)
	}

	lines := make([]lineRecord, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, lineRecord{
			ID: l.ID, ProductID: l.ProductID, SKU: l.SKU, Name: l.Name, Quantity: l.Quantity,
			Subtotal: l.Subtotal, SubtotalTax: l.SubtotalTax, Total: l.Total, TotalTax: l.TotalTax,
			Taxable: l.Taxable,
		})
	}
	doc.lines, err = json.Marshal(lines)
	if err != nil {
		return orderDocument{}, fmt.Errorf("encode lines: %w", err)
	}

	t := order.Totals
	doc.totals, err = json.Marshal(totalsRecord{
		Subtotal: t.Subtotal, Tax: t.Tax, Shipping: t.Shipping, ShippingTax: t.ShippingTax, Total: t.Total,
	})
	if err != nil {
		return orderDocument{}, fmt.Errorf("encode totals: %w", err)
	}

	return doc, nil
}

func decodeOrderDocument(order *domain.Order, billing, lines, totals []byte) error {
	var b billingRecord
	if err := json.Unmarshal(billing, &b); err != nil {
		return fmt.Errorf("decode billing: %w", err)
	}
	order.Billing = domain.Billing{
		FirstName: b.FirstName, LastName: b.LastName, Email: b.Email, Phone: b.Phone,
		Address1: b.Address1, Address2: b.Address2, City: b.City,
	}

	var records []lineRecord
	if err := json.Unmarshal(lines, &records); err != nil {
		return fmt.Errorf("decode lines: %w", err)
	}
	order.Lines = make([]domain.OrderLine, 0, len(records))
	for _, l := range records {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID: l.ID, ProductID: l.ProductID, SKU: l.SKU, Name: l.Name, Quantity: l.Quantity,
			Subtotal: l.Subtotal, SubtotalTax: l.SubtotalTax, Total: l.Total, TotalTax: l.TotalTax,
			Taxable: l.Taxable,
		})
	}

	var t totalsRecord
	if err := json.Unmarshal(totals, &t); err != nil {
		return fmt.Errorf("decode totals: %w", err)
	}
	order.Totals = domain.Totals{
		Subtotal: t.Subtotal, Tax: t.Tax, Shipping: t.Shipping, ShippingTax: t.ShippingTax, Total: t.Total,
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
