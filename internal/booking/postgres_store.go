package booking

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/pagination"
)

// PostgresStore persists bookings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed booking store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const bookingColumns = `id, requester_addr, provider_addr, requirements,
		       status, payment_status, reconciled_payment, tx_hash,
		       request_id, method_symbol, amount, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, b *Booking) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bookings (
			id, requester_addr, provider_addr, requirements,
			status, payment_status, reconciled_payment, tx_hash,
			request_id, method_symbol, amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.ID, b.RequesterAddr, b.ProviderAddr, b.Requirements,
		string(b.Status), string(b.PaymentStatus), string(b.ReconciledPayment),
		nullString(b.TxHash), nullUint64(b.RequestID),
		b.MethodSymbol, b.Amount, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

func (p *PostgresStore) Update(ctx context.Context, b *Booking) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET
			status = $1, payment_status = $2, reconciled_payment = $3,
			tx_hash = $4, request_id = $5, updated_at = $6
		WHERE id = $7`,
		string(b.Status), string(b.PaymentStatus), string(b.ReconciledPayment),
		nullString(b.TxHash), nullUint64(b.RequestID), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListByParticipant(ctx context.Context, addr string, cursor *pagination.Cursor, limit int) ([]*Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE (requester_addr = $1 OR provider_addr = $1)`
	args := []any{NormalizeAddr(addr)}

	if cursor != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanBookings(rows)
}

func (p *PostgresStore) ListAwaitingRequestID(ctx context.Context, limit int) ([]*Booking, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tx_hash IS NOT NULL
		  AND request_id IS NULL
		  AND status != 'cancelled'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanBookings(rows)
}

func (p *PostgresStore) ListUnsettled(ctx context.Context, limit int) ([]*Booking, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE request_id IS NOT NULL
		  AND status != 'cancelled'
		  AND reconciled_payment NOT IN ('paid', 'refunded')
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanBookings(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	var (
		b          Booking
		status     string
		payment    string
		reconciled string
		txHash     sql.NullString
		requestID  sql.NullInt64
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := row.Scan(
		&b.ID, &b.RequesterAddr, &b.ProviderAddr, &b.Requirements,
		&status, &payment, &reconciled, &txHash, &requestID,
		&b.MethodSymbol, &b.Amount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	b.PaymentStatus = PaymentStatus(payment)
	b.ReconciledPayment = PaymentStatus(reconciled)
	if txHash.Valid {
		b.TxHash = txHash.String
	}
	if requestID.Valid {
		id := uint64(requestID.Int64)
		b.RequestID = &id
	}
	b.CreatedAt = createdAt
	b.UpdatedAt = updatedAt
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*Booking, error) {
	var result []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUint64(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
