package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tippinbit/tippind/internal/domain"
)

// TipStore implements domain.TipStore using PostgreSQL. Amounts are stored
// as NUMERIC(78,0) and carried through the driver as decimal strings to keep
// full 1e18 fixed-point precision.
type TipStore struct {
	pool *pgxpool.Pool
}

// NewTipStore creates a new TipStore backed by the given connection pool.
func NewTipStore(pool *pgxpool.Pool) *TipStore {
	return &TipStore{pool: pool}
}

const tipSelectCols = `id, tx_hash, sender, recipient, amount::text, message, borrowed, created_at`

func scanTip(row pgx.Row) (domain.Tip, error) {
	var t domain.Tip
	var amount string
	if err := row.Scan(
		&t.ID, &t.TxHash, &t.Sender, &t.Recipient,
		&amount, &t.Message, &t.Borrowed, &t.CreatedAt,
	); err != nil {
		return domain.Tip{}, err
	}

	val, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return domain.Tip{}, fmt.Errorf("postgres: parse tip amount %q", amount)
	}
	t.Amount = val
	t.AmountStr = amount
	return t, nil
}

// Insert records a completed tip. A duplicate transaction hash is silently
// skipped so flow replays never double-journal.
func (s *TipStore) Insert(ctx context.Context, tip domain.Tip) error {
	const query = `
		INSERT INTO tips (id, tx_hash, sender, recipient, amount, message, borrowed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		tip.ID, tip.TxHash, tip.Sender, tip.Recipient,
		tip.Amount.String(), tip.Message, tip.Borrowed, tip.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert tip %s: %w", tip.ID, err)
	}
	return nil
}

// GetByID returns one tip, or domain.ErrNotFound.
func (s *TipStore) GetByID(ctx context.Context, id string) (domain.Tip, error) {
	query := `SELECT ` + tipSelectCols + ` FROM tips WHERE id = $1`

	tip, err := scanTip(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tip{}, domain.ErrNotFound
		}
		return domain.Tip{}, fmt.Errorf("postgres: get tip %s: %w", id, err)
	}
	return tip, nil
}

// ListRecent returns tips ordered newest first.
func (s *TipStore) ListRecent(ctx context.Context, limit, offset int) ([]domain.Tip, error) {
	query := `SELECT ` + tipSelectCols + `
		FROM tips ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tips: %w", err)
	}
	defer rows.Close()

	var tips []domain.Tip
	for rows.Next() {
		tip, err := scanTip(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan tip: %w", err)
		}
		tips = append(tips, tip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tips: %w", err)
	}
	return tips, nil
}

// Count returns the total number of journaled tips.
func (s *TipStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tips`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count tips: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.TipStore = (*TipStore)(nil)
