package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// CopyTradeStore implements storage.CopyTradeStore using PostgreSQL.
type CopyTradeStore struct {
	pool *Pool
}

// NewCopyTradeStore creates a new CopyTradeStore.
func NewCopyTradeStore(pool *Pool) *CopyTradeStore {
	return &CopyTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CopyTradeStore = (*CopyTradeStore)(nil)

const copyTradeColumns = `
	trade_id, source_signature, side,
	token_in_mint, token_out_mint,
	amount_in, amount_out, slippage_bps, attempts,
	signature, executed_at, created_at
`

// Insert adds an executed trade. Returns ErrDuplicateKey if trade_id exists.
func (s *CopyTradeStore) Insert(ctx context.Context, t *domain.CopyTrade) error {
	if t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO copy_trades (` + copyTradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.SourceSignature, t.Side,
		t.TokenInMint, t.TokenOutMint,
		t.AmountIn, t.AmountOut, t.SlippageBps, t.Attempts,
		t.Signature, t.ExecutedAt, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert copy trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *CopyTradeStore) GetByID(ctx context.Context, tradeID string) (*domain.CopyTrade, error) {
	query := `SELECT ` + copyTradeColumns + ` FROM copy_trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanCopyTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get copy trade by id: %w", err)
	}
	return t, nil
}

// GetBySourceSignature retrieves all trades copied from one counterparty
// transaction, ordered by executed_at ASC.
func (s *CopyTradeStore) GetBySourceSignature(ctx context.Context, signature string) ([]*domain.CopyTrade, error) {
	query := `
		SELECT ` + copyTradeColumns + `
		FROM copy_trades
		WHERE source_signature = $1
		ORDER BY executed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, signature)
	if err != nil {
		return nil, fmt.Errorf("get copy trades by source signature: %w", err)
	}
	defer rows.Close()

	return scanCopyTrades(rows)
}

// GetByTimeRange retrieves trades executed within [start, end] (inclusive).
func (s *CopyTradeStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CopyTrade, error) {
	query := `
		SELECT ` + copyTradeColumns + `
		FROM copy_trades
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get copy trades by time range: %w", err)
	}
	defer rows.Close()

	return scanCopyTrades(rows)
}

func scanCopyTrade(row pgx.Row) (*domain.CopyTrade, error) {
	var t domain.CopyTrade
	err := row.Scan(
		&t.TradeID, &t.SourceSignature, &t.Side,
		&t.TokenInMint, &t.TokenOutMint,
		&t.AmountIn, &t.AmountOut, &t.SlippageBps, &t.Attempts,
		&t.Signature, &t.ExecutedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanCopyTrades(rows pgx.Rows) ([]*domain.CopyTrade, error) {
	var trades []*domain.CopyTrade
	for rows.Next() {
		t, err := scanCopyTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan copy trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate copy trade rows: %w", err)
	}
	return trades, nil
}
