package signals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// row is the sqlx-scannable shape of the signals table; it carries
// payload_json (the signal's Breakdown, which TradingSignal itself excludes
// from db tags since it's a map rather than a column) separately from the
// domain type.
type row struct {
	model.TradingSignal
	PayloadJSON []byte `db:"payload_json"`
}

func toRow(signal model.TradingSignal) (row, error) {
	payload, err := json.Marshal(signal.Breakdown)
	if err != nil {
		return row{}, fmt.Errorf("signals: marshal breakdown: %w", err)
	}
	return row{TradingSignal: signal, PayloadJSON: payload}, nil
}

func fromRow(r row) model.TradingSignal {
	signal := r.TradingSignal
	if len(r.PayloadJSON) > 0 {
		_ = json.Unmarshal(r.PayloadJSON, &signal.Breakdown)
	}
	return signal
}

// Schema is the table definition the Postgres repository expects. It is
// exposed so cmd/arbiter's init path can apply it with a plain Exec rather
// than pulling in a full migration framework for one table.
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	id                BIGSERIAL PRIMARY KEY,
	timestamp         TIMESTAMPTZ NOT NULL,
	stock_code        TEXT NOT NULL,
	stock_name        TEXT NOT NULL,
	stock_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	etf_code          TEXT NOT NULL,
	etf_name          TEXT NOT NULL,
	weight            DOUBLE PRECISION NOT NULL,
	event_type        TEXT NOT NULL,
	confidence_level  TEXT NOT NULL,
	confidence_score  DOUBLE PRECISION NOT NULL,
	risk_level        TEXT NOT NULL,
	reason            TEXT NOT NULL,
	payload_json      JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS signals_timestamp_idx ON signals (timestamp);
CREATE INDEX IF NOT EXISTS signals_stock_code_idx ON signals (stock_code);
`

// PostgresRepository is the production Repository, backed by lib/pq
// through sqlx's named-parameter convenience.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository wraps an already-open *sqlx.DB.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies Schema. Safe to call on every startup.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("signals: migrate: %w", err)
	}
	return nil
}

const insertQuery = `
INSERT INTO signals (
	timestamp, stock_code, stock_name, stock_price, etf_code, etf_name, weight,
	event_type, confidence_level, confidence_score, risk_level, reason, payload_json
) VALUES (
	:timestamp, :stock_code, :stock_name, :stock_price, :etf_code, :etf_name, :weight,
	:event_type, :confidence_level, :confidence_score, :risk_level, :reason, :payload_json
) RETURNING id`

func (r *PostgresRepository) Insert(ctx context.Context, signal model.TradingSignal) (model.TradingSignal, error) {
	rec, err := toRow(signal)
	if err != nil {
		return model.TradingSignal{}, err
	}

	stmt, err := r.db.PrepareNamedContext(ctx, insertQuery)
	if err != nil {
		return model.TradingSignal{}, fmt.Errorf("signals: prepare insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.GetContext(ctx, &rec.ID, rec); err != nil {
		return model.TradingSignal{}, fmt.Errorf("signals: insert: %w", err)
	}
	return fromRow(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (model.TradingSignal, bool, error) {
	var rec row
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM signals WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TradingSignal{}, false, nil
		}
		return model.TradingSignal{}, false, fmt.Errorf("signals: get %d: %w", id, err)
	}
	return fromRow(rec), true, nil
}

func (r *PostgresRepository) List(ctx context.Context, params model.SignalFilterParams) ([]model.TradingSignal, error) {
	query, args := buildFilterQuery("SELECT * FROM signals", params)
	query += " ORDER BY timestamp DESC"
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", params.Limit)
	}
	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", params.Offset)
	}

	var recs []row
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("signals: list: %w", err)
	}
	out := make([]model.TradingSignal, len(recs))
	for i, rec := range recs {
		out[i] = fromRow(rec)
	}
	return out, nil
}

func (r *PostgresRepository) Count(ctx context.Context, params model.SignalFilterParams) (int, error) {
	query, args := buildFilterQuery("SELECT COUNT(*) FROM signals", params)

	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("signals: count: %w", err)
	}
	return n, nil
}

func buildFilterQuery(base string, params model.SignalFilterParams) (string, []any) {
	var clauses []string
	var args []any

	if params.Start != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, *params.Start)
	}
	if params.End != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, *params.End)
	}
	if params.StockCode != "" {
		clauses = append(clauses, "stock_code = ?")
		args = append(args, params.StockCode)
	}
	if params.ETFCode != "" {
		clauses = append(clauses, "etf_code = ?")
		args = append(args, params.ETFCode)
	}
	if params.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, params.EventType)
	}

	if len(clauses) == 0 {
		return base, args
	}
	return base + " WHERE " + strings.Join(clauses, " AND "), args
}
