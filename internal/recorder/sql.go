package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"SqueezeSentinel/internal/model"
)

// SQLRecorder persists to SQLite (modernc.org/sqlite) or PostgreSQL (lib/pq).
// Records are stored as a JSON payload next to the columns queries filter on.
type SQLRecorder struct {
	db     *sqlx.DB
	driver string
	mu     sync.Mutex
	now    func() time.Time
}

// NewSQLRecorder opens (or creates) the database and runs migrations.
// driver is "sqlite" or "postgres".
func NewSQLRecorder(driver, dsn string) (*SQLRecorder, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// WAL mode lets readers (history queries) run while the scheduler writes.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		db.SetMaxOpenConns(1)
	}

	r := &SQLRecorder{db: db, driver: driver, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("driver", driver).Msg("recorder opened")
	return r, nil
}

func (r *SQLRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			symbol    TEXT PRIMARY KEY,
			name      TEXT NOT NULL DEFAULT '',
			quantity  DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_price DOUBLE PRECISION,
			added_at  BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS opportunities (
			id        TEXT PRIMARY KEY,
			symbol    TEXT NOT NULL,
			score     INTEGER NOT NULL,
			urgency   TEXT NOT NULL,
			payload   TEXT NOT NULL,
			stored_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_stored ON opportunities(stored_at)`,

		`CREATE TABLE IF NOT EXISTS exit_signals (
			symbol    TEXT PRIMARY KEY,
			urgency   INTEGER NOT NULL,
			payload   TEXT NOT NULL,
			stored_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exit_signals_stored ON exit_signals(stored_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(s)[:40], err)
		}
	}
	return nil
}

func (r *SQLRecorder) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.db.Rebind(query), args...)
}

func (r *SQLRecorder) StoreOpportunity(ctx context.Context, opp *model.Opportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("marshal opportunity: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.exec(ctx, `INSERT INTO opportunities (id, symbol, score, urgency, payload, stored_at)
		VALUES (?,?,?,?,?,?)`,
		opp.ID, opp.Symbol, opp.Score, opp.Urgency.String(), string(payload), r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert opportunity %s: %w", opp.Symbol, err)
	}
	return nil
}

func (r *SQLRecorder) StoreExitSignal(ctx context.Context, sig *model.ExitSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal exit signal: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.exec(ctx, `INSERT INTO exit_signals (symbol, urgency, payload, stored_at)
		VALUES (?,?,?,?)
		ON CONFLICT (symbol) DO UPDATE SET
			urgency = excluded.urgency,
			payload = excluded.payload,
			stored_at = excluded.stored_at`,
		sig.Symbol, sig.Urgency, string(payload), r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert exit signal %s: %w", sig.Symbol, err)
	}
	return nil
}

type positionRow struct {
	Symbol   string          `db:"symbol"`
	Name     string          `db:"name"`
	Quantity float64         `db:"quantity"`
	AvgPrice sql.NullFloat64 `db:"avg_price"`
	AddedAt  int64           `db:"added_at"`
}

func (r *SQLRecorder) Positions(ctx context.Context) ([]model.Position, error) {
	var rows []positionRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT symbol, name, quantity, avg_price, added_at FROM positions ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("select positions: %w", err)
	}
	out := make([]model.Position, len(rows))
	for i, row := range rows {
		out[i] = model.Position{
			Symbol:   row.Symbol,
			Name:     row.Name,
			Quantity: row.Quantity,
			AddedAt:  time.Unix(row.AddedAt, 0),
		}
		if row.AvgPrice.Valid {
			v := row.AvgPrice.Float64
			out[i].AvgPrice = &v
		}
	}
	return out, nil
}

// AddPosition inserts the position or replaces the one held for its symbol.
func (r *SQLRecorder) AddPosition(ctx context.Context, pos model.Position) error {
	pos, err := normalizePosition(pos, r.now())
	if err != nil {
		return err
	}
	var avg sql.NullFloat64
	if pos.AvgPrice != nil {
		avg = sql.NullFloat64{Float64: *pos.AvgPrice, Valid: true}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.exec(ctx, `INSERT INTO positions (symbol, name, quantity, avg_price, added_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name,
			quantity = excluded.quantity,
			avg_price = excluded.avg_price`,
		pos.Symbol, pos.Name, pos.Quantity, avg, pos.AddedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", pos.Symbol, err)
	}
	return nil
}

func (r *SQLRecorder) RemovePosition(ctx context.Context, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM positions WHERE symbol = ?`), symbol)
	if err != nil {
		return false, fmt.Errorf("delete position %s: %w", symbol, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM exit_signals WHERE symbol = ?`), symbol); err != nil {
		return false, fmt.Errorf("delete exit signal %s: %w", symbol, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SQLRecorder) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, table := range []string{"opportunities", "exit_signals"} {
		res, err := r.exec(ctx, `DELETE FROM `+table+` WHERE stored_at < ?`, cutoff.Unix())
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (r *SQLRecorder) PruneOrphanExitSignals(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.exec(ctx, `DELETE FROM exit_signals WHERE symbol NOT IN (SELECT symbol FROM positions)`)
	if err != nil {
		return 0, fmt.Errorf("prune exit signals: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLRecorder) RecentOpportunities(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 20
	}
	var payloads []string
	if err := r.db.SelectContext(ctx, &payloads, r.db.Rebind(
		`SELECT payload FROM opportunities ORDER BY stored_at DESC, score DESC LIMIT ?`), limit); err != nil {
		return nil, fmt.Errorf("select opportunities: %w", err)
	}
	out := make([]model.Opportunity, 0, len(payloads))
	for _, p := range payloads {
		var o model.Opportunity
		if err := json.Unmarshal([]byte(p), &o); err != nil {
			return nil, fmt.Errorf("decode opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

// ExitSignals returns the stored exit signals, most urgent first.
func (r *SQLRecorder) ExitSignals(ctx context.Context) ([]model.ExitSignal, error) {
	var payloads []string
	if err := r.db.SelectContext(ctx, &payloads,
		`SELECT payload FROM exit_signals ORDER BY urgency DESC, symbol`); err != nil {
		return nil, fmt.Errorf("select exit signals: %w", err)
	}
	out := make([]model.ExitSignal, 0, len(payloads))
	for _, p := range payloads {
		var s model.ExitSignal
		if err := json.Unmarshal([]byte(p), &s); err != nil {
			return nil, fmt.Errorf("decode exit signal: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SQLRecorder) Close() error {
	log.Info().Msg("closing recorder")
	return r.db.Close()
}
