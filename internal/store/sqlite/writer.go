package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"eliteguard/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Writer is a SQLite writer (WAL mode, one open connection) for Position
// state, TimeoutMeta, the candle-ring cache, and the Event Bus's
// durable mirror. It implements model.PositionStore, model.TimeoutMetaStore,
// and model.CandleCacheStore.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes WAL mode and schema.
func New(dbPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			ticket       INTEGER PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			state        TEXT    NOT NULL,
			data         TEXT    NOT NULL,
			updated_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS timeout_meta (
			ticket       INTEGER PRIMARY KEY,
			data         TEXT    NOT NULL,
			updated_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS candle_cache (
			symbol       TEXT    NOT NULL,
			tf           INTEGER NOT NULL,
			data         TEXT    NOT NULL,
			saved_at     INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf)
		);

		CREATE TABLE IF NOT EXISTS event_log (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type   TEXT    NOT NULL,
			payload      TEXT    NOT NULL,
			created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS user_entitlements (
			user_id      TEXT PRIMARY KEY,
			tier         TEXT NOT NULL DEFAULT 'TIER_BEGINNER',
			updated_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tier_history (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      TEXT    NOT NULL,
			old_tier     TEXT,
			new_tier     TEXT    NOT NULL,
			changed_by   TEXT,
			reason       TEXT,
			changed_at   INTEGER NOT NULL
		);
	`)
	return err
}

// ── PositionStore ──

// SavePosition writes the full Position atomically (spec §3 invariant:
// every state mutation must be durable before the next command fires).
func (w *Writer) SavePosition(p *model.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	_, err = w.db.Exec(
		`INSERT INTO positions (ticket, symbol, state, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ticket) DO UPDATE SET symbol=excluded.symbol, state=excluded.state, data=excluded.data, updated_at=excluded.updated_at`,
		p.Ticket, p.Symbol, string(p.State), string(data), time.Now().Unix(),
	)
	return err
}

// LoadPosition returns the Position for a ticket, if present.
func (w *Writer) LoadPosition(ticket int64) (*model.Position, bool, error) {
	var data string
	err := w.db.QueryRow(`SELECT data FROM positions WHERE ticket = ?`, ticket).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p model.Position
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, false, fmt.Errorf("unmarshal position: %w", err)
	}
	return &p, true, nil
}

// LoadAllOpenPositions returns every position not in a terminal state,
// for warm-starting the Exit FSM after a restart.
func (w *Writer) LoadAllOpenPositions() ([]*model.Position, error) {
	rows, err := w.db.Query(
		`SELECT data FROM positions WHERE state != ?`,
		string(model.StateClosed),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p model.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshal position: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeletePosition removes a position row (called once it reaches a
// terminal state and has been fully reconciled).
func (w *Writer) DeletePosition(ticket int64) error {
	_, err := w.db.Exec(`DELETE FROM positions WHERE ticket = ?`, ticket)
	return err
}

// ── TimeoutMetaStore ──

// SetTimeoutMeta persists the tier's MAX_HOLD_MIN and open timestamp
// for timeout scanning (spec §4.G).
func (w *Writer) SetTimeoutMeta(meta model.TimeoutMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal timeout meta: %w", err)
	}
	_, err = w.db.Exec(
		`INSERT INTO timeout_meta (ticket, data, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(ticket) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		meta.Ticket, string(data), time.Now().Unix(),
	)
	return err
}

// GetTimeoutMeta returns the TimeoutMeta for a ticket, if present.
func (w *Writer) GetTimeoutMeta(ticket int64) (*model.TimeoutMeta, error) {
	var data string
	err := w.db.QueryRow(`SELECT data FROM timeout_meta WHERE ticket = ?`, ticket).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m model.TimeoutMeta
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal timeout meta: %w", err)
	}
	return &m, nil
}

// ClearTimeoutMeta removes a ticket's row. TimeoutScanner calls it when a
// timeout fires and from Disarm; the TP1 and close paths do not call it.
func (w *Writer) ClearTimeoutMeta(ticket int64) error {
	_, err := w.db.Exec(`DELETE FROM timeout_meta WHERE ticket = ?`, ticket)
	return err
}

// ── CandleCacheStore ──

// SaveCache serializes a symbol/TF ring snapshot to disk (spec §4.B:
// "periodically serialize the last rings per symbol to disk").
func (w *Writer) SaveCache(symbol string, tf int, candles []model.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("marshal candle cache: %w", err)
	}
	_, err = w.db.Exec(
		`INSERT INTO candle_cache (symbol, tf, data, saved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(symbol, tf) DO UPDATE SET data=excluded.data, saved_at=excluded.saved_at`,
		symbol, tf, string(data), time.Now().Unix(),
	)
	return err
}

// LoadCache restores a previously saved ring snapshot, rejecting it if
// older than maxAge seconds.
func (w *Writer) LoadCache(symbol string, tf int, maxAge int64) ([]model.Candle, bool, error) {
	var data string
	var savedAt int64
	err := w.db.QueryRow(
		`SELECT data, saved_at FROM candle_cache WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&data, &savedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if maxAge > 0 && time.Now().Unix()-savedAt > maxAge {
		return nil, false, nil
	}
	var candles []model.Candle
	if err := json.Unmarshal([]byte(data), &candles); err != nil {
		return nil, false, fmt.Errorf("unmarshal candle cache: %w", err)
	}
	return candles, true, nil
}

// ── Event Bus mirror ──

// AppendEvent durably mirrors one Event Bus message (spec §4.H), used
// as the collector's fallback when Redis Streams consumers fall
// behind or the schema-validation step rejects a malformed payload for
// manual inspection.
func (w *Writer) AppendEvent(eventType string, payload []byte) error {
	_, err := w.db.Exec(
		`INSERT INTO event_log (event_type, payload) VALUES (?, ?)`,
		eventType, string(payload),
	)
	return err
}

// PruneEvents deletes event_log rows older than the given age.
func (w *Writer) PruneEvents(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	_, err := w.db.Exec(`DELETE FROM event_log WHERE created_at < ?`, cutoff)
	return err
}

// ── EntitlementStore ──

// GetUserTier returns the user's current tier, defaulting new users to
// TIER_BEGINNER (grounded on entitlement.py's get_user_tier).
func (w *Writer) GetUserTier(userID string) (string, error) {
	var tier string
	err := w.db.QueryRow(`SELECT tier FROM user_entitlements WHERE user_id = ?`, userID).Scan(&tier)
	if err == sql.ErrNoRows {
		if err := w.SetUserTier(userID, "TIER_BEGINNER", "system", "new user default"); err != nil {
			return "", err
		}
		return "TIER_BEGINNER", nil
	}
	if err != nil {
		return "", err
	}
	return tier, nil
}

// SetUserTier updates a user's tier and records the transition in
// tier_history, mirroring entitlement.py's set_user_tier.
func (w *Writer) SetUserTier(userID, tier, changedBy, reason string) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldTier sql.NullString
	if err := tx.QueryRow(`SELECT tier FROM user_entitlements WHERE user_id = ?`, userID).Scan(&oldTier); err != nil && err != sql.ErrNoRows {
		return err
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`INSERT INTO user_entitlements (user_id, tier, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET tier=excluded.tier, updated_at=excluded.updated_at`,
		userID, tier, now,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO tier_history (user_id, old_tier, new_tier, changed_by, reason, changed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, oldTier, tier, changedBy, reason, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
