package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dyike/RightOfWay/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

type Store struct {
	db *sql.DB
}

// NegotiationWithMeta is an archived negotiation as read back from the
// database. Turns and Transcript are only filled by GetNegotiation.
type NegotiationWithMeta struct {
	models.NegotiationRecord
	RowID int64 `json:"row_id"`
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases and WAL writes consistent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS negotiations (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    location_id TEXT NOT NULL,
    network TEXT NOT NULL DEFAULT '',
    buyer_id INTEGER NOT NULL DEFAULT 0,
    seller_id INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    price TEXT,
    market_price TEXT,
    rounds INTEGER NOT NULL DEFAULT 0,
    transcript BLOB,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
    negotiation_id TEXT NOT NULL REFERENCES negotiations(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    speaker INTEGER NOT NULL,
    action TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    amount TEXT,
    PRIMARY KEY(negotiation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_negotiations_buyer ON negotiations(buyer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_negotiations_seller ON negotiations(seller_id, created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

// SaveNegotiation archives a finished negotiation and its turns. Saving the
// same id twice replaces the earlier copy.
func (s *Store) SaveNegotiation(ctx context.Context, rec models.NegotiationRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("negotiation id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.Now()
	}
	blob, err := compressTranscript(rec.Transcript)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO negotiations (id, kind, location_id, network, buyer_id, seller_id, success, outcome, price, market_price, rounds, transcript, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    kind=excluded.kind,
    location_id=excluded.location_id,
    network=excluded.network,
    buyer_id=excluded.buyer_id,
    seller_id=excluded.seller_id,
    success=excluded.success,
    outcome=excluded.outcome,
    price=excluded.price,
    market_price=excluded.market_price,
    rounds=excluded.rounds,
    transcript=excluded.transcript
`, rec.ID, rec.Kind, rec.LocationID, string(rec.Network), rec.BuyerID, rec.SellerID, rec.Success,
		string(rec.Outcome), nullAmount(rec.Price), nullAmount(rec.MarketPrice), rec.Rounds, blob, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert negotiation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE negotiation_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	for i, t := range rec.Turns {
		_, err := tx.ExecContext(ctx, `
INSERT INTO turns (negotiation_id, seq, speaker, action, message, amount)
VALUES (?, ?, ?, ?, ?, ?)
`, rec.ID, i+1, t.Speaker, string(t.Action), t.Message, nullAmount(t.OfferAmount))
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit negotiation: %w", err)
	}
	return nil
}

// ListNegotiations pages through the archive newest first. cursor is the
// RowID of the last item of the previous page, or 0 for the first page.
func (s *Store) ListNegotiations(ctx context.Context, cursor int64, limit int) ([]NegotiationWithMeta, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT rowid, id, kind, location_id, network, buyer_id, seller_id, success, outcome, price, market_price, rounds, created_at
FROM negotiations
WHERE (? = 0 OR rowid < ?)
ORDER BY rowid DESC
LIMIT ?
`, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list negotiations: %w", err)
	}
	defer rows.Close()

	var out []NegotiationWithMeta
	for rows.Next() {
		rec, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list negotiations rows: %w", err)
	}
	return out, nil
}

// GetNegotiation returns nil, nil when no negotiation has the id.
func (s *Store) GetNegotiation(ctx context.Context, id string) (*NegotiationWithMeta, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("negotiation id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT rowid, id, kind, location_id, network, buyer_id, seller_id, success, outcome, price, market_price, rounds, created_at, transcript
FROM negotiations
WHERE id = ?
LIMIT 1
`, id)

	var blob []byte
	rec, err := scanNegotiation(row, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if rec.Transcript, err = decompressTranscript(blob); err != nil {
		return nil, err
	}
	if rec.Turns, err = s.listTurns(ctx, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) listTurns(ctx context.Context, id string) ([]models.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT speaker, action, message, amount
FROM turns
WHERE negotiation_id = ?
ORDER BY seq ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var (
			t      models.ConversationTurn
			action string
			amount sql.NullString
		)
		if err := rows.Scan(&t.Speaker, &action, &t.Message, &amount); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Action = models.TurnAction(action)
		if t.OfferAmount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list turns rows: %w", err)
	}
	return turns, nil
}

// AgentHistory returns the most recent negotiations the agent settled or
// lost, newest first, in the form agents carry into their next negotiation.
func (s *Store) AgentHistory(ctx context.Context, agentID, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT buyer_id, success, price, location_id, created_at
FROM negotiations
WHERE buyer_id = ? OR seller_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, agentID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("agent history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var (
			h       models.HistoryEntry
			buyerID int
			price   sql.NullString
		)
		if err := rows.Scan(&buyerID, &h.Success, &price, &h.LocationID, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Role = models.RoleSeller
		if buyerID == agentID {
			h.Role = models.RoleBuyer
		}
		amount, err := parseAmount(price)
		if err != nil {
			return nil, err
		}
		if amount != nil {
			h.Amount = *amount
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent history rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNegotiation(row scanner, extra ...any) (NegotiationWithMeta, error) {
	var (
		rec                NegotiationWithMeta
		network, outcome   string
		price, marketPrice sql.NullString
	)
	dest := []any{&rec.RowID, &rec.ID, &rec.Kind, &rec.LocationID, &network, &rec.BuyerID, &rec.SellerID,
		&rec.Success, &outcome, &price, &marketPrice, &rec.Rounds, &rec.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan negotiation: %w", err)
	}
	rec.Network = models.Network(network)
	rec.Outcome = models.Outcome(outcome)

	var err error
	if rec.Price, err = parseAmount(price); err != nil {
		return rec, err
	}
	if rec.MarketPrice, err = parseAmount(marketPrice); err != nil {
		return rec, err
	}
	return rec, nil
}

func nullAmount(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseAmount(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", v.String, err)
	}
	return &d, nil
}

func compressTranscript(lines []string) ([]byte, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

func decompressTranscript(blob []byte) ([]string, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress transcript: %w", err)
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return lines, nil
}
