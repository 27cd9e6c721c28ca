// Package sqlstore implements storage.Driver on top of database/sql. It is
// shared by the sqlite and postgres drivers, which only differ in their
// Dialect. Statements are built with ent's SQL builder, which takes care
// of identifier quoting and placeholders for each dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

const turnsTable = "turns"

var turnColumns = []string{"id", "session_id", "role", "content", "created_at", "segment_id"}

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// Name is the ent dialect name, e.g. dialect.SQLite.
	Name string

	// Schema holds the idempotent DDL statements run by Migrate.
	Schema []string
}

// SQLite uses an AUTOINCREMENT sequence.
var SQLite = Dialect{
	Name: dialect.SQLite,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			segment_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON turns (session_id, seq)`,
	},
}

// Postgres uses a BIGSERIAL sequence.
var Postgres = Dialect{
	Name: dialect.Postgres,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			segment_id BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON turns (session_id, seq)`,
	},
}

// Driver is a storage.Driver over a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect

	conn   *entsql.Driver
	closed atomic.Bool
}

// New wraps db and runs the schema migration.
func New(ctx context.Context, db *sql.DB, sd Dialect) (*Driver, error) {
	d := &Driver{
		DB:      db,
		Dialect: sd,
		conn:    entsql.OpenDB(sd.Name, db),
	}
	if err := d.Migrate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Migrate creates the turns table and its index if they do not exist yet.
func (d *Driver) Migrate(ctx context.Context) error {
	for _, stmt := range d.Dialect.Schema {
		if err := d.conn.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Append inserts all turns in a single statement.
func (d *Driver) Append(ctx context.Context, turns ...storage.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	prepared, err := storage.Prepare(turns)
	if err != nil {
		return err
	}

	sessionID := prepared[0].SessionID
	if d.closed.Load() {
		return &storage.Error{Op: "append", SessionID: sessionID, Err: storage.ErrUnreachable}
	}

	insert := d.builder().Insert(turnsTable).Columns(turnColumns...)
	for _, t := range prepared {
		insert.Values(t.ID, t.SessionID, string(t.Role), t.Content, t.CreatedAt.UnixNano(), t.SegmentID)
	}
	query, args := insert.Query()

	// One multi-row INSERT is atomic, so the batch is stored whole or not at all.
	if err := d.conn.Exec(ctx, query, args, nil); err != nil {
		return d.wrap("append", sessionID, fmt.Errorf("inserting %d turns: %w", len(prepared), err))
	}
	return nil
}

// History reads the newest limit turns and returns them oldest first.
func (d *Driver) History(ctx context.Context, sessionID string, limit int) ([]storage.Turn, error) {
	if d.closed.Load() {
		return nil, &storage.Error{Op: "history", SessionID: sessionID, Err: storage.ErrUnreachable}
	}

	selector := d.builder().
		Select(turnColumns...).
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Desc("seq"))
	if limit > 0 {
		selector.Limit(limit)
	}
	query, args := selector.Query()

	var rows entsql.Rows
	if err := d.conn.Query(ctx, query, args, &rows); err != nil {
		return nil, d.wrap("history", sessionID, err)
	}
	defer rows.Close()

	turns := make([]storage.Turn, 0)
	for rows.Next() {
		var (
			t         storage.Turn
			role      string
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &createdAt, &t.SegmentID); err != nil {
			return nil, d.wrap("history", sessionID, fmt.Errorf("scanning turn: %w", err))
		}
		t.Role = storage.Role(role)
		t.CreatedAt = time.Unix(0, createdAt).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap("history", sessionID, err)
	}

	// Rows come back newest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Sessions lists session ids ordered by their latest turn.
func (d *Driver) Sessions(ctx context.Context) ([]string, error) {
	if d.closed.Load() {
		return nil, &storage.Error{Op: "sessions", Err: storage.ErrUnreachable}
	}

	query, args := d.builder().
		Select("session_id").
		From(entsql.Table(turnsTable)).
		GroupBy("session_id").
		OrderExpr(entsql.Expr("MAX(seq) DESC")).
		Query()

	var rows entsql.Rows
	if err := d.conn.Query(ctx, query, args, &rows); err != nil {
		return nil, d.wrap("sessions", "", err)
	}
	defer rows.Close()

	sessions := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, d.wrap("sessions", "", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap("sessions", "", err)
	}
	return sessions, nil
}

// Close closes the underlying database. Later calls fail with
// storage.ErrUnreachable.
func (d *Driver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.conn.Close()
}

func (d *Driver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.Dialect.Name)
}

// wrap converts a database error into a *storage.Error, marking lost
// connections as unreachable.
func (d *Driver) wrap(op, sessionID string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		err = fmt.Errorf("%w: %w", storage.ErrUnreachable, err)
	}
	return &storage.Error{Op: op, SessionID: sessionID, Err: err}
}
