package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
)

// DefaultLimit is the number of entries List returns when no limit is given.
const DefaultLimit = 50

// timeLayout keeps timestamps sortable as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// errDatabaseRequired is returned when no database handle is provided.
var errDatabaseRequired = errors.New("database is required")

// Entry is one persisted lifecycle event.
type Entry struct {
	// ID is a random row id.
	ID string
	// RunID identifies the process that wrote the row.
	RunID string
	// OccurredAt is the event time in UTC.
	OccurredAt time.Time
	// Kind is the event kind name.
	Kind string
	// CycleID is the cycle the event belongs to.
	CycleID uint64
	// State is the coordinator state after the event.
	State string
	// Detail is the rendered event payload.
	Detail string
}

// EntryFromEvent converts a lifecycle event into a journal entry.
func EntryFromEvent(ev domain.LifecycleEvent) Entry {
	return Entry{
		OccurredAt: ev.At,
		Kind:       ev.Kind.String(),
		CycleID:    ev.CycleID,
		State:      ev.State.String(),
		Detail:     ev.Detail(),
	}
}

// Filter narrows List results.
type Filter struct {
	// Since drops entries older than this time when set.
	Since time.Time
	// Kind keeps only entries of this kind when set.
	Kind string
	// Limit caps the number of most recent entries, DefaultLimit when zero.
	Limit int
}

// Repository stores journal entries.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// SQLite is a Repository backed by a SQLite database.
type SQLite struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// NewSQLite creates a repository on an open database. Every instance gets a new run id.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, errDatabaseRequired
	}

	return &SQLite{
		db:    db,
		runID: uuid.NewString(),
		now:   time.Now,
	}, nil
}

// RunID returns the id attached to rows written by this instance.
func (r *SQLite) RunID() string {
	return r.runID
}

// Append inserts an entry, filling the id, run id and time when they are empty.
func (r *SQLite) Append(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.RunID == "" {
		entry.RunID = r.runID
	}

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now()
	}

	var detail *string
	if entry.Detail != "" {
		detail = &entry.Detail
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (id, run_id, occurred_at, kind, cycle_id, state, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.RunID,
		entry.OccurredAt.UTC().Format(timeLayout),
		strings.ToLower(strings.TrimSpace(entry.Kind)),
		int64(entry.CycleID), //nolint:gosec // Cycle ids start at 1 and grow by one.
		entry.State,
		detail,
	)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}

	return nil
}

// List returns the most recent entries matching filter in chronological order.
func (r *SQLite) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)

	if !filter.Since.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	if kind := strings.ToLower(strings.TrimSpace(filter.Kind)); kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, run_id, occurred_at, kind, cycle_id, state, detail FROM lifecycle_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY occurred_at DESC, rowid DESC LIMIT ?"

	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle events: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entries := make([]Entry, 0, limit)

	for rows.Next() {
		var (
			entry      Entry
			occurredAt string
			cycleID    int64
			detail     sql.NullString
		)

		if err = rows.Scan(&entry.ID, &entry.RunID, &occurredAt, &entry.Kind, &cycleID, &entry.State, &detail); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}

		entry.OccurredAt, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", occurredAt, err)
		}

		entry.CycleID = uint64(cycleID) //nolint:gosec // Stored from a uint64.
		entry.Detail = detail.String
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lifecycle events: %w", err)
	}

	slices.Reverse(entries)

	return entries, nil
}
