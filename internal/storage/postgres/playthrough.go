package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/darklord/internal/game/consequence"
)

// ErrPlaythroughNotFound is returned when a playthrough lookup yields no results.
var ErrPlaythroughNotFound = errors.New("playthrough not found")

// ErrPlaythroughExists is returned when attempting to create a duplicate playthrough.
var ErrPlaythroughExists = errors.New("playthrough already exists")

// ErrSequenceConflict is returned when appending a record whose sequence
// number is already stored for the playthrough. The record log is append-only
// with dense sequence numbers, so a conflict means two writers raced or a
// caller replayed an old record.
var ErrSequenceConflict = errors.New("record sequence conflict")

// Playthrough is a stored playthrough row. The record log itself lives in
// consequence_records and is loaded separately.
type Playthrough struct {
	ID             string
	ContentVersion string
	CreatedAt      time.Time
}

// PlaythroughRepository persists playthroughs and their consequence record logs.
type PlaythroughRepository struct {
	db *pgxpool.Pool
}

// NewPlaythroughRepository creates a PlaythroughRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlaythroughRepository(db *pgxpool.Pool) *PlaythroughRepository {
	return &PlaythroughRepository{db: db}
}

// Create inserts a new playthrough pinned to a content pack version.
//
// Precondition: id and contentVersion must be non-empty.
// Postcondition: Returns the created Playthrough with CreatedAt set,
// or ErrPlaythroughExists if the id is taken.
func (r *PlaythroughRepository) Create(ctx context.Context, id, contentVersion string) (Playthrough, error) {
	var pt Playthrough
	err := r.db.QueryRow(ctx,
		`INSERT INTO playthroughs (id, content_version)
		 VALUES ($1, $2)
		 RETURNING id, content_version, created_at`,
		id, contentVersion,
	).Scan(&pt.ID, &pt.ContentVersion, &pt.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Playthrough{}, ErrPlaythroughExists
		}
		return Playthrough{}, fmt.Errorf("inserting playthrough: %w", err)
	}
	return pt, nil
}

// Get retrieves a playthrough by id.
//
// Postcondition: Returns the Playthrough or ErrPlaythroughNotFound.
func (r *PlaythroughRepository) Get(ctx context.Context, id string) (Playthrough, error) {
	var pt Playthrough
	err := r.db.QueryRow(ctx,
		`SELECT id, content_version, created_at
		 FROM playthroughs WHERE id = $1`,
		id,
	).Scan(&pt.ID, &pt.ContentVersion, &pt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Playthrough{}, ErrPlaythroughNotFound
		}
		return Playthrough{}, fmt.Errorf("querying playthrough: %w", err)
	}
	return pt, nil
}

// AppendRecord stores one committed consequence record.
//
// Precondition: rec must carry the sequence number the in-memory graph
// assigned on commit.
// Postcondition: The record is stored, or ErrSequenceConflict if that
// sequence number is already present for the playthrough.
func (r *PlaythroughRepository) AppendRecord(ctx context.Context, playthroughID string, rec consequence.Record) error {
	effects, err := json.Marshal(rec.Effects)
	if err != nil {
		return fmt.Errorf("encoding effects: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO consequence_records (playthrough_id, seq, record_id, source_event_id, effects)
		 VALUES ($1, $2, $3, $4, $5)`,
		playthroughID, rec.Seq, rec.ID, rec.SourceEventID, effects,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrSequenceConflict
		}
		return fmt.Errorf("inserting consequence record: %w", err)
	}
	return nil
}

// LoadRecords retrieves the full record log in sequence order.
//
// Postcondition: Returns the playthrough's content version and every record
// ordered by ascending Seq, or ErrPlaythroughNotFound.
func (r *PlaythroughRepository) LoadRecords(ctx context.Context, playthroughID string) (string, []consequence.Record, error) {
	pt, err := r.Get(ctx, playthroughID)
	if err != nil {
		return "", nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT seq, record_id, source_event_id, effects
		 FROM consequence_records
		 WHERE playthrough_id = $1
		 ORDER BY seq ASC`,
		playthroughID,
	)
	if err != nil {
		return "", nil, fmt.Errorf("querying consequence records: %w", err)
	}
	defer rows.Close()

	var records []consequence.Record
	for rows.Next() {
		var rec consequence.Record
		var effects []byte
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.SourceEventID, &effects); err != nil {
			return "", nil, fmt.Errorf("scanning consequence record: %w", err)
		}
		if err := json.Unmarshal(effects, &rec.Effects); err != nil {
			return "", nil, fmt.Errorf("decoding effects for seq %d: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("iterating consequence records: %w", err)
	}

	return pt.ContentVersion, records, nil
}

// Delete removes a playthrough and its record log.
//
// Postcondition: The playthrough and all its records are gone, or
// ErrPlaythroughNotFound if the id does not exist.
func (r *PlaythroughRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM playthroughs WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting playthrough: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaythroughNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
