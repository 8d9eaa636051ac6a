// Package mapstore persists occupancy grid snapshots in a sqlite database.
package mapstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"
	_ "modernc.org/sqlite"

	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/occupancy"
	"github.com/picarx-labs/rover/spatialmath"
)

// schema.sql creates the snapshot table.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("map snapshot not found")

// Summary describes a stored snapshot without its cells.
type Summary struct {
	ID               int64
	SessionID        uuid.UUID
	TakenAt          time.Time
	Width            int
	Height           int
	ResolutionCM     float64
	Origin           r2.Vec
	Pose             spatialmath.Pose
	ExploredFraction float64
	Reason           string
}

// Record is a stored snapshot.
type Record struct {
	Summary
	// LogOdds are the row-major cell values.
	LogOdds []float64
}

// Store writes snapshots for one session. Every Store opened gets a fresh session ID.
type Store struct {
	db      *sql.DB
	session uuid.UUID
	clock   clock.Clock
	logger  logging.Logger
}

// Open opens or creates the database at path. A nil clock uses the wall clock.
func Open(path string, clk clock.Clock, logger logging.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening map store %q", path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing map store schema")
	}

	s := &Store{db: db, session: uuid.New(), clock: clk, logger: logger}
	logger.Infow("opened map store", "path", path, "session", s.session)
	return s, nil
}

// Session is the ID every snapshot written through this Store is tagged with.
func (s *Store) Session() uuid.UUID {
	return s.session
}

// Save writes snap along with the pose it was taken at and returns the new row ID.
func (s *Store) Save(ctx context.Context, snap *occupancy.Snapshot, pose spatialmath.Pose, reason string) (int64, error) {
	blob, err := encodeCells(snap.LogOdds())
	if err != nil {
		return 0, errors.Wrap(err, "encoding grid")
	}

	origin := snap.Origin()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO map_snapshots (
			session_id, taken_unix_nanos, width, height, resolution_cm, origin_x_cm, origin_y_cm,
			pose_x_cm, pose_y_cm, pose_theta_rad, explored_fraction, reason, grid_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session.String(), s.clock.Now().UnixNano(), snap.Width(), snap.Height(), snap.Resolution(),
		origin.X, origin.Y, pose.X, pose.Y, pose.Theta, snap.ExploredFraction(), reason, blob,
	)
	if err != nil {
		return 0, errors.Wrap(err, "inserting map snapshot")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "reading snapshot id")
	}
	s.logger.Debugw("saved map snapshot", "id", id, "reason", reason, "bytes", len(blob))
	return id, nil
}

const summaryColumns = `id, session_id, taken_unix_nanos, width, height, resolution_cm, origin_x_cm,
	origin_y_cm, pose_x_cm, pose_y_cm, pose_theta_rad, explored_fraction, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, extra ...any) (Summary, error) {
	var (
		sum     Summary
		session string
		taken   int64
	)
	dest := []any{
		&sum.ID, &session, &taken, &sum.Width, &sum.Height, &sum.ResolutionCM, &sum.Origin.X,
		&sum.Origin.Y, &sum.Pose.X, &sum.Pose.Y, &sum.Pose.Theta, &sum.ExploredFraction, &sum.Reason,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Summary{}, err
	}
	id, err := uuid.Parse(session)
	if err != nil {
		return Summary{}, errors.Wrapf(err, "snapshot %d has a malformed session id", sum.ID)
	}
	sum.SessionID = id
	sum.TakenAt = time.Unix(0, taken)
	return sum, nil
}

func (s *Store) getRecord(ctx context.Context, where string, args ...any) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+`, grid_blob FROM map_snapshots `+where, args...)
	var blob []byte
	sum, err := scanSummary(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading map snapshot")
	}
	cells, err := decodeCells(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding snapshot %d", sum.ID)
	}
	if len(cells) != sum.Width*sum.Height {
		return nil, errors.Errorf("snapshot %d holds %d cells for a %dx%d grid", sum.ID, len(cells), sum.Width, sum.Height)
	}
	return &Record{Summary: sum, LogOdds: cells}, nil
}

// Latest returns the most recent snapshot from any session.
func (s *Store) Latest(ctx context.Context) (*Record, error) {
	return s.getRecord(ctx, `ORDER BY taken_unix_nanos DESC, id DESC LIMIT 1`)
}

// Get returns the snapshot with the given ID.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	return s.getRecord(ctx, `WHERE id = ?`, id)
}

// List returns up to limit summaries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM map_snapshots ORDER BY taken_unix_nanos DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing map snapshots")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, errors.Wrap(err, "reading map snapshot")
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM map_snapshots WHERE id NOT IN (
			SELECT id FROM map_snapshots ORDER BY taken_unix_nanos DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, errors.Wrap(err, "pruning map snapshots")
	}
	return result.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Restore loads the record into grid.
func (r *Record) Restore(grid *occupancy.Grid) error {
	if r.ResolutionCM != grid.Resolution() {
		return errors.Wrapf(occupancy.ErrDimensionMismatch,
			"stored resolution %vcm, grid resolution %vcm", r.ResolutionCM, grid.Resolution())
	}
	return grid.Restore(r.Width, r.Height, r.LogOdds)
}

func encodeCells(cells []float64) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(cells); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCells(blob []byte) ([]float64, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, errors.Wrap(err, "creating gzip reader")
	}
	defer gz.Close()

	var cells []float64
	if err := gob.NewDecoder(gz).Decode(&cells); err != nil {
		return nil, errors.Wrap(err, "decoding grid cells")
	}
	return cells, nil
}
