// Package store keeps a history of runs in a SQLite database.
//
// Rows are buffered in memory and written in one transaction when the batch
// fills, on Flush, and on Close.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/tahsin716/pimc"
)

const tableName = "runs"

// DefaultBatchSize is the number of buffered records that triggers a flush.
const DefaultBatchSize = 16

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store: closed")

// Record is one row of the history table. Column names are the field names;
// every field must be a scalar.
type Record struct {
	RunID         string
	StartedAt     int64 // unix milliseconds
	Backend       string
	Accuracy      int64
	Workers       int64
	Requested     int64
	Samples       int64
	Hits          int64
	ElapsedMillis int64
	Tier          string
	CapExceeded   bool
	Partial       bool
	Error         string
}

// NewRecord converts a run result into a row. runErr may be nil.
func NewRecord(res pimc.RunResult, runErr error) Record {
	rec := Record{
		RunID:         res.RunID,
		StartedAt:     time.Now().Add(-res.Elapsed()).UnixMilli(),
		Backend:       res.Backend,
		Accuracy:      int64(res.Accuracy),
		Workers:       int64(len(res.Workers)),
		Requested:     clampInt64(res.RequestedSamples),
		Samples:       clampInt64(res.TotalSamples),
		Hits:          clampInt64(res.HitsInside),
		ElapsedMillis: clampInt64(res.ElapsedMillis),
		Tier:          res.Tier.String(),
		CapExceeded:   res.CapExceeded,
		Partial:       res.Partial,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Pi returns the recorded estimate, or NaN for a run without samples.
func (r Record) Pi() float64 {
	if r.Samples == 0 {
		return math.NaN()
	}
	return float64(r.Hits) / float64(r.Samples) * 4
}

// Started returns StartedAt as a time.
func (r Record) Started() time.Time {
	return time.UnixMilli(r.StartedAt)
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets how many records are buffered before a flush.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// Store is a run history backed by SQLite. It is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	path      string
	batchSize int
	pending   []Record
	closed    bool
	log       logrus.FieldLogger
}

// Open opens or creates the database at path. An empty path creates a new
// database named pimc_runs_<id>.sqlite3 in the working directory.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "pimc_runs_" + xid.New().String() + ".sqlite3"
	}

	s := &Store{
		path:      path,
		batchSize: DefaultBatchSize,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s.db = db

	if err := s.createTable(); err != nil {
		db.Close()
		return nil, err
	}

	s.log.WithField("path", path).Debug("Run history opened")
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createTable() error {
	fields := strings.Join(structs.Names(Record{}), ", \n\t")
	createTableSQL := `CREATE TABLE IF NOT EXISTS ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`

	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("store: create table: %w", err)
	}
	return nil
}

// Record buffers the outcome of a run.
func (s *Store) Record(res pimc.RunResult, runErr error) error {
	return s.Insert(NewRecord(res, runErr))
}

// Insert buffers rec, flushing when the batch is full.
func (s *Store) Insert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.pending = append(s.pending, rec)
	if len(s.pending) >= s.batchSize {
		return s.flushLocked()
	}
	return nil
}

// Flush writes buffered records in one transaction.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(structs.Names(Record{}))), ", ")
	stmt, err := tx.Prepare("INSERT INTO " + tableName + " VALUES (" + placeholders + ")")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range s.pending {
		if _, err := stmt.Exec(structs.Values(rec)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert %s: %w", rec.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	s.log.WithField("records", len(s.pending)).Debug("Run history flushed")
	s.pending = nil
	return nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
// Buffered records are flushed first.
func (s *Store) List(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	query := "SELECT " + strings.Join(structs.Names(Record{}), ", ") +
		" FROM " + tableName + " ORDER BY StartedAt DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(fieldPointers(&rec)...); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// fieldPointers returns pointers to rec's fields, in column order.
func fieldPointers(rec *Record) []any {
	v := reflect.ValueOf(rec).Elem()
	ptrs := make([]any, v.NumField())
	for i := range ptrs {
		ptrs[i] = v.Field(i).Addr().Interface()
	}
	return ptrs
}

// Close flushes buffered records and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	flushErr := s.flushLocked()
	s.closed = true
	return errors.Join(flushErr, s.db.Close())
}
