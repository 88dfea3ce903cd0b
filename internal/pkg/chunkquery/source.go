package chunkquery

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
)

// Cursor is an open fragment result set. The caller must Close it.
type Cursor interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Source runs chunked queries over a gorm connection.
type Source struct {
	db      *gorm.DB
	dialect Dialect
	log     *logger.Logger
}

// NewSource creates a source with an explicit dialect.
func NewSource(db *gorm.DB, dialect Dialect, log *logger.Logger) *Source {
	if log == nil {
		log = logger.L()
	}
	return &Source{db: db, dialect: dialect, log: log.Named("chunkquery")}
}

// SourceFor picks the dialect matching the database driver.
func SourceFor(db *database.DB) (*Source, error) {
	dialect, err := DialectFor(db.Driver())
	if err != nil {
		return nil, err
	}
	return NewSource(db.DB, dialect, db.Logger()), nil
}

// Dialect returns the dialect in use.
func (s *Source) Dialect() Dialect {
	return s.dialect
}

// Open runs the query for spec. The caller must Close the returned cursor.
func (s *Source) Open(ctx context.Context, spec Spec) (Cursor, error) {
	query, err := s.dialect.Build(spec)
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Debug("opening chunked query",
		zap.String("dialect", s.dialect.Name()),
		zap.String("spec", spec.Key()),
	)

	rows, err := s.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("chunkquery: %s query: %w", s.dialect.Name(), err)
	}
	return &Rows{rows: rows}, nil
}

// Rows is a forward-only cursor over fragment rows.
type Rows struct {
	rows *sql.Rows
	text string
	err  error
}

// Next advances to the next fragment. It returns false at the end of the
// result set or on a scan failure, which Err then reports.
func (r *Rows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	var s sql.NullString
	if err := r.rows.Scan(&s); err != nil {
		r.err = err
		return false
	}
	r.text = s.String
	return true
}

// Text returns the current fragment.
func (r *Rows) Text() string {
	return r.text
}

// Err returns the first scan or iteration error.
func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// Close releases the underlying connection.
func (r *Rows) Close() error {
	return r.rows.Close()
}
