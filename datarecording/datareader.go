package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
)

// Selection narrows the rows read from a table.
type Selection struct {
	// Where is a condition without the WHERE keyword, for example
	// "Traffic > ?".
	Where string
	Args  []any

	// OrderBy lists the sort keys without the ORDER BY keywords.
	OrderBy string

	// Limit caps the number of rows. 0 reads all of them.
	Limit  int
	Offset int
}

func (s Selection) filter() string {
	if s.Where == "" {
		return ""
	}

	return " WHERE " + s.Where
}

func (s Selection) clauses() string {
	clauses := s.filter()

	if s.OrderBy != "" {
		clauses += " ORDER BY " + s.OrderBy
	}

	if s.Limit > 0 {
		clauses += fmt.Sprintf(" LIMIT %d", s.Limit)
		if s.Offset > 0 {
			clauses += fmt.Sprintf(" OFFSET %d", s.Offset)
		}
	}

	return clauses
}

// A Reader reads back a database written by a DataRecorder.
type Reader struct {
	db     *sql.DB
	ownsDB bool
}

// OpenReader opens a recorded database read-only.
func OpenReader(filename string) (*Reader, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+filename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	return &Reader{db: db, ownsDB: true}, nil
}

// NewReaderWithDB creates a Reader over a database that the caller keeps
// ownership of.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Tables lists the recorded tables by name.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// Count returns the number of rows matching the condition of the selection.
// The order and the limits are ignored.
func (r *Reader) Count(
	ctx context.Context,
	table string,
	sel Selection,
) (int, error) {
	var count int

	query := "SELECT COUNT(*) FROM " + table + sel.filter()
	err := r.db.QueryRowContext(ctx, query, sel.Args...).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// QueryRow runs a query that returns at most one row, typically an
// aggregate.
func (r *Reader) QueryRow(
	ctx context.Context,
	query string,
	args ...any,
) *sql.Row {
	return r.db.QueryRowContext(ctx, query, args...)
}

// Close releases the database if the reader opened it.
func (r *Reader) Close() error {
	if !r.ownsDB {
		return nil
	}

	return r.db.Close()
}

// Select reads the rows of a table as entries of type T. Every exported
// field of T must be a column of the table, which holds for the type the
// table was created with.
func Select[T any](
	ctx context.Context,
	r *Reader,
	table string,
	sel Selection,
) ([]T, error) {
	var sample T
	if reflect.TypeOf(sample).Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot read %s into %T", table, sample)
	}

	columns := structs.Names(sample)
	query := "SELECT " + strings.Join(columns, ", ") + " FROM " + table +
		sel.clauses()

	rows, err := r.db.QueryContext(ctx, query, sel.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []T
	targets := make([]any, len(columns))

	for rows.Next() {
		var entry T

		v := reflect.ValueOf(&entry).Elem()
		for i, column := range columns {
			targets[i] = v.FieldByName(column).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("reading %s: %w", table, err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
