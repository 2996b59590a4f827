// Package store is the relational data layer behind the assistant: catalog,
// baskets, users, coupons, the raw query surface used by the SQL tool, and the
// durable chat message log. It speaks database/sql and supports SQLite,
// PostgreSQL and MySQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(s) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "mysql", "mariadb":
		return DriverMySQL, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
}

type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

type BasketItem struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Basket is a snapshot of one user's basket. ID is zero until the first
// item is added.
type Basket struct {
	ID     int64        `json:"id"`
	UserID int64        `json:"userId"`
	Items  []BasketItem `json:"items"`
}

func (b *Basket) Empty() bool { return b == nil || len(b.Items) == 0 }

func (b *Basket) Total() float64 {
	var total float64
	for _, it := range b.Items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func (b *Basket) Contains(productID int64) bool {
	for _, it := range b.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

type Coupon struct {
	Code      string    `json:"code"`
	UserID    int64     `json:"userId"`
	Discount  int       `json:"discount"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MessageRecord is one entry of the durable chat log.
type MessageRecord struct {
	ID        int64  `json:"id"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

// Store wraps a database handle with the dialect details needed to build
// portable queries.
type Store struct {
	db     *sql.DB
	driver Driver
	now    func() time.Time
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver, now: time.Now}
}

func (s *Store) Driver() Driver { return s.driver }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// rebind rewrites ? placeholders into the driver's bind syntax.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(s.placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// insertID runs an INSERT and returns the new row id. PostgreSQL has no
// LastInsertId, so the statement gets a RETURNING clause there.
func (s *Store) insertID(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	if s.driver == DriverPostgres {
		var id int64
		err := q.QueryRowContext(ctx, s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
