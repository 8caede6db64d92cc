// Package rdsexport checks connectivity to a PostgreSQL instance and exports a
// table to S3 as CSV or Parquet.
package rdsexport

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"workshop-functions/internal/db"
	"workshop-functions/internal/logging"
)

// Statements are the SQL the checker runs. Probe must return a timestamp,
// a database name and a user name.
type Statements struct {
	Probe       string
	CreateUsers string
	SeedUsers   string
	CountUsers  string
	SelectUsers string
}

var PostgresStatements = Statements{
	Probe: "SELECT current_timestamp, current_database(), current_user",
	CreateUsers: `CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    age INT
)`,
	SeedUsers:   "INSERT INTO users (name, age) VALUES ('Alice', 25), ('Bob', 30), ('Charlie', 22)",
	CountUsers:  "SELECT COUNT(*) FROM users",
	SelectUsers: "SELECT id, name, age FROM users ORDER BY id",
}

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Age  *int32 `json:"age"`
}

type CheckResult struct {
	Message string `json:"message"`
	Data    []User `json:"data"`
}

type Checker struct {
	open   db.Opener
	stmts  Statements
	logger *zap.Logger
}

func NewChecker(open db.Opener, stmts Statements, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{open: open, stmts: stmts, logger: logger}
}

// Check connects, reports server identity, makes sure the users table exists
// with sample rows and returns its contents.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	log := logging.ForInvocation(ctx, c.logger)

	pool, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var (
		now      any
		database string
		user     string
	)
	if err := conn.QueryRowContext(ctx, c.stmts.Probe).Scan(&now, &database, &user); err != nil {
		return nil, db.QueryError("probe query", err)
	}
	msg := fmt.Sprintf("Connected successfully! Time: %s, Database: %s, User: %s", formatTime(now), database, user)
	log.Info(msg)

	err = pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, c.stmts.CreateUsers); err != nil {
			return fmt.Errorf("create users: %w", err)
		}
		var n int
		if err := tx.QueryRowContext(ctx, c.stmts.CountUsers).Scan(&n); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if n > 0 {
			return nil
		}
		log.Info("seeding users table")
		if _, err := tx.ExecContext(ctx, c.stmts.SeedUsers); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	users, err := c.users(ctx, conn)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Message: msg, Data: users}, nil
}

func (c *Checker) users(ctx context.Context, conn *sql.DB) ([]User, error) {
	rows, err := conn.QueryContext(ctx, c.stmts.SelectUsers)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u   User
			age sql.NullInt32
		)
		if err := rows.Scan(&u.ID, &u.Name, &age); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if age.Valid {
			u.Age = &age.Int32
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
