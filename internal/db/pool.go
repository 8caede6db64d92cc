package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/secrets"
)

const (
	ConnectTimeout = 10 * time.Second
	KeepAlive      = 30 * time.Second
)

// Dialect captures the only SQL difference the upsert builder cares about.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
	SQLite   = Dialect{Name: "sqlite", Placeholder: func(int) string { return "?" }}
)

// Pool owns one database handle for the lifetime of an invocation. The caller
// creates it, passes it by reference and closes it on every exit path.
type Pool struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewPool wraps an already opened handle.
func NewPool(db *sql.DB, dialect Dialect, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{db: db, dialect: dialect, logger: logger}
}

// OpenPostgres opens a pgx-backed handle for cred. Nothing is dialed until Conn.
func OpenPostgres(cred secrets.Credential, logger *zap.Logger) (*Pool, error) {
	cfg, err := pgx.ParseConfig(PostgresDSN(cred))
	if err != nil {
		return nil, apperr.Config("parse postgres dsn", err)
	}
	cfg.ConnectTimeout = ConnectTimeout
	dialer := &net.Dialer{Timeout: ConnectTimeout, KeepAlive: KeepAlive}
	cfg.DialFunc = dialer.DialContext

	handle := stdlib.OpenDB(*cfg)
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)

	return NewPool(handle, Postgres, logger), nil
}

// PostgresDSN builds a URL-style DSN; the password is escaped, never logged.
func PostgresDSN(cred secrets.Credential) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cred.Username, cred.Password),
		Host:   net.JoinHostPort(cred.Host, strconv.Itoa(cred.Port)),
		Path:   "/" + cred.DBName,
	}
	q := u.Query()
	q.Set("connect_timeout", strconv.Itoa(int(ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Pool) Dialect() Dialect { return p.dialect }

// Conn returns the handle after checking it is still alive.
func (p *Pool) Conn(ctx context.Context) (*sql.DB, error) {
	if p == nil || p.db == nil {
		return nil, apperr.Connectivity("database pool is closed", nil)
	}
	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := p.db.PingContext(pingCtx); err != nil {
		p.logger.Error("database connection error", zap.Error(err))
		return nil, apperr.Connectivity("database ping", err)
	}
	return p.db, nil
}

// WithTx runs fn in one transaction. Any error or panic rolls back; otherwise it commits.
func (p *Pool) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	conn, err := p.Conn(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Connectivity("begin transaction", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				p.logger.Error("rollback failed", zap.Error(rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit: %w", cErr)
		}
	}()

	return fn(tx)
}

// Close releases the handle. Safe to call more than once.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
