package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"workshop-functions/internal/apperr"
)

// QueryError classifies a failed statement. Lost or unreachable connections
// are connectivity errors, PostgreSQL data and integrity violations (SQLSTATE
// classes 22 and 23) are data errors, and everything else, such as a missing
// table or a syntax error, is internal.
func QueryError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return apperr.Connectivity(msg, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return apperr.Data(msg, err)
	}
	return apperr.New(apperr.KindInternal, msg, err)
}

// IsConnectionError reports whether err means the server could not be reached
// or the connection dropped.
func IsConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	// 08: connection exception, 57P: operator intervention (shutdown, terminated).
	return errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P"))
}
