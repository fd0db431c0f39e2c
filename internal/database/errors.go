package database

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the checkout engine reacts to.
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

// ErrIntegrity marks constraint violations (duplicate key, dangling
// foreign key).  They are never retried.
var ErrIntegrity = errors.New("integrity violation")

// ErrTransient marks failures that may succeed when the whole request is
// retried: lost connections, deadlocks, lock wait timeouts and deadlines.
var ErrTransient = errors.New("transient store failure")

type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string { return c.kind.Error() + ": " + c.err.Error() }
func (c *classified) Unwrap() []error { return []error{c.kind, c.err} }

// Classify tags err with ErrIntegrity or ErrTransient when it recognises
// the underlying driver failure.  Unknown errors are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIntegrity) || errors.Is(err, ErrTransient) {
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDupEntry, errNoReferencedRow:
			return &classified{kind: ErrIntegrity, err: err}
		case errLockWaitTimeout, errLockDeadlock:
			return &classified{kind: ErrTransient, err: err}
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return &classified{kind: ErrTransient, err: err}
	}
	return err
}

// IsDuplicate reports whether err is a duplicate key violation.
func IsDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDupEntry
}
