// Package repository is the MySQL-backed credential store. Uniqueness
// invariants (email, role name, user/role pair, provider/subject pair) are
// enforced by unique keys; the resulting driver errors are translated into
// the sentinels below so higher layers never see raw storage errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a unique key. Services
// translate it into a domain-level conflict.
var ErrConflict = errors.New("conflict")

const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
)

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// isMissingParent reports whether err is a foreign key violation caused by a
// missing referenced row.
func isMissingParent(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errNoReferencedRow
}
