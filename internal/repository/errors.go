// Package repository defines the MySQL data access layer.  Sentinel errors
// declared here let the service and handler layers tell conflict,
// not-found and integration failures apart with errors.Is.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// Capacity ledger errors.
var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionFull               = errors.New("session is fully booked")
	ErrAlreadyRegistered         = errors.New("user already registered")
	ErrCapacityBelowParticipants = errors.New("capacity below current participant count")
)

// Purchase record store errors.
var (
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrDuplicateReference = errors.New("duplicate payment reference")
)

var (
	ErrWorkshopNotFound = errors.New("workshop not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailExists      = errors.New("email already exists")
	ErrCheckoutOpen     = errors.New("checkout already open")
	ErrIntentNotFound   = errors.New("checkout intent not found")
)

// MySQL server error numbers used for classification.
const (
	mysqlDuplicateKey = 1062
	mysqlNoParentRow  = 1452
)

func isDuplicateKey(err error) bool { return mysqlErrNumber(err) == mysqlDuplicateKey }

func isMissingParent(err error) bool { return mysqlErrNumber(err) == mysqlNoParentRow }

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}
