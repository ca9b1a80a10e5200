package settlement

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"cuadre-backend/internal/fee"
	"cuadre-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

type InvalidStateTransitionError struct {
	Entity string // "settlement_batch" | "order"
	ID     uint
	From   models.SettlementState
	Event  Event
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from state %s", e.Entity, e.ID, e.Event, e.From)
}

type ConfirmationRequiredError struct{}

func (e *ConfirmationRequiredError) Error() string {
	return "funds verification must be confirmed"
}

type ScopeMismatchError struct {
	OrderID  uint
	Expected models.Scope
}

func (e *ScopeMismatchError) Error() string {
	return fmt.Sprintf("order %d does not belong to scope %s", e.OrderID, e.Expected)
}

type AlreadySettledError struct {
	OrderIDs []uint
}

func (e *AlreadySettledError) Error() string {
	return fmt.Sprintf("orders already settled: %v", e.OrderIDs)
}

type EvidenceRequiredError struct{}

func (e *EvidenceRequiredError) Error() string { return "evidence reference is required" }

type ObservationRequiredError struct{}

func (e *ObservationRequiredError) Error() string { return "observation reason is required" }

type EmptySelectionError struct{}

func (e *EmptySelectionError) Error() string { return "no orders selected" }

type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Entity, e.ID) }

// PersistenceError wraps a storage failure. Retryable marks transient conditions
// (lock contention, serialization failures, lost connections).
type PersistenceError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsDomain reports whether err belongs to the caller-visible taxonomy.
func IsDomain(err error) bool {
	var (
		ist *InvalidStateTransitionError
		cr  *ConfirmationRequiredError
		sm  *ScopeMismatchError
		as  *AlreadySettledError
		er  *EvidenceRequiredError
		or  *ObservationRequiredError
		es  *EmptySelectionError
		nf  *NotFoundError
	)
	return errors.As(err, &ist) || errors.As(err, &cr) || errors.As(err, &sm) ||
		errors.As(err, &as) || errors.As(err, &er) || errors.As(err, &or) ||
		errors.As(err, &es) || errors.As(err, &nf) || isFeeError(err)
}

// wrapStorage leaves domain errors untouched and wraps everything else.
func wrapStorage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err, Retryable: transient(err)}
}

func transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"57014": // query_canceled (statement timeout)
			return true
		}
		return false
	}
	if pgconn.Timeout(err) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isFeeError(err error) bool {
	var fe *fee.InvalidFeeError
	return errors.As(err, &fe)
}
