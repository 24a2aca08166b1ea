package orders

import "github.com/ariefcatur/go-b2b-orders/internal/apperror"

type Status string

const (
	StatusRequestTemp     Status = "REQUEST_TEMP"
	StatusPurchaseRequest Status = "PURCHASE_REQUEST"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

var knownStatus = map[Status]bool{
	StatusRequestTemp:     true,
	StatusPurchaseRequest: true,
	StatusApproved:        true,
	StatusRejected:        true,
	StatusCancelled:       true,
}

func (s Status) Valid() bool { return knownStatus[s] }

// Decided statuses are only reachable through the approver path.
func (s Status) Decided() bool { return s == StatusApproved || s == StatusRejected }

func (s Status) Cancellable() bool {
	return s == StatusRequestTemp || s == StatusPurchaseRequest
}

// Terminal statuses admit no further change through the generic update path.
func (s Status) Terminal() bool {
	return s.Decided() || s == StatusCancelled
}

// CountsAgainstStock reports whether lines of an order in this status consume inventory.
func (s Status) CountsAgainstStock() bool {
	return s != StatusCancelled && s != StatusRejected
}

// CheckUpdate evaluates the generic update guards in order; the first violation wins.
// to is nil when the patch does not touch the status.
func CheckUpdate(from Status, to *Status) error {
	if to != nil && to.Decided() {
		return apperror.ErrAccessDenied
	}
	if to != nil && *to == StatusCancelled && !from.Cancellable() {
		return apperror.ErrCannotChangeOrderStatus
	}
	if from == StatusCancelled {
		return apperror.ErrCannotChangeOrderStatus
	}
	if to != nil && from.Terminal() {
		return apperror.ErrCannotChangeOrderStatus
	}
	return nil
}

// CheckDecision guards the approver path.
func CheckDecision(from, to Status) error {
	if !to.Decided() {
		return apperror.ErrInvalidRequest
	}
	if from == StatusCancelled {
		return apperror.ErrCannotChangeOrderStatus
	}
	return nil
}

// CheckInitial validates the status an order is created with.
func CheckInitial(s Status) error {
	switch {
	case s.Decided():
		return apperror.ErrAccessDenied
	case s == StatusCancelled:
		return apperror.ErrCannotChangeOrderStatus
	case !s.Valid():
		return apperror.ErrInvalidRequest
	}
	return nil
}
