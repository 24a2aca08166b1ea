package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeAccessDenied    ErrorCode = "ACCESS_DENIED"
	ErrCodeCannotChange    ErrorCode = "CANNOT_CHANGE_ORDER_STATUS"
	ErrCodeOutOfStock      ErrorCode = "OUT_OF_STOCK"
	ErrCodeConditionNotFit ErrorCode = "CONDITION_NOT_FIT"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// AppError is a business error that is returned to the caller as is.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code and message so wrapped sentinels still compare equal.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeCannotChange, ErrCodeOutOfStock:
		return http.StatusConflict
	case ErrCodeAccessDenied:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeBadRequest, ErrCodeConditionNotFit:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the status for err, 500 for anything that is not an AppError.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

var (
	ErrOrderNotFound       = New(ErrCodeNotFound, "order not found")
	ErrItemNotFound        = New(ErrCodeNotFound, "item not found")
	ErrBuyerNotFound       = New(ErrCodeNotFound, "buyer not found")
	ErrMemberNotFound      = New(ErrCodeNotFound, "member not found")
	ErrItemNotFoundInOrder = New(ErrCodeNotFound, "item not found in order")

	ErrBuyerAlreadyExists = New(ErrCodeConflict, "buyer already exists")
	ErrItemAlreadyExists  = New(ErrCodeConflict, "item already exists")
	ErrOrderCodeConflict  = New(ErrCodeConflict, "order code already taken")

	ErrAccessDenied            = New(ErrCodeAccessDenied, "access denied")
	ErrCannotChangeOrderStatus = New(ErrCodeCannotChange, "cannot change order status")
	ErrOutOfStock              = New(ErrCodeOutOfStock, "out of stock")
	ErrConditionNotFit         = New(ErrCodeConditionNotFit, "search condition does not fit")
	ErrInvalidRequest          = New(ErrCodeBadRequest, "invalid request")
	ErrUnauthorized            = New(ErrCodeUnauthorized, "authentication required")
)
