package orders

import (
	"math"
	"time"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
)

var (
	DefaultStartDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultEndDate   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// OrderSearch is the caller facing filter; zero values mean "any".
type OrderSearch struct {
	Status    Status
	BuyerCd   string
	ItemCd    string
	OrderID   int64
	StartDate time.Time
	EndDate   time.Time
}

// OrderQuery is the normalised filter handed to the store.
// CreatedFrom is inclusive, CreatedTo exclusive.
type OrderQuery struct {
	Status      Status
	BuyerCd     string
	ItemCd      string
	OrderID     int64
	CreatedFrom time.Time
	CreatedTo   time.Time
	Offset      int
	Limit       int
}

type Page[T any] struct {
	Items         []T   `json:"data"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func newPage[T any](items []T, page, size int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{Items: items, Page: page, Size: size, TotalElements: total, TotalPages: pages}
}

// MaxPageSize bounds every paged lookup.
const MaxPageSize = 1000

// pageWindow converts a 1-indexed page into an offset.
func pageWindow(page, size int) (int, error) {
	if page < 1 || size < 1 || size > MaxPageSize {
		return 0, apperror.ErrInvalidRequest
	}
	if page-1 > math.MaxInt/size {
		return 0, apperror.ErrInvalidRequest
	}
	return (page - 1) * size, nil
}

// dayWindow turns an inclusive calendar date range into [from, to) in loc.
func dayWindow(start, end time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if start.IsZero() {
		start = DefaultStartDate
	}
	if end.IsZero() {
		end = DefaultEndDate
	}
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, apperror.ErrConditionNotFit
	}
	return from, to, nil
}

func (s OrderSearch) toQuery(loc *time.Location, page, size int) (OrderQuery, error) {
	if s.Status != "" && !s.Status.Valid() {
		return OrderQuery{}, apperror.ErrConditionNotFit
	}
	if s.OrderID < 0 {
		return OrderQuery{}, apperror.ErrConditionNotFit
	}
	offset, err := pageWindow(page, size)
	if err != nil {
		return OrderQuery{}, err
	}
	from, to, err := dayWindow(s.StartDate, s.EndDate, loc)
	if err != nil {
		return OrderQuery{}, err
	}
	return OrderQuery{
		Status:      s.Status,
		BuyerCd:     s.BuyerCd,
		ItemCd:      s.ItemCd,
		OrderID:     s.OrderID,
		CreatedFrom: from,
		CreatedTo:   to,
		Offset:      offset,
		Limit:       size,
	}, nil
}

// Matches is used by stores that filter in process.
func (q OrderQuery) Matches(h *OrderHeader) bool {
	if q.Status != "" && h.Status != q.Status {
		return false
	}
	if q.BuyerCd != "" && h.BuyerCd != q.BuyerCd {
		return false
	}
	if q.OrderID != 0 && h.OrderID != q.OrderID {
		return false
	}
	if h.CreatedAt.Before(q.CreatedFrom) || !h.CreatedAt.Before(q.CreatedTo) {
		return false
	}
	if q.ItemCd != "" {
		for _, l := range h.Lines {
			if l.ItemCd == q.ItemCd {
				return true
			}
		}
		return false
	}
	return true
}
