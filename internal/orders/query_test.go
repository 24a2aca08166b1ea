package orders

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
)

func TestPageWindow(t *testing.T) {
	off, err := pageWindow(3, 20)
	require.NoError(t, err)
	assert.Equal(t, 40, off)

	_, err = pageWindow(0, 10)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
	_, err = pageWindow(1, 0)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
	_, err = pageWindow(1, MaxPageSize+1)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)

	off, err = pageWindow(2, MaxPageSize)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, off)
}

func TestPageWindowRejectsOverflow(t *testing.T) {
	_, err := pageWindow(3, 1<<62)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
	_, err = pageWindow(math.MaxInt, MaxPageSize)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
}

func TestNewPage(t *testing.T) {
	p := newPage[int](nil, 2, 10, 21)
	assert.Equal(t, 3, p.TotalPages)
	assert.NotNil(t, p.Items)
	assert.Equal(t, 0, newPage[int](nil, 1, 10, 0).TotalPages)
}

func TestDayWindowIsInclusive(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	day := time.Date(2024, 12, 11, 0, 0, 0, 0, time.UTC)

	from, to, err := dayWindow(day, day, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 11, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2024, 12, 12, 0, 0, 0, 0, loc), to)

	_, _, err = dayWindow(day.AddDate(0, 0, 1), day, loc)
	assert.ErrorIs(t, err, apperror.ErrConditionNotFit)
}

func TestDayWindowDefaults(t *testing.T) {
	from, to, err := dayWindow(time.Time{}, time.Time{}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1900, from.Year())
	assert.Equal(t, time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestOrderSearchToQuery(t *testing.T) {
	q, err := OrderSearch{Status: StatusApproved, ItemCd: "I001"}.toQuery(time.UTC, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, q.Offset)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, StatusApproved, q.Status)

	_, err = OrderSearch{Status: "SHIPPED"}.toQuery(time.UTC, 1, 5)
	assert.ErrorIs(t, err, apperror.ErrConditionNotFit)
}

func TestOrderQueryMatches(t *testing.T) {
	at := time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC)
	h := &OrderHeader{OrderID: 3, Status: StatusPurchaseRequest, BuyerCd: "B001", CreatedAt: at,
		Lines: []OrderLine{{ItemCd: "I001"}}}
	base := OrderQuery{CreatedFrom: at.Add(-time.Hour), CreatedTo: at.Add(time.Hour)}

	assert.True(t, base.Matches(h))

	q := base
	q.ItemCd = "I002"
	assert.False(t, q.Matches(h))

	q = base
	q.CreatedTo = at
	assert.False(t, q.Matches(h), "upper bound is exclusive")

	q = base
	q.Status = StatusApproved
	assert.False(t, q.Matches(h))
}

func TestMarginRate(t *testing.T) {
	assert.True(t, MarginRate(decimal.Zero, decimal.NewFromInt(10)).IsZero())
	assert.Equal(t, "40", MarginRate(decimal.NewFromInt(500), decimal.NewFromInt(300)).String())
	assert.Equal(t, "33.33", MarginRate(decimal.NewFromInt(3), decimal.NewFromInt(2)).String())
	assert.Equal(t, "-50", MarginRate(decimal.NewFromInt(100), decimal.NewFromInt(150)).String())
}
