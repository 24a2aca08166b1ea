package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

func sampleOrder(code string, status orders.Status, at time.Time, qty int64) *orders.OrderHeader {
	return &orders.OrderHeader{
		OrderCd:     code,
		Status:      status,
		RequestDate: at,
		CreatedAt:   at,
		BuyerCd:     "B001",
		BuyerNm:     "Acme",
		EmployeeID:  "E1",
		Lines: []orders.OrderLine{
			{ItemCd: "I001", Qty: qty, UnitPrice: decimal.NewFromInt(100)},
		},
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx orders.Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, sampleOrder("24DEC1100001", orders.StatusPurchaseRequest, time.Now(), 3)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.ReadOnly(ctx, func(tx orders.Tx) error {
		_, err := tx.FindOrder(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrOrderNotFound)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.ReadOnly(ctx, func(tx orders.Tx) error {
		return tx.InsertOrder(ctx, sampleOrder("24DEC1100001", orders.StatusPurchaseRequest, time.Now(), 1))
	})
	assert.ErrorIs(t, err, errReadOnly)

	err = s.ReadOnly(ctx, func(tx orders.Tx) error {
		_, err := tx.FindOrderForUpdate(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestInsertOrderRejectsDuplicateCode(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.WithinTx(ctx, func(tx orders.Tx) error {
		return tx.InsertOrder(ctx, sampleOrder("24DEC1100001", orders.StatusPurchaseRequest, now, 1))
	}))
	err := s.WithinTx(ctx, func(tx orders.Tx) error {
		return tx.InsertOrder(ctx, sampleOrder("24DEC1100001", orders.StatusPurchaseRequest, now, 1))
	})
	assert.ErrorIs(t, err, apperror.ErrOrderCodeConflict)
}

func TestCommittedQuantityIgnoresCancelledAndRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.WithinTx(ctx, func(tx orders.Tx) error {
		for i, st := range []orders.Status{
			orders.StatusPurchaseRequest, orders.StatusApproved, orders.StatusCancelled, orders.StatusRejected,
		} {
			code := orders.FormatOrderCode("24DEC11", i+1)
			if err := tx.InsertOrder(ctx, sampleOrder(code, st, now, 2)); err != nil {
				return err
			}
		}
		return nil
	}))

	var used int64
	require.NoError(t, s.ReadOnly(ctx, func(tx orders.Tx) error {
		var err error
		used, err = tx.CommittedQuantity(ctx, "I001")
		return err
	}))
	assert.Equal(t, int64(4), used)
}

func TestAdvanceOrderSequenceHonoursFloor(t *testing.T) {
	s := New()
	ctx := context.Background()
	var got []int
	require.NoError(t, s.WithinTx(ctx, func(tx orders.Tx) error {
		for _, floor := range []int{0, 0, 7, 3} {
			n, err := tx.AdvanceOrderSequence(ctx, "24DEC11", floor)
			if err != nil {
				return err
			}
			got = append(got, n)
		}
		return nil
	}))
	assert.Equal(t, []int{1, 2, 8, 9}, got)
}

func TestSearchOrdersNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 12, 11, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithinTx(ctx, func(tx orders.Tx) error {
		for i := 0; i < 5; i++ {
			h := sampleOrder(orders.FormatOrderCode("24DEC11", i+1), orders.StatusPurchaseRequest, base.Add(time.Duration(i)*time.Minute), 1)
			if err := tx.InsertOrder(ctx, h); err != nil {
				return err
			}
		}
		return nil
	}))

	var (
		page  []orders.OrderHeader
		total int64
	)
	require.NoError(t, s.ReadOnly(ctx, func(tx orders.Tx) error {
		var err error
		page, total, err = tx.SearchOrders(ctx, orders.OrderQuery{
			CreatedFrom: orders.DefaultStartDate,
			CreatedTo:   orders.DefaultEndDate,
			Offset:      2,
			Limit:       2,
		})
		return err
	}))
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].OrderID)
	assert.Equal(t, int64(2), page[1].OrderID)
	require.Len(t, page[0].Lines, 1)
}

func TestAddBuyerRejectsDuplicates(t *testing.T) {
	s := New()
	_, err := s.AddBuyer(orders.Buyer{BuyerCd: "B001", BuyerNm: "Acme", Tel: "1", Email: "a@x"})
	require.NoError(t, err)

	cases := []orders.Buyer{
		{BuyerCd: "B001", BuyerNm: "Other"},
		{BuyerCd: "B002", BuyerNm: "Acme"},
		{BuyerCd: "B003", BuyerNm: "Third", Tel: "1"},
		{BuyerCd: "B004", BuyerNm: "Fourth", Email: "a@x"},
	}
	for _, b := range cases {
		_, err := s.AddBuyer(b)
		assert.ErrorIs(t, err, apperror.ErrBuyerAlreadyExists, b.BuyerCd)
	}
}

func TestInactiveBuyerIsNotVerified(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.AddBuyer(orders.Buyer{BuyerCd: "B001", BuyerNm: "Acme"})
	require.NoError(t, err)
	require.NoError(t, s.DeactivateBuyer("B001"))

	_, err = s.FindVerifiedBuyer(ctx, "B001")
	assert.ErrorIs(t, err, apperror.ErrBuyerNotFound)
}

func TestAddItemRejectsDuplicates(t *testing.T) {
	s := New()
	_, err := s.AddItem(orders.Item{ItemCd: "I001", ItemNm: "Widget"})
	require.NoError(t, err)

	_, err = s.AddItem(orders.Item{ItemCd: "I001", ItemNm: "Gadget"})
	assert.ErrorIs(t, err, apperror.ErrItemAlreadyExists)
	_, err = s.AddItem(orders.Item{ItemCd: "I002", ItemNm: "widget"})
	assert.ErrorIs(t, err, apperror.ErrItemAlreadyExists)
}

func TestSalesBetweenAggregatesPerItem(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.AddItem(orders.Item{ItemCd: "I001", ItemNm: "Widget"})
	require.NoError(t, err)

	day := time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithinTx(ctx, func(tx orders.Tx) error {
		if err := tx.InsertOrder(ctx, sampleOrder("24DEC1100001", orders.StatusPurchaseRequest, day, 2)); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, sampleOrder("24DEC1100002", orders.StatusApproved, day, 3)); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, sampleOrder("24DEC1100003", orders.StatusCancelled, day, 50)); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, sampleOrder("24DEC1200001", orders.StatusApproved, day.AddDate(0, 0, 1), 9))
	}))

	var lines []orders.SaleLine
	require.NoError(t, s.ReadOnly(ctx, func(tx orders.Tx) error {
		var err error
		lines, err = tx.SalesBetween(ctx, day.Truncate(24*time.Hour), day.Truncate(24*time.Hour).AddDate(0, 0, 1))
		return err
	}))
	require.Len(t, lines, 1)
	assert.Equal(t, "Widget", lines[0].ItemNm)
	assert.Equal(t, int64(5), lines[0].Qty)
	assert.True(t, decimal.NewFromInt(500).Equal(lines[0].Revenue))
}

func TestListSaleHistoriesNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 12, 11, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithinTx(ctx, func(tx orders.Tx) error {
		for i := 0; i < 3; i++ {
			row := &orders.SaleHistory{OrderID: 1, CreatedAt: base.Add(time.Duration(i) * time.Second)}
			if err := tx.AppendSaleHistory(ctx, row); err != nil {
				return err
			}
		}
		return tx.AppendSaleHistory(ctx, &orders.SaleHistory{OrderID: 2, CreatedAt: base})
	}))

	var (
		rows  []orders.SaleHistory
		total int64
	)
	require.NoError(t, s.ReadOnly(ctx, func(tx orders.Tx) error {
		var err error
		rows, total, err = tx.ListSaleHistories(ctx, 1, 0, 10)
		return err
	}))
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0].HistoryID)
	assert.Equal(t, int64(1), rows[2].HistoryID)
}
