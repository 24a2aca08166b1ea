package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tx is the persistence surface available inside one transaction.
type Tx interface {
	InsertOrder(ctx context.Context, h *OrderHeader) error
	UpdateOrderHeader(ctx context.Context, h *OrderHeader) error
	UpdateOrderLine(ctx context.Context, l *OrderLine) error
	FindOrder(ctx context.Context, orderID int64) (*OrderHeader, error)
	// FindOrderForUpdate is FindOrder plus a header row lock held until the
	// transaction ends; every guarded mutation reads through it.
	FindOrderForUpdate(ctx context.Context, orderID int64) (*OrderHeader, error)
	FindOrderLine(ctx context.Context, lineID int64) (*OrderLine, error)
	SearchOrders(ctx context.Context, q OrderQuery) ([]OrderHeader, int64, error)

	// LatestOrderCode returns the greatest order code starting with prefix.
	LatestOrderCode(ctx context.Context, prefix string) (string, bool, error)
	// AdvanceOrderSequence atomically bumps the counter for token to max(counter, floor)+1.
	AdvanceOrderSequence(ctx context.Context, token string, floor int) (int, error)

	// LockItems takes row locks on the given items until the transaction ends.
	LockItems(ctx context.Context, itemCds []string) error
	// CommittedQuantity sums line quantities of orders that still count against stock.
	CommittedQuantity(ctx context.Context, itemCd string) (int64, error)
	SalesBetween(ctx context.Context, from, to time.Time) ([]SaleLine, error)

	AppendSaleHistory(ctx context.Context, h *SaleHistory) error
	ListSaleHistories(ctx context.Context, orderID int64, offset, limit int) ([]SaleHistory, int64, error)
}

type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(tx Tx) error) error
}

type Members interface {
	FindVerifiedMember(ctx context.Context, employeeID string) (*Member, error)
}

// Buyers must not return INACTIVE buyers.
type Buyers interface {
	FindVerifiedBuyer(ctx context.Context, buyerCd string) (*Buyer, error)
}

type Items interface {
	FindVerifiedItem(ctx context.Context, itemCd string) (*Item, error)
}

// StockBaseline reports the received stock of an item; unknown items have 0.
type StockBaseline interface {
	Baseline(ctx context.Context, itemCd string) (int64, error)
}

// CostBasis reports unit costs; items missing from the result cost nothing.
type CostBasis interface {
	UnitCosts(ctx context.Context, itemCds []string) (map[string]decimal.Decimal, error)
}

// StockCache holds available stock per item. Invalidate bumps the item's
// generation; Set stores a value only while the generation still equals gen.
type StockCache interface {
	Get(ctx context.Context, itemCd string) (int64, bool, error)
	Generation(ctx context.Context, itemCd string) (int64, error)
	Set(ctx context.Context, itemCd string, gen, available int64) error
	Invalidate(ctx context.Context, itemCds ...string) error
}

type EventSink interface {
	Emit(ctx context.Context, ev Envelope) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (int64, bool, error)  { return 0, false, nil }
func (noopCache) Generation(context.Context, string) (int64, error) { return 0, nil }
func (noopCache) Set(context.Context, string, int64, int64) error   { return nil }
func (noopCache) Invalidate(context.Context, ...string) error       { return nil }

type noopSink struct{}

func (noopSink) Emit(context.Context, Envelope) error { return nil }
