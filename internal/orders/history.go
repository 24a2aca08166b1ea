package orders

import (
	"context"
	"fmt"
	"time"
)

// HistoryRecorder appends one SaleHistory row per order mutation.
type HistoryRecorder struct {
	clock func() time.Time
}

func NewHistoryRecorder(clock func() time.Time) *HistoryRecorder {
	if clock == nil {
		clock = time.Now
	}
	return &HistoryRecorder{clock: clock}
}

// Snapshot builds the row for h as it stands now.
func (r *HistoryRecorder) Snapshot(h *OrderHeader, actor *Member) *SaleHistory {
	return &SaleHistory{
		CreatedAt:   r.clock(),
		EmployeeID:  actor.EmployeeID,
		OrderID:     h.OrderID,
		OrderCd:     h.OrderCd,
		OrderStatus: h.Status,
		OrderDate:   h.CreatedAt,
		RequestDate: h.RequestDate,
		BuyerNm:     h.BuyerNm,
		BuyerCd:     h.BuyerCd,
		Lines:       append([]OrderLine(nil), h.Lines...),
	}
}

func (r *HistoryRecorder) Record(ctx context.Context, tx Tx, h *OrderHeader, actor *Member) (*SaleHistory, error) {
	row := r.Snapshot(h, actor)
	if err := tx.AppendSaleHistory(ctx, row); err != nil {
		return nil, fmt.Errorf("sale history: append order %d: %w", h.OrderID, err)
	}
	return row, nil
}
