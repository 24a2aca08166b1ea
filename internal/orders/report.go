package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var hundred = decimal.NewFromInt(100)

// SaleReport computes stock levels and margin reports from committed order lines.
type SaleReport struct {
	store    Store
	items    Items
	baseline StockBaseline
	costs    CostBasis
	cache    StockCache
	loc      *time.Location
	log      *zap.Logger
	group    singleflight.Group
}

type SaleReportDeps struct {
	Store    Store
	Items    Items
	Baseline StockBaseline
	Costs    CostBasis
	Cache    StockCache
	Location *time.Location
	Logger   *zap.Logger
}

func NewSaleReport(deps SaleReportDeps) *SaleReport {
	r := &SaleReport{
		store:    deps.Store,
		items:    deps.Items,
		baseline: deps.Baseline,
		costs:    deps.Costs,
		cache:    deps.Cache,
		loc:      deps.Location,
		log:      deps.Logger,
	}
	if r.cache == nil {
		r.cache = noopCache{}
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// CalculateInventory is baseline minus every quantity still counting against stock.
// It reads through tx so callers holding item locks see a consistent figure.
func (r *SaleReport) CalculateInventory(ctx context.Context, tx Tx, itemCd string) (int64, error) {
	base, err := r.baseline.Baseline(ctx, itemCd)
	if err != nil {
		return 0, fmt.Errorf("inventory: baseline %s: %w", itemCd, err)
	}
	used, err := tx.CommittedQuantity(ctx, itemCd)
	if err != nil {
		return 0, fmt.Errorf("inventory: committed %s: %w", itemCd, err)
	}
	return base - used, nil
}

// Recompute bypasses the cache and refreshes it with the current figure.
// The generation is read before the store so a write committed in between
// keeps its invalidation.
func (r *SaleReport) Recompute(ctx context.Context, itemCd string) (int64, error) {
	gen, genErr := r.cache.Generation(ctx, itemCd)
	if genErr != nil {
		r.log.Warn("stock cache generation failed", zap.String("item_cd", itemCd), zap.Error(genErr))
	}

	var available int64
	err := r.store.ReadOnly(ctx, func(tx Tx) error {
		var err error
		available, err = r.CalculateInventory(ctx, tx, itemCd)
		return err
	})
	if err != nil {
		return 0, err
	}
	if genErr != nil {
		return available, nil
	}
	if err := r.cache.Set(ctx, itemCd, gen, available); err != nil {
		r.log.Warn("stock cache set failed", zap.String("item_cd", itemCd), zap.Error(err))
	}
	return available, nil
}

func (r *SaleReport) GetStock(ctx context.Context, itemCd string) (InventoryDto, error) {
	if _, err := r.items.FindVerifiedItem(ctx, itemCd); err != nil {
		return InventoryDto{}, err
	}

	if v, ok, err := r.cache.Get(ctx, itemCd); err != nil {
		r.log.Warn("stock cache get failed", zap.String("item_cd", itemCd), zap.Error(err))
	} else if ok {
		return InventoryDto{ItemCd: itemCd, Available: v}, nil
	}

	v, err, _ := r.group.Do(itemCd, func() (any, error) {
		return r.Recompute(ctx, itemCd)
	})
	if err != nil {
		return InventoryDto{}, err
	}
	return InventoryDto{ItemCd: itemCd, Available: v.(int64)}, nil
}

// GetSaleReport aggregates quantity, revenue and margin per item for orders
// created between start and end, both inclusive calendar days.
func (r *SaleReport) GetSaleReport(ctx context.Context, start, end time.Time) ([]SaleReportDto, error) {
	from, to, err := dayWindow(start, end, r.loc)
	if err != nil {
		return nil, err
	}

	var lines []SaleLine
	err = r.store.ReadOnly(ctx, func(tx Tx) error {
		var err error
		lines, err = tx.SalesBetween(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sale report: %w", err)
	}

	codes := make([]string, 0, len(lines))
	for _, l := range lines {
		codes = append(codes, l.ItemCd)
	}
	costs, err := r.costs.UnitCosts(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("sale report: unit costs: %w", err)
	}

	out := make([]SaleReportDto, 0, len(lines))
	for _, l := range lines {
		cost := costs[l.ItemCd].Mul(decimal.NewFromInt(l.Qty))
		out = append(out, SaleReportDto{
			ItemCd:     l.ItemCd,
			ItemNm:     l.ItemNm,
			TotalQty:   l.Qty,
			Revenue:    l.Revenue,
			Cost:       cost,
			MarginRate: MarginRate(l.Revenue, cost),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemCd < out[j].ItemCd })
	return out, nil
}

// MarginRate returns (revenue-cost)/revenue as a percentage with two decimals.
// Zero revenue yields zero.
func MarginRate(revenue, cost decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return revenue.Sub(cost).Div(revenue).Mul(hundred).Round(2)
}
