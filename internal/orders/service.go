package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
)

// StockPolicy decides when a new order is refused for lack of stock.
type StockPolicy int

const (
	// StockPolicyAllLines refuses the order only when every line would leave
	// its item with no stock.
	StockPolicyAllLines StockPolicy = iota
	// StockPolicyAnyLine refuses the order as soon as one line would.
	StockPolicyAnyLine
)

type NewOrderLine struct {
	ItemCd    string
	Qty       int64
	UnitPrice Optional[decimal.Decimal]
	StartDate time.Time
	EndDate   time.Time
	Unit      string
}

type NewOrder struct {
	BuyerCd     string
	RequestDate time.Time
	Status      Status
	Lines       []NewOrderLine
}

type OrderPatch struct {
	OrderID     int64
	Status      Optional[Status]
	RequestDate Optional[time.Time]
}

type LinePatch struct {
	Qty       Optional[int64]
	UnitPrice Optional[decimal.Decimal]
	StartDate Optional[time.Time]
	EndDate   Optional[time.Time]
}

type Deps struct {
	Store    Store
	Members  Members
	Buyers   Buyers
	Items    Items
	Baseline StockBaseline
	Costs    CostBasis
	Cache    StockCache
	Events   EventSink
	Logger   *zap.Logger
	Clock    func() time.Time
	Location *time.Location

	StockPolicy StockPolicy
	CodeRetries int
	Producer    string
}

type Service struct {
	store   Store
	members Members
	buyers  Buyers
	items   Items
	cache   StockCache
	events  EventSink
	log     *zap.Logger
	clock   func() time.Time

	seq     *SequenceGenerator
	history *HistoryRecorder
	report  *SaleReport

	policy   StockPolicy
	retries  int
	producer string
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("order service: store is required")
	case deps.Members == nil:
		return nil, errors.New("order service: member lookup is required")
	case deps.Buyers == nil:
		return nil, errors.New("order service: buyer lookup is required")
	case deps.Items == nil:
		return nil, errors.New("order service: item lookup is required")
	case deps.Baseline == nil:
		return nil, errors.New("order service: stock baseline is required")
	case deps.Costs == nil:
		return nil, errors.New("order service: cost basis is required")
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	base := deps.Clock
	if base == nil {
		base = time.Now
	}
	clock := func() time.Time { return base().In(loc) }

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cache := deps.Cache
	if cache == nil {
		cache = noopCache{}
	}
	events := deps.Events
	if events == nil {
		events = noopSink{}
	}
	retries := deps.CodeRetries
	if retries < 1 {
		retries = 1
	}
	producer := deps.Producer
	if producer == "" {
		producer = "order-api"
	}

	return &Service{
		store:   deps.Store,
		members: deps.Members,
		buyers:  deps.Buyers,
		items:   deps.Items,
		cache:   cache,
		events:  events,
		log:     log,
		clock:   clock,
		seq:     NewSequenceGenerator(clock),
		history: NewHistoryRecorder(clock),
		report: NewSaleReport(SaleReportDeps{
			Store:    deps.Store,
			Items:    deps.Items,
			Baseline: deps.Baseline,
			Costs:    deps.Costs,
			Cache:    cache,
			Location: loc,
			Logger:   log,
		}),
		policy:   deps.StockPolicy,
		retries:  retries,
		producer: producer,
	}, nil
}

// Report exposes the inventory engine, e.g. for the stock cache worker.
func (s *Service) Report() *SaleReport { return s.report }

func (s *Service) CreateOrder(ctx context.Context, principal string, in NewOrder) (*OrderHeader, error) {
	actor, err := s.members.FindVerifiedMember(ctx, principal)
	if err != nil {
		return nil, err
	}
	draft, err := s.prepare(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	var created *OrderHeader
	for attempt := 1; ; attempt++ {
		created, err = s.createOnce(ctx, actor, draft.clone())
		if err == nil || !errors.Is(err, apperror.ErrOrderCodeConflict) || attempt >= s.retries {
			break
		}
		s.log.Warn("order code conflict, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.Int64("order_id", created.OrderID),
		zap.String("order_cd", created.OrderCd),
		zap.String("employee_id", actor.EmployeeID))
	s.afterCommit(ctx, EventOrderCreated, created, "", actor)
	return created, nil
}

// CreateOrders submits each order in its own transaction and stops at the
// first failure, returning the orders created so far.
func (s *Service) CreateOrders(ctx context.Context, principal string, in []NewOrder) ([]*OrderHeader, error) {
	if len(in) == 0 {
		return nil, apperror.ErrInvalidRequest
	}
	out := make([]*OrderHeader, 0, len(in))
	for i := range in {
		h, err := s.CreateOrder(ctx, principal, in[i])
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *Service) prepare(ctx context.Context, actor *Member, in NewOrder) (*OrderHeader, error) {
	if strings.TrimSpace(in.BuyerCd) == "" || in.RequestDate.IsZero() || len(in.Lines) == 0 {
		return nil, apperror.ErrInvalidRequest
	}
	status := in.Status
	if status == "" {
		status = StatusPurchaseRequest
	}
	if err := CheckInitial(status); err != nil {
		return nil, err
	}

	buyer, err := s.buyers.FindVerifiedBuyer(ctx, in.BuyerCd)
	if err != nil {
		return nil, err
	}

	h := &OrderHeader{
		Status:      status,
		RequestDate: in.RequestDate,
		BuyerCd:     buyer.BuyerCd,
		BuyerNm:     buyer.BuyerNm,
		EmployeeID:  actor.EmployeeID,
		Lines:       make([]OrderLine, 0, len(in.Lines)),
	}
	for _, nl := range in.Lines {
		if strings.TrimSpace(nl.ItemCd) == "" {
			return nil, apperror.ErrInvalidRequest
		}
		item, err := s.items.FindVerifiedItem(ctx, nl.ItemCd)
		if err != nil {
			return nil, err
		}
		line := OrderLine{
			ItemCd:    item.ItemCd,
			Qty:       nl.Qty,
			UnitPrice: item.UnitPrice,
			StartDate: nl.StartDate,
			EndDate:   nl.EndDate,
			Unit:      nl.Unit,
		}
		nl.UnitPrice.Apply(&line.UnitPrice)
		if line.Unit == "" {
			line.Unit = item.Unit
		}
		h.Lines = append(h.Lines, line)
	}
	return h, nil
}

func (s *Service) createOnce(ctx context.Context, actor *Member, h *OrderHeader) (*OrderHeader, error) {
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.LockItems(ctx, h.ItemCodes()); err != nil {
			return fmt.Errorf("lock items: %w", err)
		}
		if err := s.checkStock(ctx, tx, h.Lines); err != nil {
			return err
		}

		code, err := s.seq.Next(ctx, tx)
		if err != nil {
			return err
		}
		h.OrderCd = code
		h.CreatedAt = s.clock()

		if err := tx.InsertOrder(ctx, h); err != nil {
			return err
		}
		_, err = s.history.Record(ctx, tx, h, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) checkStock(ctx context.Context, tx Tx, lines []OrderLine) error {
	short := 0
	for _, l := range lines {
		available, err := s.report.CalculateInventory(ctx, tx, l.ItemCd)
		if err != nil {
			return err
		}
		if available-l.Qty <= 0 {
			short++
		}
	}
	switch s.policy {
	case StockPolicyAnyLine:
		if short > 0 {
			return apperror.ErrOutOfStock
		}
	default:
		if short == len(lines) {
			return apperror.ErrOutOfStock
		}
	}
	return nil
}

// UpdateOrder changes status and/or request date through the generic path.
func (s *Service) UpdateOrder(ctx context.Context, principal string, patch OrderPatch) (*OrderHeader, error) {
	actor, err := s.members.FindVerifiedMember(ctx, principal)
	if err != nil {
		return nil, err
	}
	if patch.Status.Set && !patch.Status.Value.Valid() {
		return nil, apperror.ErrInvalidRequest
	}

	var (
		updated *OrderHeader
		prev    Status
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		h, err := tx.FindOrderForUpdate(ctx, patch.OrderID)
		if err != nil {
			return err
		}
		if err := CheckUpdate(h.Status, patch.Status.Ptr()); err != nil {
			return err
		}
		prev = h.Status

		patch.Status.Apply(&h.Status)
		patch.RequestDate.Apply(&h.RequestDate)

		if _, err := s.history.Record(ctx, tx, h, actor); err != nil {
			return err
		}
		if err := tx.UpdateOrderHeader(ctx, h); err != nil {
			return err
		}
		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, EventOrderUpdated, updated, prev, actor)
	return updated, nil
}

// UpdateOrderItem merges a line patch; the line must belong to orderID.
func (s *Service) UpdateOrderItem(ctx context.Context, principal string, orderID, lineID int64, patch LinePatch) (*OrderHeader, error) {
	actor, err := s.members.FindVerifiedMember(ctx, principal)
	if err != nil {
		return nil, err
	}

	var updated *OrderHeader
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		h, err := tx.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		line, err := tx.FindOrderLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.OrderID != orderID {
			return apperror.ErrItemNotFoundInOrder
		}
		if patch.Qty.Set {
			if err := tx.LockItems(ctx, []string{line.ItemCd}); err != nil {
				return fmt.Errorf("lock items: %w", err)
			}
		}

		patch.Qty.Apply(&line.Qty)
		patch.UnitPrice.Apply(&line.UnitPrice)
		patch.StartDate.Apply(&line.StartDate)
		patch.EndDate.Apply(&line.EndDate)
		line.OrderID = h.OrderID

		if err := tx.UpdateOrderLine(ctx, line); err != nil {
			return err
		}
		for i := range h.Lines {
			if h.Lines[i].LineID == line.LineID {
				h.Lines[i] = *line
			}
		}
		if _, err := s.history.Record(ctx, tx, h, actor); err != nil {
			return err
		}
		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, EventOrderLineUpdated, updated, updated.Status, actor)
	return updated, nil
}

// UpdateStatus is the approver path: it sets APPROVED or REJECTED.
func (s *Service) UpdateStatus(ctx context.Context, principal string, orderID int64, status Status) (*OrderHeader, error) {
	actor, err := s.members.FindVerifiedMember(ctx, principal)
	if err != nil {
		return nil, err
	}
	if !actor.CanDecide() {
		return nil, apperror.ErrAccessDenied
	}

	var (
		updated *OrderHeader
		prev    Status
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		h, err := tx.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := CheckDecision(h.Status, status); err != nil {
			return err
		}
		prev = h.Status
		h.Status = status

		if _, err := s.history.Record(ctx, tx, h, actor); err != nil {
			return err
		}
		if err := tx.UpdateOrderHeader(ctx, h); err != nil {
			return err
		}
		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order decided",
		zap.Int64("order_id", updated.OrderID),
		zap.String("status", string(status)),
		zap.String("employee_id", actor.EmployeeID))
	s.afterCommit(ctx, EventOrderDecided, updated, prev, actor)
	return updated, nil
}

func (s *Service) FindOrder(ctx context.Context, orderID int64) (*OrderHeader, error) {
	var h *OrderHeader
	err := s.store.ReadOnly(ctx, func(tx Tx) error {
		var err error
		h, err = tx.FindOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// FindOrders pages through orders newest first; page is 1-indexed.
func (s *Service) FindOrders(ctx context.Context, search OrderSearch, page, size int) (Page[OrderHeader], error) {
	q, err := search.toQuery(s.clock().Location(), page, size)
	if err != nil {
		return Page[OrderHeader]{}, err
	}
	var (
		items []OrderHeader
		total int64
	)
	err = s.store.ReadOnly(ctx, func(tx Tx) error {
		var err error
		items, total, err = tx.SearchOrders(ctx, q)
		return err
	})
	if err != nil {
		return Page[OrderHeader]{}, err
	}
	return newPage(items, page, size, total), nil
}

// FindHistories pages through the sale history of one order, newest first.
func (s *Service) FindHistories(ctx context.Context, orderID int64, page, size int) (Page[SaleHistory], error) {
	offset, err := pageWindow(page, size)
	if err != nil {
		return Page[SaleHistory]{}, err
	}
	var (
		items []SaleHistory
		total int64
	)
	err = s.store.ReadOnly(ctx, func(tx Tx) error {
		if _, err := tx.FindOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		items, total, err = tx.ListSaleHistories(ctx, orderID, offset, size)
		return err
	})
	if err != nil {
		return Page[SaleHistory]{}, err
	}
	return newPage(items, page, size, total), nil
}

func (s *Service) GetStock(ctx context.Context, itemCd string) (InventoryDto, error) {
	return s.report.GetStock(ctx, itemCd)
}

func (s *Service) GenerateReport(ctx context.Context, start, end time.Time) ([]SaleReportDto, error) {
	return s.report.GetSaleReport(ctx, start, end)
}

// afterCommit never fails the call: the order is already durable.
func (s *Service) afterCommit(ctx context.Context, eventType string, h *OrderHeader, prev Status, actor *Member) {
	if err := s.cache.Invalidate(ctx, h.ItemCodes()...); err != nil {
		s.log.Warn("stock cache invalidate failed", zap.Int64("order_id", h.OrderID), zap.Error(err))
	}

	ev, err := NewEnvelope(s.producer, eventType, s.clock(), h, prev, actor.EmployeeID)
	if err != nil {
		s.log.Error("build event failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	ev.TraceID = TraceID(ctx)
	if err := s.events.Emit(ctx, ev); err != nil {
		s.log.Warn("publish event failed",
			zap.String("event_type", eventType),
			zap.Int64("order_id", h.OrderID),
			zap.Error(err))
	}
}

type traceKey struct{}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey{}).(string)
	return v
}
