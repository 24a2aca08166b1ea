package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

var errReadOnly = errors.New("memstore: write in read-only transaction")

// state is everything a transaction can change. Transactions work on a copy
// that replaces the live state only when fn succeeds.
type state struct {
	nextOrderID   int64
	nextLineID    int64
	nextHistoryID int64
	headers       map[int64]orders.OrderHeader
	lines         map[int64]orders.OrderLine
	lineIDs       map[int64][]int64
	codes         map[string]int64
	histories     []orders.SaleHistory
	counters      map[string]int
}

func newState() *state {
	return &state{
		nextOrderID:   1,
		nextLineID:    1,
		nextHistoryID: 1,
		headers:       make(map[int64]orders.OrderHeader),
		lines:         make(map[int64]orders.OrderLine),
		lineIDs:       make(map[int64][]int64),
		codes:         make(map[string]int64),
		counters:      make(map[string]int),
	}
}

func (s *state) clone() *state {
	cp := &state{
		nextOrderID:   s.nextOrderID,
		nextLineID:    s.nextLineID,
		nextHistoryID: s.nextHistoryID,
		headers:       make(map[int64]orders.OrderHeader, len(s.headers)),
		lines:         make(map[int64]orders.OrderLine, len(s.lines)),
		lineIDs:       make(map[int64][]int64, len(s.lineIDs)),
		codes:         make(map[string]int64, len(s.codes)),
		histories:     append([]orders.SaleHistory(nil), s.histories...),
		counters:      make(map[string]int, len(s.counters)),
	}
	for k, v := range s.headers {
		cp.headers[k] = v
	}
	for k, v := range s.lines {
		cp.lines[k] = v
	}
	for k, v := range s.lineIDs {
		cp.lineIDs[k] = append([]int64(nil), v...)
	}
	for k, v := range s.codes {
		cp.codes[k] = v
	}
	for k, v := range s.counters {
		cp.counters[k] = v
	}
	return cp
}

// Store is an in-process implementation of every persistence collaborator.
type Store struct {
	mu    sync.RWMutex
	state *state

	refMu     sync.RWMutex
	members   map[string]orders.Member
	buyers    map[string]orders.Buyer
	items     map[string]orders.Item
	baselines map[string]int64
	costs     map[string]decimal.Decimal
	nextRefID int64
}

func New() *Store {
	return &Store{
		state:     newState(),
		members:   make(map[string]orders.Member),
		buyers:    make(map[string]orders.Buyer),
		items:     make(map[string]orders.Item),
		baselines: make(map[string]int64),
		costs:     make(map[string]decimal.Decimal),
		nextRefID: 1,
	}
}

var (
	_ orders.Store         = (*Store)(nil)
	_ orders.Members       = (*Store)(nil)
	_ orders.Buyers        = (*Store)(nil)
	_ orders.Items         = (*Store)(nil)
	_ orders.StockBaseline = (*Store)(nil)
	_ orders.CostBasis     = (*Store)(nil)
)

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTx{store: s, st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) ReadOnly(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{store: s, st: s.state, readOnly: true})
}

// ---- reference data ----

func (s *Store) AddMember(m orders.Member) orders.Member {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	m.MemberID = s.nextRefID
	s.nextRefID++
	if m.Role == "" {
		m.Role = orders.RoleEmployee
	}
	s.members[m.EmployeeID] = m
	return m
}

// AddBuyer rejects duplicate code, name, tel or email.
func (s *Store) AddBuyer(b orders.Buyer) (orders.Buyer, error) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	for _, x := range s.buyers {
		if x.BuyerCd == b.BuyerCd || x.BuyerNm == b.BuyerNm ||
			(b.Tel != "" && x.Tel == b.Tel) || (b.Email != "" && x.Email == b.Email) {
			return orders.Buyer{}, apperror.ErrBuyerAlreadyExists
		}
	}
	b.BuyerID = s.nextRefID
	s.nextRefID++
	if b.Status == "" {
		b.Status = orders.BuyerActive
	}
	s.buyers[b.BuyerCd] = b
	return b, nil
}

func (s *Store) DeactivateBuyer(buyerCd string) error {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	b, ok := s.buyers[buyerCd]
	if !ok {
		return apperror.ErrBuyerNotFound
	}
	b.Status = orders.BuyerInactive
	s.buyers[buyerCd] = b
	return nil
}

// AddItem rejects duplicate code or name.
func (s *Store) AddItem(it orders.Item) (orders.Item, error) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	for _, x := range s.items {
		if x.ItemCd == it.ItemCd || strings.EqualFold(x.ItemNm, it.ItemNm) {
			return orders.Item{}, apperror.ErrItemAlreadyExists
		}
	}
	it.ItemID = s.nextRefID
	s.nextRefID++
	if it.Status == "" {
		it.Status = orders.ItemOnSale
	}
	s.items[it.ItemCd] = it
	return it, nil
}

func (s *Store) SetBaseline(itemCd string, qty int64) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.baselines[itemCd] = qty
}

func (s *Store) SetUnitCost(itemCd string, cost decimal.Decimal) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.costs[itemCd] = cost
}

func (s *Store) FindVerifiedMember(_ context.Context, employeeID string) (*orders.Member, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	m, ok := s.members[employeeID]
	if !ok {
		return nil, apperror.ErrMemberNotFound
	}
	return &m, nil
}

func (s *Store) FindVerifiedBuyer(_ context.Context, buyerCd string) (*orders.Buyer, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	b, ok := s.buyers[buyerCd]
	if !ok || b.Status == orders.BuyerInactive {
		return nil, apperror.ErrBuyerNotFound
	}
	return &b, nil
}

func (s *Store) FindVerifiedItem(_ context.Context, itemCd string) (*orders.Item, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	it, ok := s.items[itemCd]
	if !ok {
		return nil, apperror.ErrItemNotFound
	}
	return &it, nil
}

func (s *Store) Baseline(_ context.Context, itemCd string) (int64, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	return s.baselines[itemCd], nil
}

func (s *Store) UnitCosts(_ context.Context, itemCds []string) (map[string]decimal.Decimal, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	out := make(map[string]decimal.Decimal, len(itemCds))
	for _, cd := range itemCds {
		if c, ok := s.costs[cd]; ok {
			out[cd] = c
		}
	}
	return out, nil
}

func (s *Store) itemName(itemCd string) string {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	return s.items[itemCd].ItemNm
}

// ---- transaction ----

type memTx struct {
	store    *Store
	st       *state
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) assemble(id int64) orders.OrderHeader {
	h := t.st.headers[id]
	ids := t.st.lineIDs[id]
	h.Lines = make([]orders.OrderLine, 0, len(ids))
	for _, lid := range ids {
		h.Lines = append(h.Lines, t.st.lines[lid])
	}
	return h
}

func (t *memTx) InsertOrder(_ context.Context, h *orders.OrderHeader) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, dup := t.st.codes[h.OrderCd]; dup {
		return apperror.ErrOrderCodeConflict
	}
	h.OrderID = t.st.nextOrderID
	t.st.nextOrderID++

	ids := make([]int64, 0, len(h.Lines))
	for i := range h.Lines {
		h.Lines[i].LineID = t.st.nextLineID
		h.Lines[i].OrderID = h.OrderID
		t.st.nextLineID++
		t.st.lines[h.Lines[i].LineID] = h.Lines[i]
		ids = append(ids, h.Lines[i].LineID)
	}
	head := *h
	head.Lines = nil
	t.st.headers[h.OrderID] = head
	t.st.lineIDs[h.OrderID] = ids
	t.st.codes[h.OrderCd] = h.OrderID
	return nil
}

func (t *memTx) UpdateOrderHeader(_ context.Context, h *orders.OrderHeader) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.st.headers[h.OrderID]
	if !ok {
		return apperror.ErrOrderNotFound
	}
	cur.Status = h.Status
	cur.RequestDate = h.RequestDate
	t.st.headers[h.OrderID] = cur
	return nil
}

func (t *memTx) UpdateOrderLine(_ context.Context, l *orders.OrderLine) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.lines[l.LineID]; !ok {
		return apperror.ErrItemNotFound
	}
	t.st.lines[l.LineID] = *l
	return nil
}

func (t *memTx) FindOrder(_ context.Context, orderID int64) (*orders.OrderHeader, error) {
	if _, ok := t.st.headers[orderID]; !ok {
		return nil, apperror.ErrOrderNotFound
	}
	h := t.assemble(orderID)
	return &h, nil
}

// FindOrderForUpdate needs no row lock: WithinTx already holds the store lock.
func (t *memTx) FindOrderForUpdate(ctx context.Context, orderID int64) (*orders.OrderHeader, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.FindOrder(ctx, orderID)
}

func (t *memTx) FindOrderLine(_ context.Context, lineID int64) (*orders.OrderLine, error) {
	l, ok := t.st.lines[lineID]
	if !ok {
		return nil, apperror.ErrItemNotFound
	}
	return &l, nil
}

func (t *memTx) SearchOrders(_ context.Context, q orders.OrderQuery) ([]orders.OrderHeader, int64, error) {
	matched := make([]orders.OrderHeader, 0)
	for id := range t.st.headers {
		h := t.assemble(id)
		if q.Matches(&h) {
			matched = append(matched, h)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].OrderID > matched[j].OrderID
	})

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []orders.OrderHeader{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], total, nil
}

func (t *memTx) LatestOrderCode(_ context.Context, prefix string) (string, bool, error) {
	best, found := "", false
	for code := range t.st.codes {
		if strings.HasPrefix(code, prefix) && code > best {
			best, found = code, true
		}
	}
	return best, found, nil
}

func (t *memTx) AdvanceOrderSequence(_ context.Context, token string, floor int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	next := t.st.counters[token]
	if floor > next {
		next = floor
	}
	next++
	t.st.counters[token] = next
	return next, nil
}

// LockItems is a no-op: WithinTx already serialises writers.
func (t *memTx) LockItems(context.Context, []string) error { return nil }

func (t *memTx) CommittedQuantity(_ context.Context, itemCd string) (int64, error) {
	var sum int64
	for _, l := range t.st.lines {
		if l.ItemCd != itemCd {
			continue
		}
		if t.st.headers[l.OrderID].Status.CountsAgainstStock() {
			sum += l.Qty
		}
	}
	return sum, nil
}

func (t *memTx) SalesBetween(_ context.Context, from, to time.Time) ([]orders.SaleLine, error) {
	byItem := make(map[string]*orders.SaleLine)
	for _, l := range t.st.lines {
		h := t.st.headers[l.OrderID]
		if !h.Status.CountsAgainstStock() || h.CreatedAt.Before(from) || !h.CreatedAt.Before(to) {
			continue
		}
		agg, ok := byItem[l.ItemCd]
		if !ok {
			agg = &orders.SaleLine{ItemCd: l.ItemCd, ItemNm: t.store.itemName(l.ItemCd), Revenue: decimal.Zero}
			byItem[l.ItemCd] = agg
		}
		agg.Qty += l.Qty
		agg.Revenue = agg.Revenue.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Qty)))
	}
	out := make([]orders.SaleLine, 0, len(byItem))
	for _, v := range byItem {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemCd < out[j].ItemCd })
	return out, nil
}

func (t *memTx) AppendSaleHistory(_ context.Context, h *orders.SaleHistory) error {
	if err := t.writable(); err != nil {
		return err
	}
	h.HistoryID = t.st.nextHistoryID
	t.st.nextHistoryID++
	row := *h
	row.Lines = append([]orders.OrderLine(nil), h.Lines...)
	t.st.histories = append(t.st.histories, row)
	return nil
}

func (t *memTx) ListSaleHistories(_ context.Context, orderID int64, offset, limit int) ([]orders.SaleHistory, int64, error) {
	matched := make([]orders.SaleHistory, 0)
	for i := len(t.st.histories) - 1; i >= 0; i-- {
		if t.st.histories[i].OrderID == orderID {
			matched = append(matched, t.st.histories[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	if offset >= len(matched) {
		return []orders.SaleHistory{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}
