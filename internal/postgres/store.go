package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

const (
	uniqueViolation  = "23505"
	orderCdUniqueKey = "order_headers_order_cd_key"
)

type Store struct{ DB *pgxpool.Pool }

var _ orders.Store = (*Store)(nil)

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (s *Store) ReadOnly(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(tx orders.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// mapErr turns driver errors with a business meaning into sentinels.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == orderCdUniqueKey {
		return apperror.Wrap(err, apperror.ErrOrderCodeConflict.Code, apperror.ErrOrderCodeConflict.Message)
	}
	return err
}

type pgTx struct{ tx pgx.Tx }

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, h *orders.OrderHeader) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_headers(order_cd, order_status, request_date, created_at, buyer_cd, buyer_nm, employee_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING order_id`,
		h.OrderCd, string(h.Status), h.RequestDate, h.CreatedAt, h.BuyerCd, h.BuyerNm, h.EmployeeID,
	).Scan(&h.OrderID)
	if err != nil {
		return mapErr(fmt.Errorf("insert order header: %w", err))
	}

	for i := range h.Lines {
		l := &h.Lines[i]
		l.OrderID = h.OrderID
		err := t.tx.QueryRow(ctx, `
			INSERT INTO order_lines(order_id, item_cd, qty, unit_price, start_date, end_date, unit)
			VALUES ($1,$2,$3,$4::numeric,$5,$6,$7)
			RETURNING line_id`,
			l.OrderID, l.ItemCd, l.Qty, l.UnitPrice.String(), nullableDate(l.StartDate), nullableDate(l.EndDate), l.Unit,
		).Scan(&l.LineID)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (t *pgTx) UpdateOrderHeader(ctx context.Context, h *orders.OrderHeader) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE order_headers SET order_status=$2, request_date=$3
		WHERE order_id=$1`, h.OrderID, string(h.Status), h.RequestDate)
	if err != nil {
		return fmt.Errorf("update order header: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperror.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) UpdateOrderLine(ctx context.Context, l *orders.OrderLine) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE order_lines SET qty=$2, unit_price=$3::numeric, start_date=$4, end_date=$5
		WHERE line_id=$1`,
		l.LineID, l.Qty, l.UnitPrice.String(), nullableDate(l.StartDate), nullableDate(l.EndDate))
	if err != nil {
		return fmt.Errorf("update order line: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperror.ErrItemNotFound
	}
	return nil
}

const headerColumns = `h.order_id, h.order_cd, h.order_status, h.request_date, h.created_at, h.buyer_cd, h.buyer_nm, h.employee_id`

func scanHeader(row pgx.Row) (orders.OrderHeader, error) {
	var (
		h      orders.OrderHeader
		status string
	)
	err := row.Scan(&h.OrderID, &h.OrderCd, &status, &h.RequestDate, &h.CreatedAt, &h.BuyerCd, &h.BuyerNm, &h.EmployeeID)
	h.Status = orders.Status(status)
	return h, err
}

const lineColumns = `line_id, order_id, item_cd, qty, unit_price::text, start_date, end_date, unit`

func scanLine(row pgx.Row) (orders.OrderLine, error) {
	var (
		l          orders.OrderLine
		price      string
		start, end *time.Time
	)
	if err := row.Scan(&l.LineID, &l.OrderID, &l.ItemCd, &l.Qty, &price, &start, &end, &l.Unit); err != nil {
		return l, err
	}
	d, err := parseDecimal(price)
	if err != nil {
		return l, err
	}
	l.UnitPrice = d
	l.StartDate = derefTime(start)
	l.EndDate = derefTime(end)
	return l, nil
}

func (t *pgTx) FindOrder(ctx context.Context, orderID int64) (*orders.OrderHeader, error) {
	return t.findOrder(ctx, orderID, "")
}

// FindOrderForUpdate locks the header row so concurrent mutations of one
// order evaluate their guards one after another.
func (t *pgTx) FindOrderForUpdate(ctx context.Context, orderID int64) (*orders.OrderHeader, error) {
	return t.findOrder(ctx, orderID, " FOR UPDATE")
}

func (t *pgTx) findOrder(ctx context.Context, orderID int64, lock string) (*orders.OrderHeader, error) {
	h, err := scanHeader(t.tx.QueryRow(ctx, `SELECT `+headerColumns+` FROM order_headers h WHERE h.order_id=$1`+lock, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %d: %w", orderID, err)
	}
	byOrder, err := t.linesFor(ctx, []int64{orderID})
	if err != nil {
		return nil, err
	}
	h.Lines = byOrder[orderID]
	return &h, nil
}

func (t *pgTx) linesFor(ctx context.Context, orderIDs []int64) (map[int64][]orders.OrderLine, error) {
	out := make(map[int64][]orders.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+lineColumns+` FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, line_id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func (t *pgTx) FindOrderLine(ctx context.Context, lineID int64) (*orders.OrderLine, error) {
	l, err := scanLine(t.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM order_lines WHERE line_id=$1`, lineID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order line %d: %w", lineID, err)
	}
	return &l, nil
}

func (t *pgTx) SearchOrders(ctx context.Context, q orders.OrderQuery) ([]orders.OrderHeader, int64, error) {
	where, args := buildOrderFilter(q)

	var total int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM order_headers h`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + headerColumns + ` FROM order_headers h` + where +
		fmt.Sprintf(` ORDER BY h.created_at DESC, h.order_id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := t.tx.Query(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search orders: %w", err)
	}
	defer rows.Close()

	list := make([]orders.OrderHeader, 0, q.Limit)
	ids := make([]int64, 0, q.Limit)
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, h)
		ids = append(ids, h.OrderID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	byOrder, err := t.linesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range list {
		list[i].Lines = byOrder[list[i].OrderID]
	}
	return list, total, nil
}

// buildOrderFilter renders the WHERE clause for q with positional args.
func buildOrderFilter(q orders.OrderQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(format string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if q.Status != "" {
		add("h.order_status = $%d", string(q.Status))
	}
	if q.BuyerCd != "" {
		add("h.buyer_cd = $%d", q.BuyerCd)
	}
	if q.OrderID != 0 {
		add("h.order_id = $%d", q.OrderID)
	}
	if q.ItemCd != "" {
		add("EXISTS (SELECT 1 FROM order_lines l WHERE l.order_id = h.order_id AND l.item_cd = $%d)", q.ItemCd)
	}
	if !q.CreatedFrom.IsZero() {
		add("h.created_at >= $%d", q.CreatedFrom)
	}
	if !q.CreatedTo.IsZero() {
		add("h.created_at < $%d", q.CreatedTo)
	}

	if len(clauses) == 0 {
		return "", args
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func (t *pgTx) LatestOrderCode(ctx context.Context, prefix string) (string, bool, error) {
	var code string
	err := t.tx.QueryRow(ctx, `
		SELECT order_cd FROM order_headers
		WHERE order_cd LIKE $1::text || '%'
		ORDER BY order_cd DESC LIMIT 1`, prefix).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("latest order code: %w", err)
	}
	return code, true, nil
}

// AdvanceOrderSequence holds the counter row lock until the transaction ends.
func (t *pgTx) AdvanceOrderSequence(ctx context.Context, token string, floor int) (int, error) {
	var next int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_code_sequences(date_token, last_seq) VALUES ($1, $2::int + 1)
		ON CONFLICT (date_token) DO UPDATE
		SET last_seq = GREATEST(order_code_sequences.last_seq, $2::int) + 1
		RETURNING last_seq`, token, floor).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", token, err)
	}
	return next, nil
}

// LockItems locks in item_cd order so concurrent creators never deadlock.
func (t *pgTx) LockItems(ctx context.Context, itemCds []string) error {
	if len(itemCds) == 0 {
		return nil
	}
	sorted := append([]string(nil), itemCds...)
	sort.Strings(sorted)
	rows, err := t.tx.Query(ctx, `SELECT item_cd FROM items WHERE item_cd = ANY($1) ORDER BY item_cd FOR UPDATE`, sorted)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (t *pgTx) CommittedQuantity(ctx context.Context, itemCd string) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.qty), 0)::bigint
		FROM order_lines l JOIN order_headers h ON h.order_id = l.order_id
		WHERE l.item_cd = $1 AND h.order_status NOT IN ('CANCELLED', 'REJECTED')`, itemCd).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("committed quantity %s: %w", itemCd, err)
	}
	return n, nil
}

func (t *pgTx) SalesBetween(ctx context.Context, from, to time.Time) ([]orders.SaleLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT l.item_cd, COALESCE(i.item_nm, ''), SUM(l.qty)::bigint, SUM(l.qty * l.unit_price)::text
		FROM order_lines l
		JOIN order_headers h ON h.order_id = l.order_id
		LEFT JOIN items i ON i.item_cd = l.item_cd
		WHERE h.order_status NOT IN ('CANCELLED', 'REJECTED')
		  AND h.created_at >= $1 AND h.created_at < $2
		GROUP BY l.item_cd, i.item_nm
		ORDER BY l.item_cd`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sales between: %w", err)
	}
	defer rows.Close()

	var out []orders.SaleLine
	for rows.Next() {
		var (
			s   orders.SaleLine
			rev string
		)
		if err := rows.Scan(&s.ItemCd, &s.ItemNm, &s.Qty, &rev); err != nil {
			return nil, err
		}
		if s.Revenue, err = parseDecimal(rev); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *pgTx) AppendSaleHistory(ctx context.Context, h *orders.SaleHistory) error {
	lines, err := json.Marshal(h.Lines)
	if err != nil {
		return fmt.Errorf("encode history lines: %w", err)
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO sale_histories(created_at, employee_id, order_id, order_cd, order_status,
		                           order_date, request_date, buyer_nm, buyer_cd, lines)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING sale_history_id`,
		h.CreatedAt, h.EmployeeID, h.OrderID, h.OrderCd, string(h.OrderStatus),
		h.OrderDate, h.RequestDate, h.BuyerNm, h.BuyerCd, lines,
	).Scan(&h.HistoryID)
	if err != nil {
		return fmt.Errorf("insert sale history: %w", err)
	}
	return nil
}

func (t *pgTx) ListSaleHistories(ctx context.Context, orderID int64, offset, limit int) ([]orders.SaleHistory, int64, error) {
	var total int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM sale_histories WHERE order_id=$1`, orderID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sale histories: %w", err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT sale_history_id, created_at, employee_id, order_id, order_cd, order_status,
		       order_date, request_date, buyer_nm, buyer_cd, lines
		FROM sale_histories
		WHERE order_id=$1
		ORDER BY created_at DESC, sale_history_id DESC
		LIMIT $2 OFFSET $3`, orderID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sale histories: %w", err)
	}
	defer rows.Close()

	out := make([]orders.SaleHistory, 0, limit)
	for rows.Next() {
		var (
			h      orders.SaleHistory
			status string
			lines  []byte
		)
		if err := rows.Scan(&h.HistoryID, &h.CreatedAt, &h.EmployeeID, &h.OrderID, &h.OrderCd, &status,
			&h.OrderDate, &h.RequestDate, &h.BuyerNm, &h.BuyerCd, &lines); err != nil {
			return nil, 0, fmt.Errorf("scan sale history: %w", err)
		}
		h.OrderStatus = orders.Status(status)
		if err := json.Unmarshal(lines, &h.Lines); err != nil {
			return nil, 0, fmt.Errorf("decode history lines: %w", err)
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}
