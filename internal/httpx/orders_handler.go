package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

// HeaderEmployeeID carries the principal verified by the auth gateway.
const HeaderEmployeeID = "X-Employee-Id"

const dateLayout = "2006-01-02"

type OrdersHandler struct {
	Service *orders.Service
	Log     *zap.Logger
	Timeout time.Duration
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/reports", h.saleReport)
		r.Get("/inventories", h.inventory)

		r.Group(func(r chi.Router) {
			r.Use(requirePrincipal)
			r.Post("/", h.createOrders)
			r.Patch("/{id}", h.updateOrder)
			r.Patch("/{id}/items/{lineId}", h.updateOrderItem)
			r.Patch("/{id}/approve", h.decide(orders.StatusApproved))
			r.Patch("/{id}/reject", h.decide(orders.StatusRejected))
		})

		r.Get("/", h.findOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/histories", h.findHistories)
	})
}

type principalKey struct{}

func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderEmployeeID)
		if id == "" {
			writeError(w, apperror.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, id)))
	})
}

func principal(r *http.Request) string {
	v, _ := r.Context().Value(principalKey{}).(string)
	return v
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

// ---- request / response shapes ----

type orderLineReq struct {
	ItemCd    string           `json:"itemCd"`
	Qty       int64            `json:"qty"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`
	Unit      string           `json:"unit"`
}

type createOrderReq struct {
	BuyerCd     string         `json:"buyerCd"`
	RequestDate string         `json:"requestDate"`
	OrderStatus string         `json:"orderStatus"`
	OrderItems  []orderLineReq `json:"orderItems"`
}

type updateOrderReq struct {
	OrderStatus *string `json:"orderStatus"`
	RequestDate *string `json:"requestDate"`
}

type updateOrderItemReq struct {
	Qty       *int64           `json:"qty"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	StartDate *string          `json:"startDate"`
	EndDate   *string          `json:"endDate"`
}

type errorResp struct {
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus, errorResp{Code: appErr.Code, Message: appErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResp{Code: apperror.ErrCodeInternal, Message: "internal error"})
}

func (h *OrdersHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.Log != nil {
		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("route", routePattern(r)),
			zap.Error(err),
		}
		switch {
		case apperror.HTTPStatus(err) >= http.StatusInternalServerError:
			h.Log.Error("request failed", fields...)
		case apperror.IsConflict(err):
			// order code retries exhausted
			h.Log.Warn("request conflict", fields...)
		case apperror.IsNotFound(err):
			h.Log.Debug("resource not found", fields...)
		}
	}
	writeError(w, err)
}

// firstParam returns the first non-empty value among names.
func firstParam(q url.Values, names ...string) string {
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, apperror.Wrap(err, apperror.ErrCodeBadRequest, "invalid date "+strconv.Quote(s))
	}
	return t, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ErrInvalidRequest
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.ErrInvalidRequest
	}
	return n, nil
}

func (req createOrderReq) toNewOrder() (orders.NewOrder, error) {
	rd, err := parseDate(req.RequestDate)
	if err != nil {
		return orders.NewOrder{}, err
	}
	out := orders.NewOrder{
		BuyerCd:     req.BuyerCd,
		RequestDate: rd,
		Status:      orders.Status(req.OrderStatus),
		Lines:       make([]orders.NewOrderLine, 0, len(req.OrderItems)),
	}
	for _, it := range req.OrderItems {
		start, err := parseDate(it.StartDate)
		if err != nil {
			return orders.NewOrder{}, err
		}
		end, err := parseDate(it.EndDate)
		if err != nil {
			return orders.NewOrder{}, err
		}
		line := orders.NewOrderLine{ItemCd: it.ItemCd, Qty: it.Qty, StartDate: start, EndDate: end, Unit: it.Unit}
		if it.UnitPrice != nil {
			line.UnitPrice = orders.Some(*it.UnitPrice)
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

// ---- handlers ----

// createOrders accepts one order object or an array of them.
func (h *OrdersHandler) createOrders(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, apperror.ErrInvalidRequest)
		return
	}

	batch := bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
	var reqs []createOrderReq
	if batch {
		if err := json.Unmarshal(raw, &reqs); err != nil {
			writeError(w, apperror.ErrInvalidRequest)
			return
		}
	} else {
		var one createOrderReq
		if err := json.Unmarshal(raw, &one); err != nil {
			writeError(w, apperror.ErrInvalidRequest)
			return
		}
		reqs = []createOrderReq{one}
	}

	in := make([]orders.NewOrder, 0, len(reqs))
	for _, req := range reqs {
		no, err := req.toNewOrder()
		if err != nil {
			writeError(w, err)
			return
		}
		in = append(in, no)
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	created, err := h.Service.CreateOrders(ctx, principal(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if batch {
		writeJSON(w, http.StatusCreated, created)
		return
	}
	writeJSON(w, http.StatusCreated, created[0])
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ErrInvalidRequest)
		return
	}

	patch := orders.OrderPatch{OrderID: id}
	if req.OrderStatus != nil {
		patch.Status = orders.Some(orders.Status(*req.OrderStatus))
	}
	if req.RequestDate != nil {
		rd, err := parseDate(*req.RequestDate)
		if err != nil || rd.IsZero() {
			writeError(w, apperror.ErrInvalidRequest)
			return
		}
		patch.RequestDate = orders.Some(rd)
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	updated, err := h.Service.UpdateOrder(ctx, principal(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *OrdersHandler) updateOrderItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateOrderItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ErrInvalidRequest)
		return
	}

	var patch orders.LinePatch
	if req.Qty != nil {
		patch.Qty = orders.Some(*req.Qty)
	}
	if req.UnitPrice != nil {
		patch.UnitPrice = orders.Some(*req.UnitPrice)
	}
	for _, f := range []struct {
		src *string
		dst *orders.Optional[time.Time]
	}{{req.StartDate, &patch.StartDate}, {req.EndDate, &patch.EndDate}} {
		if f.src == nil {
			continue
		}
		d, err := parseDate(*f.src)
		if err != nil {
			writeError(w, err)
			return
		}
		*f.dst = orders.Some(d)
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	updated, err := h.Service.UpdateOrderItem(ctx, principal(r), orderID, lineID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *OrdersHandler) decide(status orders.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := h.ctx(r)
		defer cancel()

		updated, err := h.Service.UpdateStatus(ctx, principal(r), id, status)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.FindOrder(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) findOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := queryInt(r, "size", 10)
	if err != nil {
		writeError(w, err)
		return
	}
	search := orders.OrderSearch{
		Status:  orders.Status(firstParam(q, "status", "orderStatus")),
		BuyerCd: firstParam(q, "buyerCode", "buyerCd"),
		ItemCd:  firstParam(q, "itemCode", "itemCd"),
	}
	if v := q.Get("orderId"); v != "" {
		if search.OrderID, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, apperror.ErrInvalidRequest)
			return
		}
	}
	if search.StartDate, err = parseDate(firstParam(q, "searchStartDate", "startDate")); err != nil {
		writeError(w, err)
		return
	}
	if search.EndDate, err = parseDate(firstParam(q, "searchEndDate", "endDate")); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Service.FindOrders(ctx, search, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) findHistories(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := queryInt(r, "size", 10)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Service.FindHistories(ctx, id, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) saleReport(w http.ResponseWriter, r *http.Request) {
	start, err := parseDate(r.URL.Query().Get("startDate"))
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseDate(r.URL.Query().Get("endDate"))
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	rows, err := h.Service.GenerateReport(ctx, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *OrdersHandler) inventory(w http.ResponseWriter, r *http.Request) {
	itemCd := r.URL.Query().Get("itemCd")
	if itemCd == "" {
		writeError(w, apperror.ErrInvalidRequest)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	inv, err := h.Service.GetStock(ctx, itemCd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
