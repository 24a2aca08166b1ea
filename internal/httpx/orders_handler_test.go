package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
	"github.com/ariefcatur/go-b2b-orders/internal/memstore"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newLoggedServer(t, zap.NewNop())
}

func newLoggedServer(t *testing.T, log *zap.Logger) *testServer {
	t.Helper()
	st := memstore.New()
	st.AddMember(orders.Member{EmployeeID: "E1", Role: orders.RoleEmployee})
	st.AddMember(orders.Member{EmployeeID: "M1", Role: orders.RoleManager})
	_, err := st.AddBuyer(orders.Buyer{BuyerCd: "B001", BuyerNm: "Acme"})
	require.NoError(t, err)
	_, err = st.AddItem(orders.Item{ItemCd: "I001", ItemNm: "Widget", Unit: "EA", UnitPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	st.SetBaseline("I001", 10)
	st.SetUnitCost("I001", decimal.NewFromInt(60))

	now := time.Date(2024, 12, 11, 9, 0, 0, 0, time.UTC)
	svc, err := orders.NewService(orders.Deps{
		Store:    st,
		Members:  st,
		Buyers:   st,
		Items:    st,
		Baseline: st,
		Costs:    st,
		Logger:   zap.NewNop(),
		Clock:    func() time.Time { return now },
	})
	require.NoError(t, err)

	r := NewRouter(zap.NewNop())
	(&OrdersHandler{Service: svc, Log: log}).Register(r)
	return &testServer{t: t, handler: r}
}

func (s *testServer) do(method, path, employee, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if employee != "" {
		req.Header.Set(HeaderEmployeeID, employee)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const createBody = `{"buyerCd":"B001","requestDate":"2024-12-20","orderItems":[{"itemCd":"I001","qty":4}]}`

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateOrderRequiresPrincipal(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/orders", "", createBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperror.ErrCodeUnauthorized, decode[errorResp](t, rec).Code)
}

func TestCreateAndFetchOrder(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/orders", "E1", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orders.OrderHeader](t, rec)
	assert.Equal(t, "24DEC1100001", created.OrderCd)
	assert.Equal(t, orders.StatusPurchaseRequest, created.Status)

	rec = s.do(http.MethodGet, "/orders/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[orders.OrderHeader](t, rec)
	assert.Equal(t, created.OrderCd, got.OrderCd)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(4), got.Lines[0].Qty)

	rec = s.do(http.MethodGet, "/orders/inventories?itemCd=I001", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(6), decode[orders.InventoryDto](t, rec).Available)
}

func TestCreateOrdersBatch(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/orders", "E1", "["+createBody+","+createBody+"]")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[[]orders.OrderHeader](t, rec)
	require.Len(t, created, 2)
	assert.Equal(t, "24DEC1100002", created[1].OrderCd)
}

func TestCreateOrderOutOfStock(t *testing.T) {
	s := newTestServer(t)
	body := `{"buyerCd":"B001","requestDate":"2024-12-20","orderItems":[{"itemCd":"I001","qty":10}]}`
	rec := s.do(http.MethodPost, "/orders", "E1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperror.ErrCodeOutOfStock, decode[errorResp](t, rec).Code)
}

func TestCreateOrderBadInput(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/orders", "E1", "{").Code)
	bad := `{"buyerCd":"B001","requestDate":"20-12-2024","orderItems":[{"itemCd":"I001","qty":1}]}`
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/orders", "E1", bad).Code)
	unknown := `{"buyerCd":"B009","requestDate":"2024-12-20","orderItems":[{"itemCd":"I001","qty":1}]}`
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/orders", "E1", unknown).Code)
}

func TestApproveRequiresManager(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/orders", "E1", createBody).Code)

	rec := s.do(http.MethodPatch, "/orders/1", "M1", `{"orderStatus":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, "/orders/1/approve", "E1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, "/orders/1/approve", "M1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusApproved, decode[orders.OrderHeader](t, rec).Status)

	rec = s.do(http.MethodPatch, "/orders/1", "E1", `{"orderStatus":"CANCELLED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperror.ErrCodeCannotChange, decode[errorResp](t, rec).Code)
}

func TestUpdateOrderItemAndHistories(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/orders", "E1", createBody).Code)

	rec := s.do(http.MethodPatch, "/orders/1/items/1", "E1", `{"qty":2,"unitPrice":"95.5","startDate":"2025-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[orders.OrderHeader](t, rec)
	assert.Equal(t, int64(2), updated.Lines[0].Qty)
	assert.Equal(t, "95.5", updated.Lines[0].UnitPrice.String())

	rec = s.do(http.MethodPatch, "/orders/1/items/99", "E1", `{"qty":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/orders/1/histories?page=1&size=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[orders.Page[orders.SaleHistory]](t, rec)
	assert.Equal(t, int64(2), page.TotalElements)
}

func TestFindOrdersQuery(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/orders", "E1", createBody).Code)

	rec := s.do(http.MethodGet, "/orders?page=1&size=5&itemCd=I001&startDate=2024-12-11&endDate=2024-12-11", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[orders.Page[orders.OrderHeader]](t, rec)
	assert.Equal(t, int64(1), page.TotalElements)
	assert.Equal(t, 1, page.TotalPages)

	rec = s.do(http.MethodGet, "/orders?page=1&size=5&status=PURCHASE_REQUEST&buyerCode=B001&itemCode=I001&searchStartDate=2024-12-11&searchEndDate=2024-12-11", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[orders.Page[orders.OrderHeader]](t, rec).TotalElements)

	rec = s.do(http.MethodGet, "/orders?page=1&size=5&buyerCode=B009", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[orders.Page[orders.OrderHeader]](t, rec).TotalElements)

	rec = s.do(http.MethodGet, "/orders?searchStartDate=2024-12-12", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[orders.Page[orders.OrderHeader]](t, rec).TotalElements)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders?status=SHIPPED", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders?page=0", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders?page=3&size=4611686018427387904", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders/1/histories?page=3&size=4611686018427387904", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders?startDate=2024-12-12&endDate=2024-12-11", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders?orderStatus=SHIPPED", "", "").Code)
}

func TestSaleReportEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/orders", "E1", createBody).Code)

	rec := s.do(http.MethodGet, "/orders/reports?startDate=2024-12-01&endDate=2024-12-31", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]orders.SaleReportDto](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "400", rows[0].Revenue.String())
	assert.Equal(t, "240", rows[0].Cost.String())
	assert.Equal(t, "40", rows[0].MarginRate.String())
}

func TestInventoryRequiresItem(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders/inventories", "", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/orders/inventories?itemCd=NOPE", "", "").Code)
}

func TestGetOrderNotFound(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/orders/77", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders/abc", "", "").Code)
}

func TestFailureLogLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newLoggedServer(t, zap.New(core))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/orders/77", "", "").Code)
	notFound := logs.FilterMessage("resource not found").All()
	require.Len(t, notFound, 1)
	assert.Equal(t, zapcore.DebugLevel, notFound[0].Level)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders/abc", "", "").Code)
	assert.Equal(t, 1, logs.FilterMessage("resource not found").Len())
	assert.Zero(t, logs.FilterMessage("request failed").Len())
	assert.Zero(t, logs.FilterMessage("request conflict").Len())
}
