package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/orders"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	pkgAuth "github.com/angelmondragon/stockledger-backend/pkg/auth"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryRedis struct {
	data    map[string]string
	revoked map[string]bool
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, revoked: map[string]bool{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return true, 1, nil
}

func (m *memoryRedis) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	return m.revoked[tokenID], nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type stubOrders struct {
	orders.Service
	created int
	issued  []uuid.UUID
}

func (s *stubOrders) CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*orders.Order, error) {
	s.created++
	return &orders.Order{ID: uuid.New(), BuyerID: input.BuyerID, Status: enums.OrderStatusPending}, nil
}

func (s *stubOrders) IssueInvoice(ctx context.Context, orderID, actorID uuid.UUID) (*invoices.Invoice, error) {
	s.issued = append(s.issued, orderID)
	return &invoices.Invoice{ID: uuid.New(), OrderID: &orderID}, nil
}

func (s *stubOrders) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (pagination.Page[orders.Order], error) {
	return pagination.Page[orders.Order]{Items: []orders.Order{}}, nil
}

type stubSales struct {
	calls        int
	accountSales []sales.AccountSaleInput
}

func (s *stubSales) DirectSale(ctx context.Context, input sales.DirectSaleInput) (*sales.Result, error) {
	s.calls++
	return &sales.Result{}, nil
}

func (s *stubSales) SellToAccount(ctx context.Context, input sales.AccountSaleInput) (*sales.Result, error) {
	s.accountSales = append(s.accountSales, input)
	return &sales.Result{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "stockledger", ExpirationMinutes: 30},
		HTTP: config.HTTPConfig{
			RateLimitWindow: time.Minute,
			RateLimitReads:  100,
			RateLimitWrites: 100,
		},
	}
}

func bearer(t *testing.T, cfg *config.Config, userID uuid.UUID, role enums.Role, jti string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role, JTI: jti})
	require.NoError(t, err)
	return "Bearer " + token
}

type harness struct {
	handler http.Handler
	cfg     *config.Config
	redis   *memoryRedis
	orders  *stubOrders
	sales   *stubSales
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	h := harness{cfg: cfg, redis: newMemoryRedis(), orders: &stubOrders{}, sales: &stubSales{}}
	h.handler = NewRouter(cfg, nil, Dependencies{
		DB:          stubPinger{},
		Redis:       h.redis,
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Orders:      h.orders,
		Sales:       h.sales,
	})
	return h
}

func (h harness) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutesArePublic(t *testing.T) {
	h := newHarness(t)

	resp := h.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	resp = h.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestReadyFailsWhenDatabaseDown(t *testing.T) {
	cfg := testConfig()
	handler := NewRouter(cfg, nil, Dependencies{DB: stubPinger{err: fmt.Errorf("down")}})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newHarness(t)
	resp := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRevokedTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	h.redis.revoked["revoked-jti"] = true

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleRetailer, "revoked-jti"))
	assert.Equal(t, http.StatusUnauthorized, h.do(req).Code)
}

func TestOrdersListRoutesToService(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleDistributor, ""))
	resp := h.do(req)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestCreateOrderReplaysWithIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	token := bearer(t, h.cfg, uuid.New(), enums.RoleRetailer, "")
	body := `{"seller_id":"` + uuid.NewString() + `","items":[{"product_id":"` + uuid.NewString() + `","quantity":"1"}]}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", "order-1")
		return h.do(req)
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, h.orders.created)
}

func TestCreateOrderWithoutIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleRetailer, ""))
	assert.Equal(t, http.StatusBadRequest, h.do(req).Code)
	assert.Zero(t, h.orders.created)
}

func TestDirectSaleRequiresInventoryRole(t *testing.T) {
	h := newHarness(t)
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":"1"}]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/direct-sale", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleBuyer, ""))
	req.Header.Set("Idempotency-Key", "sale-1")
	assert.Equal(t, http.StatusForbidden, h.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/direct-sale", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleRetailer, ""))
	req.Header.Set("Idempotency-Key", "sale-2")
	assert.Equal(t, http.StatusCreated, h.do(req).Code)
	assert.Equal(t, 1, h.sales.calls)
}

func TestAccountSaleRoutesAndReplays(t *testing.T) {
	h := newHarness(t)
	seller := uuid.New()
	buyer := uuid.New()
	body := `{"buyer_id":"` + buyer.String() + `","items":[{"product_id":"` + uuid.NewString() + `","quantity":"2"}]}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, h.cfg, seller, enums.RoleDistributor, ""))
		req.Header.Set("Idempotency-Key", "account-sale-1")
		assert.Equal(t, http.StatusCreated, h.do(req).Code)
	}
	require.Len(t, h.sales.accountSales, 1, "the retry replays the stored response")
	assert.Equal(t, seller, h.sales.accountSales[0].SellerID)
	assert.Equal(t, buyer, h.sales.accountSales[0].BuyerID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleBuyer, ""))
	req.Header.Set("Idempotency-Key", "account-sale-2")
	assert.Equal(t, http.StatusForbidden, h.do(req).Code)
}

func TestIssueOrderInvoiceRequiresInventoryRole(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	path := "/api/v1/orders/" + orderID.String() + "/invoice"

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleBuyer, ""))
	req.Header.Set("Idempotency-Key", "issue-invoice-1")
	assert.Equal(t, http.StatusForbidden, h.do(req).Code)
	assert.Empty(t, h.orders.issued)

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t, h.cfg, uuid.New(), enums.RoleDistributor, ""))
	req.Header.Set("Idempotency-Key", "issue-invoice-2")
	assert.Equal(t, http.StatusOK, h.do(req).Code)
	assert.Equal(t, []uuid.UUID{orderID}, h.orders.issued)
}

func TestMetricsEndpointExposesRequests(t *testing.T) {
	h := newHarness(t)
	h.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "stockledger_http_requests_total")
}

func TestUnknownRouteIs404(t *testing.T) {
	h := newHarness(t)
	resp := h.do(httptest.NewRequest(http.MethodGet, "/api/v2/orders", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
