package transactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	internaltransactions "github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type stubTransactionsService struct {
	cancel func(ctx context.Context, transactionID, actorID uuid.UUID) (*internaltransactions.Transaction, error)
	stats  func(ctx context.Context, userID uuid.UUID) (*internaltransactions.Stats, error)
	get    func(ctx context.Context, transactionID, actorID uuid.UUID) (*internaltransactions.Transaction, error)
	list   func(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[internaltransactions.Transaction], error)
}

func (s stubTransactionsService) RecordTransaction(ctx context.Context, tx *gorm.DB, input internaltransactions.RecordInput) (*models.Transaction, error) {
	panic("not implemented")
}

func (s stubTransactionsService) FindTransactionTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error) {
	panic("not implemented")
}

func (s stubTransactionsService) CancelTransaction(ctx context.Context, transactionID, actorID uuid.UUID) (*internaltransactions.Transaction, error) {
	return s.cancel(ctx, transactionID, actorID)
}

func (s stubTransactionsService) Stats(ctx context.Context, userID uuid.UUID) (*internaltransactions.Stats, error) {
	return s.stats(ctx, userID)
}

func (s stubTransactionsService) Get(ctx context.Context, transactionID, actorID uuid.UUID) (*internaltransactions.Transaction, error) {
	return s.get(ctx, transactionID, actorID)
}

func (s stubTransactionsService) List(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[internaltransactions.Transaction], error) {
	return s.list(ctx, userID, side, params)
}

func newRouter(svc internaltransactions.Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/transactions", List(svc, nil))
	r.Get("/transactions/stats", Stats(svc, nil))
	r.Get("/transactions/{transactionId}", Detail(svc, nil))
	r.Post("/transactions/{transactionId}/cancel", Cancel(svc, nil))
	return r
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, enums.RoleDistributor))
}

func TestStatsForCaller(t *testing.T) {
	caller := uuid.New()
	svc := stubTransactionsService{stats: func(ctx context.Context, userID uuid.UUID) (*internaltransactions.Stats, error) {
		assert.Equal(t, caller, userID)
		return &internaltransactions.Stats{SalesCount: 2, SalesRevenue: decimal.NewFromInt(345), NetRevenue: decimal.NewFromInt(345)}, nil
	}}

	resp := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/transactions/stats", nil), caller))
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Data internaltransactions.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.EqualValues(t, 2, payload.Data.SalesCount)
	assert.True(t, payload.Data.SalesRevenue.Equal(decimal.NewFromInt(345)))
}

func TestListPassesCursor(t *testing.T) {
	caller := uuid.New()
	svc := stubTransactionsService{list: func(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[internaltransactions.Transaction], error) {
		assert.Equal(t, caller, userID)
		assert.Equal(t, enums.TradeSideAll, side)
		assert.Equal(t, "abc", params.Cursor)
		assert.Equal(t, 5, params.Limit)
		return pagination.Page[internaltransactions.Transaction]{NextCursor: "def"}, nil
	}}

	resp := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/transactions?cursor=abc&limit=5", nil), caller))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"next_cursor":"def"`)
}

func TestListNarrowsBySide(t *testing.T) {
	var got enums.TradeSide
	svc := stubTransactionsService{list: func(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[internaltransactions.Transaction], error) {
		got = side
		return pagination.Page[internaltransactions.Transaction]{}, nil
	}}
	router := newRouter(svc)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/transactions?view=seller", nil), uuid.New()))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.TradeSideSeller, got)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/transactions?view=vendor", nil), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCancelMapsStateConflict(t *testing.T) {
	caller := uuid.New()
	txnID := uuid.New()
	svc := stubTransactionsService{cancel: func(ctx context.Context, transactionID, actorID uuid.UUID) (*internaltransactions.Transaction, error) {
		assert.Equal(t, txnID, transactionID)
		assert.Equal(t, caller, actorID)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already cancelled")
	}}

	resp := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/transactions/"+txnID.String()+"/cancel", nil), caller))
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestDetailRejectsBadID(t *testing.T) {
	resp := httptest.NewRecorder()
	newRouter(stubTransactionsService{}).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/transactions/xyz", nil), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
