package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthReadyPingsDependencies(t *testing.T) {
	ok := pingFunc(func(ctx context.Context) error { return nil })
	handler := HealthReady(testConfig(), map[string]Pinger{"db": ok, "redis": ok}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get(envHeader))
	assert.Contains(t, resp.Body.String(), `"redis":"ok"`)
}

func TestHealthReadyFailsOnDependency(t *testing.T) {
	down := pingFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	handler := HealthReady(testConfig(), map[string]Pinger{"db": down}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestCapabilitiesForManufacturer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/capabilities", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), enums.RoleManufacturer))
	resp := httptest.NewRecorder()
	Capabilities().ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Data capabilities `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.ElementsMatch(t, []enums.Role{enums.RoleDistributor, enums.RoleRetailer, enums.RoleBuyer}, payload.Data.CanSellTo)
	assert.ElementsMatch(t, []enums.Role{enums.RoleManufacturer, enums.RoleDistributor}, payload.Data.CanBuyFrom)
	assert.Equal(t, enums.StockBucketRawMaterial, payload.Data.IncomingBucket)
	assert.Len(t, payload.Data.Buckets, 2)
}

func TestCapabilitiesForConsumer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/capabilities", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), enums.RoleBuyer))
	resp := httptest.NewRecorder()
	Capabilities().ServeHTTP(resp, req)

	var payload struct {
		Data capabilities `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Empty(t, payload.Data.CanSellTo)
	assert.False(t, payload.Data.HasInventory)
	assert.Empty(t, payload.Data.Buckets)
}
