package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-fi/poolengine/internal/calculator"
	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/internal/settlement"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

type nullCustody struct{}

func (nullCustody) MoveFundsIn(context.Context, string, string, fixedpoint.Amount) (bool, error) {
	return true, nil
}
func (nullCustody) MoveFundsOut(context.Context, string, string, fixedpoint.Amount) (bool, error) {
	return true, nil
}
func (nullCustody) Balance(context.Context, string) (fixedpoint.Amount, error) {
	return fixedpoint.Zero(), nil
}

type nullIdentity struct{}

func (nullIdentity) IsWhitelisted(context.Context, string) (bool, error) { return true, nil }

type fixedSupply struct{}

func (fixedSupply) Mint(context.Context, string, fixedpoint.Amount) (bool, error) { return true, nil }
func (fixedSupply) Burn(context.Context, bool, fixedpoint.Amount) (bool, error)   { return true, nil }
func (fixedSupply) TotalSupply(context.Context) (fixedpoint.Amount, error) {
	return fixedpoint.MustParse("1000"), nil
}

var (
	_ settlement.Custody  = nullCustody{}
	_ settlement.Identity = nullIdentity{}
	_ settlement.Supply   = fixedSupply{}
)

func newTestServer(t *testing.T, seeded bool) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ledgerSvc := ledger.NewService(logger, ledger.NewMemoryStore(),
		ledger.WithClock(func() time.Time { return clock }))
	if seeded {
		require.NoError(t, ledgerSvc.AppendSnapshot(context.Background(), models.RoleSettlement,
			fixedpoint.MustParse("7000"), fixedpoint.MustParse("2000"),
			fixedpoint.MustParse("0.2"), fixedpoint.MustParse("2.5")))
	}
	calc := calculator.New(ledgerSvc, calculator.Policy{}).
		WithClock(func() time.Time { return clock })
	coord := settlement.NewCoordinator(logger, ledgerSvc, calc,
		settlement.NewMemoryOrderStore(), nullCustody{}, nullIdentity{}, fixedSupply{},
		settlement.Config{CashToken: "USD", PoolToken: "SYN"})
	return NewServer(logger, ledgerSvc, calc, coord)
}

func do(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, false)
	w := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	srv := newTestServer(t, false)
	w := do(t, srv, http.MethodGet, "/v1/snapshot", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	srv = newTestServer(t, true)
	w = do(t, srv, http.MethodGet, "/v1/snapshot", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"7000"`)
	assert.Contains(t, w.Body.String(), `"day_key":20240301`)
}

func TestPreviewCreationEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	w := do(t, srv, http.MethodPost, "/v1/preview/creation",
		`{"cash":"7000","total_supply":"1000"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tokens":"11.666666666666666667"`)
}

func TestPreviewRebalanceEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	w := do(t, srv, http.MethodPost, "/v1/preview/rebalance",
		`{"price":"7000","total_supply":"1000","days_elapsed":1}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fee_in_fiat":"95.890410958904107"`)
	assert.Contains(t, w.Body.String(), `"end_balance":"85.700587084148727985"`)
}

func TestMintingFeeEndpoint(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, http.MethodPost, "/v1/admin/fee-brackets",
		`{"threshold":"1000","rate":"0.02"}`, map[string]string{"X-Role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, srv, http.MethodGet, "/v1/minting-fee?amount=250", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fee_rate":"0.02"`)

	w = do(t, srv, http.MethodGet, "/v1/minting-fee", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRequiresRole(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, http.MethodPost, "/v1/admin/fee-brackets",
		`{"threshold":"1000","rate":"0.02"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, srv, http.MethodPost, "/v1/admin/pause", "", map[string]string{"X-Role": "bridge"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, srv, http.MethodPost, "/v1/admin/pause", "", map[string]string{"X-Role": "admin"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodPost, "/v1/admin/resume", "", map[string]string{"X-Role": "admin"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDelayedRedemptionEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	w := do(t, srv, http.MethodGet, "/v1/accounts/alice/delayed-redemption", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outstanding":"0"`)
}
