package server

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/config"
)

// fakeClient satisfies chain.Client without touching a real RPC endpoint.
type fakeClient struct {
	balanceErr error
}

func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return big.NewInt(0), nil
}

func (f *fakeClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("fake client: no contract state")
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return errors.New("fake client: transactions not supported")
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (f *fakeClient) Close() {}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "8080",
		Env:            "test",
		LogLevel:       "error",
		RPCURL:         "http://rpc.invalid",
		ChainID:        84532,
		PrivateKey:     "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		EscrowContract: "0x1111111111111111111111111111111111111111",
	}
}

func newTestServer(t *testing.T, client *fakeClient) *Server {
	t.Helper()
	s, err := New(testConfig(), WithClient(client))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.engine.Close()
		s.rateLimiter.Stop()
	})
	return s
}

func TestNew_MemoryStoresWithoutDatabaseURL(t *testing.T) {
	s := newTestServer(t, &fakeClient{})
	assert.Nil(t, s.db)
	assert.NotNil(t, s.engine)
	assert.NotNil(t, s.hub)
	assert.NotNil(t, s.worker)
}

func TestLiveness(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadiness_NotReadyBeforeRun(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.ready.Store(true)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_HealthyWhenRPCResponds(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rpc":"healthy"`)
}

func TestHealth_DegradedWhenRPCDown(t *testing.T) {
	s := newTestServer(t, &fakeClient{balanceErr: errors.New("connection refused")})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skillswap_")
}

func TestUploadBlob(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	req := httptest.NewRequest(http.MethodPost, "/v1/blobs", bytes.NewReader([]byte("work proof")))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "mem://")
}

func TestUploadBlob_EmptyRejected(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/blobs", bytes.NewReader(nil)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty_payload")
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestEngineRoutesMounted(t *testing.T) {
	s := newTestServer(t, &fakeClient{})

	// Unknown booking through the full middleware stack.
	req := httptest.NewRequest(http.MethodGet, "/v1/bookings/bkg_missing", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}
