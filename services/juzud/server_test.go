package juzud

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/wakumo/juzu-protocol/native/locker"
	"github.com/wakumo/juzu-protocol/native/token"
	"github.com/wakumo/juzu-protocol/storage"
)

var (
	testAdmin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	testAlice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testBob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	testReceipt = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	testFactory = common.HexToAddress("0x0000000000000000000000000000000000001000")
	testReward  = common.HexToAddress("0x0000000000000000000000000000000000002000")
	testFee     = common.HexToAddress("0x0000000000000000000000000000000000004000")
)

type testStack struct {
	handler  http.Handler
	ledger   *token.Ledger
	registry *token.Registry
	factory  *locker.Factory
	now      int64
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	stack := &testStack{now: 1_700_000_000}
	stack.ledger = token.NewLedger(testAdmin)
	stack.registry = token.NewRegistry(testAdmin)
	book := token.NewNFTBook()

	require.NoError(t, stack.registry.AddFactory(testAdmin, testFactory))
	require.NoError(t, stack.ledger.AddMintRight(testAdmin, testReward, testFactory))

	factory, err := locker.NewFactory(locker.FactoryConfig{
		Address:            testFactory,
		Admin:              testAdmin,
		Version:            1,
		Apr:                365250,
		BaseFeeRequirement: big.NewInt(0),
		RewardToken:        testReward,
		Registry:           stack.registry,
		Adapter:            token.NewAdapter(stack.ledger, book),
		Bank:               token.MintAuthority{Ledger: stack.ledger, Token: testReward, Holder: testFactory},
		Store:              locker.NewStore(storage.NewMemDB()),
		NowFn:              func() int64 { return stack.now },
	})
	require.NoError(t, err)
	stack.factory = factory

	cfg := &Config{RateLimitPerSecond: 1000, RateLimitBurst: 1000}
	server := NewServer(factory, stack.registry, nil, cfg, prometheus.NewRegistry())
	stack.handler = server.Router()
	return stack
}

func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestCreateAndFetchLocker(t *testing.T) {
	stack := newTestStack(t)

	conds := []locker.Condition{{
		ExternalFee:   locker.ExternalFee{Token: testFee, Amount: big.NewInt(5), Receipt: testReceipt},
		ReleasableBy:  testBob,
		GroupPriority: 1,
	}}
	payload, err := locker.EncodeConditions(conds)
	require.NoError(t, err)

	rec := stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{
		"caller":            testAlice.Hex(),
		"conditionsPayload": hexutil.Encode(payload),
		"initialStage":      "open",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created createLockerResponse
	decodeInto(t, rec, &created)
	require.Equal(t, uint64(1), created.PositionID)

	rec = stack.do(t, http.MethodGet, "/v1/lockers/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view lockerView
	decodeInto(t, rec, &view)
	require.Equal(t, testAlice.Hex(), view.Owner)
	require.Equal(t, "open", view.Stage)
	require.Len(t, view.Conditions, 1)
	require.Equal(t, "5", view.Conditions[0].FeeAmount)
	require.Equal(t, testBob.Hex(), view.Conditions[0].ReleasableBy)
}

func TestLockReleaseAndClaimOverHTTP(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{
		"caller": testAlice.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Stake 100e18 of the reward token through the assets endpoint.
	stake, _ := new(big.Int).SetString("100000000000000000000", 10)
	require.NoError(t, stack.ledger.Mint(testAdmin, testReward, testAlice, stake))
	l, ok := stack.factory.Locker(1)
	require.True(t, ok)
	require.NoError(t, stack.ledger.Approve(testAlice, testReward, l.Address(), stake))

	emptyBundle, err := locker.EncodeAssetBundle(&locker.AssetBundle{})
	require.NoError(t, err)
	rec = stack.do(t, http.MethodPost, "/v1/lockers/1/assets", map[string]string{
		"caller":        testAlice.Hex(),
		"bundlePayload": hexutil.Encode(emptyBundle),
		"baseFee":       stake.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = stack.do(t, http.MethodPost, "/v1/lockers/1/lock", map[string]string{"caller": testAlice.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stack.now += 30 * 24 * 60 * 60

	// A stranger cannot use the empty-condition release.
	rec = stack.do(t, http.MethodPost, "/v1/lockers/1/release", map[string]any{
		"caller": testBob.Hex(),
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = stack.do(t, http.MethodPost, "/v1/lockers/1/release", map[string]any{
		"caller": testAlice.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = stack.do(t, http.MethodPost, "/v1/lockers/1/claim", map[string]string{"caller": testAlice.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var claim map[string]string
	decodeInto(t, rec, &claim)
	require.Equal(t, "3000000000000000000", claim["claimed"])

	// Releasing twice maps to a stage conflict.
	rec = stack.do(t, http.MethodPost, "/v1/lockers/1/release", map[string]any{
		"caller": testAlice.Hex(),
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestFactoryEndpoints(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodGet, "/v1/factory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info factoryInfoResponse
	decodeInto(t, rec, &info)
	require.Equal(t, uint64(1), info.Version)
	require.Equal(t, uint64(365250), info.Apr)
	require.False(t, info.Paused)

	rec = stack.do(t, http.MethodPost, "/v1/factory/pause", map[string]string{"caller": testBob.Hex()})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = stack.do(t, http.MethodPost, "/v1/factory/pause", map[string]string{"caller": testAdmin.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{"caller": testAlice.Hex()})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = stack.do(t, http.MethodPost, "/v1/factory/apr", map[string]any{
		"caller": testAdmin.Hex(),
		"apr":    100000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(100_000), stack.factory.Apr())
}

func TestBadRequests(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodGet, "/v1/lockers/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = stack.do(t, http.MethodGet, "/v1/lockers/not-a-number", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{"caller": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{
		"caller":            testAlice.Hex(),
		"conditionsPayload": "zz",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{
		"caller":       testAlice.Hex(),
		"initialStage": "unlocked",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown JSON fields are rejected rather than silently dropped.
	rec = stack.do(t, http.MethodPost, "/v1/lockers", map[string]string{
		"caller":   testAlice.Hex(),
		"surprise": "1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = stack.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
