package fetcher

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"qi-quai-rates/internal/market"
)

var testPair = market.Pair{
	A: market.Asset{Symbol: "QUAI", Decimals: 18},
	B: market.Asset{Symbol: "QI", Decimals: 3},
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []string        `json:"params"`
}

// newRPCServer answers every call with the result registered for its method.
func newRPCServer(t *testing.T, results map[string]string, seen *[]rpcRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if seen != nil {
			*seen = append(*seen, req)
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestQuaiFetchRateScalesByTargetDecimals(t *testing.T) {
	var seen []rpcRequest
	srv := newRPCServer(t, map[string]string{
		"quai_qiToQuai": "0xde0b6b3a7640000", // 1e18 wei for 1000 qits: 1 QUAI per QI
		"quai_quaiToQi": "0x3e80",            // 16000 qits for 1e18 wei: 16 QI per QUAI
	}, &seen)

	q := NewQuai(QuaiOptions{RPCURL: srv.URL, Pair: testPair, Timeout: time.Second}, noopLogger())
	defer q.Close()

	rate, err := q.FetchRate(context.Background(), market.AtoB, testPair.UnitAmount(market.AtoB))
	require.NoError(t, err)
	require.Equal(t, "16", rate.String())

	rate, err = q.FetchRate(context.Background(), market.BtoA, testPair.UnitAmount(market.BtoA))
	require.NoError(t, err)
	require.Equal(t, "1", rate.String())

	require.Len(t, seen, 2)
	require.Equal(t, "quai_quaiToQi", seen[0].Method)
	require.Equal(t, []string{"0xde0b6b3a7640000", "latest"}, seen[0].Params)
	require.Equal(t, []string{"0x3e8", "latest"}, seen[1].Params)
}

func TestQuaiFetchRateOneEtherIsUnitRate(t *testing.T) {
	pair := market.Pair{
		A: market.Asset{Symbol: "A", Decimals: 18},
		B: market.Asset{Symbol: "B", Decimals: 18},
	}
	srv := newRPCServer(t, map[string]string{"quai_quaiToQi": "0xde0b6b3a7640000"}, nil)

	q := NewQuai(QuaiOptions{RPCURL: srv.URL, Pair: pair}, noopLogger())
	defer q.Close()

	rate, err := q.FetchRate(context.Background(), market.AtoB, pair.UnitAmount(market.AtoB))
	require.NoError(t, err)
	require.Equal(t, "1", rate.String())
}

func TestQuaiFetchRateDividesBySourceUnits(t *testing.T) {
	srv := newRPCServer(t, map[string]string{"quai_qiToQuai": "0x1bc16d674ec80000"}, nil) // 2e18

	q := NewQuai(QuaiOptions{RPCURL: srv.URL, Pair: testPair}, noopLogger())
	defer q.Close()

	// 4 QI buys 2 QUAI.
	rate, err := q.FetchRate(context.Background(), market.BtoA, big.NewInt(4000))
	require.NoError(t, err)
	require.Equal(t, "0.5", rate.String())
}

func TestQuaiFetchRateRPCError(t *testing.T) {
	srv := newRPCServer(t, map[string]string{}, nil)

	q := NewQuai(QuaiOptions{RPCURL: srv.URL, Pair: testPair}, noopLogger())
	defer q.Close()

	_, err := q.FetchRate(context.Background(), market.AtoB, testPair.UnitAmount(market.AtoB))
	require.Error(t, err)
	require.Contains(t, err.Error(), "quai_quaiToQi")
}

func TestQuaiFetchRateMalformedResult(t *testing.T) {
	srv := newRPCServer(t, map[string]string{"quai_quaiToQi": "not-hex"}, nil)

	q := NewQuai(QuaiOptions{RPCURL: srv.URL, Pair: testPair}, noopLogger())
	defer q.Close()

	_, err := q.FetchRate(context.Background(), market.AtoB, testPair.UnitAmount(market.AtoB))
	require.Error(t, err)
}

func TestQuaiFetchRateRejectsBadInput(t *testing.T) {
	q := NewQuai(QuaiOptions{RPCURL: "http://127.0.0.1:1", Pair: testPair}, noopLogger())

	_, err := q.FetchRate(context.Background(), market.Direction(7), big.NewInt(1))
	require.ErrorIs(t, err, market.ErrUnknownDirection)

	_, err = q.FetchRate(context.Background(), market.AtoB, big.NewInt(0))
	require.Error(t, err)
}
