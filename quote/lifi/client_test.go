package lifi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL,
		&http.Client{Timeout: time.Second},
		rate.NewLimiter(rate.Inf, 1))
	return server, client
}

func TestGetRoutes(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/advanced/routes", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"routes":[
			{"id":"r1","fromChainId":1,"toAmountMin":"995000000","steps":[{"id":"s1","type":"lifi"}]},
			{"id":"r2","fromChainId":1,"toAmountMin":"990000000","steps":[]}
		]}`))
	})

	routes, err := client.GetRoutes(context.Background(), &RoutesRequest{
		FromChainID: 1,
		ToChainID:   1,
	})
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "r1", routes[0].ID)
	assert.Equal(t, "995000000", routes[0].ToAmountMin)
}

func TestGetRoutesVenueError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no liquidity", http.StatusNotFound)
	})

	_, err := client.GetRoutes(context.Background(), &RoutesRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestExecuteRoute(t *testing.T) {
	t.Run("resolves_step_call", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/advanced/stepTransaction", r.URL.Path)
			_, _ = w.Write([]byte(`{"transactionRequest":{
				"to":"0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE",
				"data":"0xdeadbeef",
				"value":"0x0de0b6b3a7640000"
			}}`))
		})

		step, err := client.ExecuteRoute(context.Background(), &Route{
			ID:    "r1",
			Steps: []Step{{ID: "s1", Type: "lifi"}},
		})
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"), step.To)
		assert.Equal(t, common.FromHex("0xdeadbeef"), step.Data)
		assert.Equal(t, "1000000000000000000", step.Value.String())
	})

	t.Run("rejects_route_without_steps", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		})

		_, err := client.ExecuteRoute(context.Background(), &Route{ID: "r1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no steps")
	})

	t.Run("rejects_empty_call", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"transactionRequest":{"to":"","data":""}}`))
		})

		_, err := client.ExecuteRoute(context.Background(), &Route{
			ID:    "r1",
			Steps: []Step{{ID: "s1"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no executable call")
	})
}
