// Package lifi implements the routing-aggregator quote source.
package lifi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const contentTypeJSON = "application/json"

// Client talks to the aggregator's routes API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a routes API client. The breaker opens after repeated
// venue failures so a dead venue does not stall every swap.
func NewClient(endpoint string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		limiter:    limiter,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name: "lifi",
		}),
	}
}

// RoutesRequest mirrors the aggregator's route search parameters.
type RoutesRequest struct {
	FromChainID      uint64       `json:"fromChainId"`
	ToChainID        uint64       `json:"toChainId"`
	FromTokenAddress string       `json:"fromTokenAddress"`
	ToTokenAddress   string       `json:"toTokenAddress"`
	FromAmount       string       `json:"fromAmount"`
	FromAddress      string       `json:"fromAddress"`
	ToAddress        string       `json:"toAddress"`
	Options          RouteOptions `json:"options"`
}

// RouteOptions carries slippage as a fraction (50 bps => 0.005).
type RouteOptions struct {
	Slippage float64 `json:"slippage"`
	Order    string  `json:"order"`
}

// Route is the aggregator's internal route object, kept opaque to callers
// except for the fields ranking and execution need.
type Route struct {
	ID          string `json:"id"`
	FromChainID uint64 `json:"fromChainId"`
	ToAmountMin string `json:"toAmountMin"`
	Steps       []Step `json:"steps"`
}

// Step is one hop of a route.
type Step struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Estimate Estimate `json:"estimate"`
}

// Estimate carries the step's approval target.
type Estimate struct {
	ApprovalAddress string `json:"approvalAddress"`
	ToAmountMin     string `json:"toAmountMin"`
}

// StepCall is the pending on-chain call resolved for a route step.
type StepCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

type routesResponse struct {
	Routes []Route `json:"routes"`
}

type stepTransactionResponse struct {
	TransactionRequest struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"transactionRequest"`
}

// GetRoutes fetches candidate routes for the given parameters, best first.
func (c *Client) GetRoutes(ctx context.Context, req *RoutesRequest) ([]Route, error) {
	body, err := c.post(ctx, c.endpoint+"/advanced/routes", req)
	if err != nil {
		return nil, err
	}

	var resp routesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode routes response: %w", err)
	}
	return resp.Routes, nil
}

// ExecuteRoute resolves the route's first step into a pending on-chain
// call. A route whose step cannot be resolved is a hard failure.
func (c *Client) ExecuteRoute(ctx context.Context, route *Route) (*StepCall, error) {
	if len(route.Steps) == 0 {
		return nil, fmt.Errorf("route %s has no steps", route.ID)
	}

	body, err := c.post(ctx, c.endpoint+"/advanced/stepTransaction", route.Steps[0])
	if err != nil {
		return nil, err
	}

	var resp stepTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode step transaction: %w", err)
	}

	txReq := resp.TransactionRequest
	if txReq.To == "" || txReq.Data == "" {
		return nil, fmt.Errorf("route %s resolved no executable call", route.ID)
	}

	value := big.NewInt(0)
	if txReq.Value != "" {
		// Fixed-width hex with leading zeros, not a canonical quantity.
		v, ok := new(big.Int).SetString(strings.TrimPrefix(txReq.Value, "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("invalid step value %q", txReq.Value)
		}
		value = v
	}

	return &StepCall{
		To:    common.HexToAddress(txReq.To),
		Data:  common.FromHex(txReq.Data),
		Value: value,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentTypeJSON)
		req.Header.Set("Accept", contentTypeJSON)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("venue returned %d: %s", resp.StatusCode, string(body))
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
