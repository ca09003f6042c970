// Package bebop implements the RFQ quote source: prices are requested and
// returned bilaterally instead of computed from an on-chain pool.
package bebop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const contentTypeJSON = "application/json"

// Client talks to the RFQ venue's quote endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*QuoteResponse]
}

// NewClient creates an RFQ client.
func NewClient(endpoint string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		limiter:    limiter,
		breaker: gobreaker.NewCircuitBreaker[*QuoteResponse](gobreaker.Settings{
			Name: "bebop",
		}),
	}
}

// QuoteRequest is the venue's quote request body.
type QuoteRequest struct {
	SellTokens   []SellToken `json:"sellTokens"`
	BuyTokens    []BuyToken  `json:"buyTokens"`
	TakerAddress string      `json:"takerAddress"`
}

// SellToken names a token and the exact amount sold, in smallest units.
type SellToken struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// BuyToken names a token and the proportion of proceeds routed to it.
type BuyToken struct {
	Token      string `json:"token"`
	Proportion int    `json:"proportion"`
}

// RFQQuote is the venue's firm quote: a ready-to-send call plus the
// approval target the taker must authorize.
type RFQQuote struct {
	BuyAmount      string `json:"buyAmount"`
	SellAmount     string `json:"sellAmount"`
	To             string `json:"to"`
	Data           string `json:"data"`
	Value          string `json:"value"`
	From           string `json:"from"`
	ApprovalTarget string `json:"approvalTarget"`
}

// QuoteResponse wraps the venue's top-level response object.
type QuoteResponse struct {
	Quote RFQQuote `json:"quote"`
}

// GetQuote requests a firm quote for one sell token on one chain.
// chainKey is the venue's own name for the chain.
func (c *Client) GetQuote(ctx context.Context, chainKey string, req *QuoteRequest) (*RFQQuote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/v1/quote", c.endpoint, chainKey)

	resp, err := c.breaker.Execute(func() (*QuoteResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", contentTypeJSON)
		httpReq.Header.Set("Accept", contentTypeJSON)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(httpResp.Body)
			return nil, fmt.Errorf("venue returned %d: %s", httpResp.StatusCode, string(body))
		}

		var decoded QuoteResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("failed to decode quote response: %w", err)
		}
		return &decoded, nil
	})
	if err != nil {
		return nil, err
	}

	return &resp.Quote, nil
}
