// Package defi fetches swap routes from the ZeroDev defi API. A route is
// executed by delegatecalling its target from a Kernel account.
package defi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

const (
	DefaultBaseUrl = "https://defi-api.zerodev.app"

	// MaxSlippage is 100% in basis points.
	MaxSlippage = 10_000
)

var ErrInvalidSwapRequest = errors.New("invalid swap request")

// APIError is a non 2xx answer of the defi API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("defi api: status %d: %s", e.Status, e.Message)
}

type SwapRequest struct {
	FromAddress common.Address
	FromToken   common.Address
	FromAmount  *big.Int
	ToAddress   common.Address
	ToToken     common.Address
	ChainId     uint64
	// Slippage in basis points.
	Slippage uint32
}

func (r *SwapRequest) validate() error {
	switch {
	case r.FromAmount == nil || r.FromAmount.Sign() <= 0:
		return fmt.Errorf("%w: fromAmount must be positive", ErrInvalidSwapRequest)
	case r.FromToken == (common.Address{}) || r.ToToken == (common.Address{}):
		return fmt.Errorf("%w: missing token", ErrInvalidSwapRequest)
	case r.FromToken == r.ToToken:
		return fmt.Errorf("%w: fromToken equals toToken", ErrInvalidSwapRequest)
	case r.ChainId == 0:
		return fmt.Errorf("%w: missing chain id", ErrInvalidSwapRequest)
	case r.Slippage > MaxSlippage:
		return fmt.Errorf("%w: slippage %d exceeds %d", ErrInvalidSwapRequest, r.Slippage, MaxSlippage)
	}
	return nil
}

// SwapData is the route returned by the API.
type SwapData struct {
	TargetAddress common.Address
	CallData      []byte
	Value         *big.Int
}

// Call returns the delegatecall executing the swap from the account.
func (d *SwapData) Call() kernel.Call {
	return kernel.Call{
		To:       d.TargetAddress,
		Value:    d.Value,
		Data:     d.CallData,
		CallType: kernel.CallTypeDelegateCall,
	}
}

type swapRequestBody struct {
	FromAddress common.Address `json:"fromAddress"`
	FromToken   common.Address `json:"fromToken"`
	FromAmount  string         `json:"fromAmount"`
	ToAddress   common.Address `json:"toAddress"`
	ToToken     common.Address `json:"toToken"`
	ChainId     uint64         `json:"chainId"`
	Slippage    uint32         `json:"slippage"`
}

type swapResponseBody struct {
	TargetAddress *common.Address `json:"targetAddress"`
	CallData      hexutil.Bytes   `json:"callData"`
	Value         *hexutil.Big    `json:"value"`
}

type Option func(*Client)

func WithBaseUrl(url string) Option {
	return func(c *Client) {
		c.baseUrl = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithRateLimit caps requests per second. Zero disables the limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

type Client struct {
	baseUrl   string
	projectId string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

func NewClient(projectId string, opts ...Option) (*Client, error) {
	if projectId == "" {
		return nil, errors.New("defi client: missing project id")
	}
	c := &Client{
		baseUrl:   DefaultBaseUrl,
		projectId: projectId,
		http:      http.DefaultClient,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetSwapData asks the API for a route swapping req.FromAmount of
// req.FromToken into req.ToToken.
func (c *Client) GetSwapData(ctx context.Context, req SwapRequest) (*SwapData, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload, err := json.Marshal(swapRequestBody{
		FromAddress: req.FromAddress,
		FromToken:   req.FromToken,
		FromAmount:  req.FromAmount.String(),
		ToAddress:   req.ToAddress,
		ToToken:     req.ToToken,
		ChainId:     req.ChainId,
		Slippage:    req.Slippage,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling swap request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/swap", c.baseUrl, c.projectId)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{Status: res.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var out swapResponseBody
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("error unmarshalling swap response: %w", err)
	}
	if out.TargetAddress == nil || len(out.CallData) == 0 {
		return nil, errors.New("incomplete swap response")
	}
	data := &SwapData{
		TargetAddress: *out.TargetAddress,
		CallData:      out.CallData,
		Value:         new(big.Int),
	}
	if out.Value != nil {
		data.Value = out.Value.ToInt()
	}
	c.logger.Sugar().Infow("swap route fetched",
		"chainId", req.ChainId,
		"from", req.FromToken.Hex(),
		"to", req.ToToken.Hex(),
		"target", data.TargetAddress.Hex(),
	)
	return data, nil
}
