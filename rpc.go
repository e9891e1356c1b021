package aasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const jsonrpcVersion = "2.0"

// rpcTransport posts JSON-RPC requests to a single service url.
type rpcTransport struct {
	url     string
	http    *http.Client
	id      *atomic.Uint64
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newRpcTransport(url string, httpClient *http.Client, id *atomic.Uint64, limiter *rate.Limiter, logger *zap.Logger) *rpcTransport {
	return &rpcTransport{
		url:     url,
		http:    httpClient,
		id:      id,
		limiter: limiter,
		logger:  logger,
	}
}

// call makes a JSON-RPC call and decodes the result into result.
// Service errors are returned as *RPCError.
func (t *rpcTransport) call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	id := t.id.Add(1)
	request := map[string]any{
		"jsonrpc": jsonrpcVersion,
		"id":      id,
		"method":  method,
		"params":  params,
	}
	payloadBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	t.logger.Debug("rpc request", zap.String("method", method), zap.Uint64("id", id))
	res, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	var response jsonRpcResponse[json.RawMessage]
	if err = json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("error unmarshalling %s response (status %d): %w", method, res.StatusCode, err)
	}
	if response.Error != nil {
		return response.Error.toRPCError(method)
	}
	if result == nil || len(response.Result) == 0 {
		return nil
	}
	if err = json.Unmarshal(response.Result, result); err != nil {
		return fmt.Errorf("error unmarshalling %s result: %w", method, err)
	}
	return nil
}

type jsonRpcResponse[T any] struct {
	JsonRpc *string        `json:"jsonrpc"`
	Id      *uint64        `json:"id"`
	Result  T              `json:"result"`
	Error   *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    *int    `json:"code"`
	Message *string `json:"message"`
	Data    any     `json:"data"`
}

// UnmarshalJSON implements custom unmarshaling for ErrorResponse
func (e *errorResponse) UnmarshalJSON(b []byte) error {
	// Some services return the error as a plain string
	var errStr string
	if err := json.Unmarshal(b, &errStr); err == nil && errStr != "" {
		e.Message = &errStr
		e.Code = nil
		return nil
	}

	type Alias struct {
		Code    *int    `json:"code"`
		Message *string `json:"message"`
		Data    any     `json:"data"`
	}
	var alias Alias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	e.Code = alias.Code
	e.Message = alias.Message
	e.Data = alias.Data
	return nil
}

func (e *errorResponse) toRPCError(method string) *RPCError {
	rpcErr := &RPCError{Method: method, Data: e.Data}
	if e.Code != nil {
		rpcErr.Code = *e.Code
	}
	if e.Message != nil {
		rpcErr.Message = *e.Message
	}
	return rpcErr
}
