package simplybook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicesync_upstream_calls_total",
		Help: "Provider JSON-RPC calls, labeled by method and outcome",
	}, []string{"method", "outcome"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoicesync_upstream_call_duration_seconds",
		Help:    "Provider JSON-RPC call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})
)

// ErrNoResult is returned when the envelope carries neither an error nor a usable result.
var ErrNoResult = errors.New("response has no result")

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// rpcClient posts JSON-RPC envelopes and decodes `.result`. Every provider call
// goes through call.
type rpcClient struct {
	http    *retryablehttp.Client
	timeout time.Duration
	seq     atomic.Int64
}

func newRPCClient(timeout time.Duration, retryMax int, logger retryablehttp.LeveledLogger) *rpcClient {
	hc := retryablehttp.NewClient()
	hc.HTTPClient.Timeout = timeout
	hc.RetryMax = retryMax
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = logger
	return &rpcClient{http: hc, timeout: timeout}
}

func (c *rpcClient) call(ctx context.Context, url, method string, params []any, headers map[string]string, out any) (err error) {
	timer := prometheus.NewTimer(upstreamLatency.WithLabelValues(method))
	defer func() {
		timer.ObserveDuration()
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		upstreamCallsTotal.WithLabelValues(method, outcome).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.seq.Add(1)})
	if err != nil {
		return errors.Wrapf(err, "encode %s request", method)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", method)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("%s returned HTTP %d", method, resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	if envelope.Error != nil {
		return errors.Wrapf(envelope.Error, "%s", method)
	}
	if isEmptyResult(envelope.Result) {
		return errors.Wrapf(ErrNoResult, "%s", method)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

func isEmptyResult(r json.RawMessage) bool {
	r = bytes.TrimSpace(r)
	switch string(r) {
	case "", "null", "false", `""`, "{}", "[]":
		return true
	}
	return false
}
