// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// TokenFunc supplies the bearer token for a request, typically a JWT.
type TokenFunc func(ctx context.Context) (string, error)

// Transport is the HTTP client for the three server endpoints the core
// consumes: batch sync, day-ensure and epoch. It owns serialization only;
// all sync semantics live in the orchestrator and reconciler.
type Transport struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenFunc
	logger  *slog.Logger
}

func NewTransport(baseURL string, token TokenFunc, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Token:   token,
		logger:  logger,
	}
}

// SendBatch posts one batch request. A stale-epoch rejection is returned as
// *StaleEpochError so the caller can adopt the server epoch and retry later;
// any other non-2xx response or undecodable body fails the whole batch.
func (t *Transport) SendBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}
	httpResp, err := t.do(ctx, http.MethodPost, "/sync/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusConflict {
		var errResp ErrorResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&errResp); err != nil {
			return nil, fmt.Errorf("failed to decode conflict response: %w", err)
		}
		if errResp.Error == ErrCodeStaleEpoch {
			return nil, &StaleEpochError{ClientEpoch: req.Epoch, ServerEpoch: errResp.ServerEpoch}
		}
		return nil, fmt.Errorf("fitsync: batch rejected: %s: %s", errResp.Error, errResp.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, readError("batch sync", httpResp)
	}

	var resp BatchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	return &resp, nil
}

// FetchEpoch reads the server's current epoch counter.
func (t *Transport) FetchEpoch(ctx context.Context) (int64, error) {
	httpResp, err := t.do(ctx, http.MethodGet, "/sync/epoch", nil)
	if err != nil {
		return 0, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return 0, readError("epoch fetch", httpResp)
	}
	var resp EpochResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("failed to decode epoch response: %w", err)
	}
	return resp.ServerEpoch, nil
}

// FetchDay loads the server's day snapshot for a date. With ensure set the
// server materializes nested exercises and sets for an existing day; a nil
// ServerDay with nil error means the server has no day for that date.
func (t *Transport) FetchDay(ctx context.Context, date string, ensure bool) (*ServerDay, error) {
	path := "/days?" + url.Values{
		"date":   {date},
		"ensure": {fmt.Sprintf("%t", ensure)},
	}.Encode()
	httpResp, err := t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, readError("day fetch", httpResp)
	}
	var resp DayEnsureResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode day response: %w", err)
	}
	if !resp.Found {
		return nil, nil
	}
	return resp.Day, nil
}

func (t *Transport) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.Token != nil {
		token, err := t.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpResp, err := t.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return httpResp, nil
}

func readError(what string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("fitsync: %s failed with status %d: %s", what, resp.StatusCode, string(snippet))
}
