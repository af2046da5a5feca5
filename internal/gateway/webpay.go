package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

// Webpay is a Webpay Plus REST client.
type Webpay struct {
	baseURL      string
	commerceCode string
	apiKey       string
	httpClient   *http.Client
}

func NewWebpay(baseURL, commerceCode, apiKey string, timeout time.Duration) *Webpay {
	return &Webpay{
		baseURL:      strings.TrimRight(baseURL, "/"),
		commerceCode: commerceCode,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

// Create opens a payment session and returns the redirect for the buyer.
func (w *Webpay) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (Redirect, error) {
	body, err := w.doRequest(ctx, http.MethodPost, transactionsPath, createRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	})
	if err != nil {
		return Redirect{}, fmt.Errorf("webpay create %s: %w", buyOrder, err)
	}
	r, err := decodeRedirect(body)
	if err != nil {
		return Redirect{}, fmt.Errorf("webpay create %s: %w", buyOrder, err)
	}
	return r, nil
}

// Commit finalizes the session identified by token. Its answer is the only
// authority on whether the payment went through.
func (w *Webpay) Commit(ctx context.Context, token string) (Result, error) {
	body, err := w.doRequest(ctx, http.MethodPut, transactionsPath+"/"+url.PathEscape(token), nil)
	if err != nil {
		return Result{}, fmt.Errorf("webpay commit: %w", err)
	}
	r, err := decodeResult(body)
	if err != nil {
		return Result{}, fmt.Errorf("webpay commit: %w", err)
	}
	return r, nil
}

func (w *Webpay) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Tbk-Api-Key-Id", w.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", w.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(respBytes))
	case resp.StatusCode >= 400:
		// 4xx bodies usually carry error_message; decodeObject turns that
		// into ErrProcessor.
		if _, err := decodeObject(respBytes); err != nil && errors.Is(err, ErrProcessor) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status %d", ErrProcessor, resp.StatusCode)
	}
	return respBytes, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
