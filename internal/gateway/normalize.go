package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// decodeObject accepts any JSON document and returns it only when it is an
// object that does not declare a processor error.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedResponse, truncate(body))
	}

	switch t := v.(type) {
	case map[string]any:
		if msg, ok := processorMessage(t); ok {
			return nil, fmt.Errorf("%w: %s", ErrProcessor, msg)
		}
		return t, nil
	case json.Number:
		return nil, fmt.Errorf("%w: bare status code %s", ErrUnrecognizedResponse, t)
	default:
		return nil, fmt.Errorf("%w: %T payload", ErrUnrecognizedResponse, v)
	}
}

func processorMessage(m map[string]any) (string, bool) {
	for _, k := range []string{"error_message", "error"} {
		if v, ok := m[k]; ok && v != nil {
			if s := text(v); s != "" {
				return s, true
			}
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

func decodeRedirect(body []byte) (Redirect, error) {
	m, err := decodeObject(body)
	if err != nil {
		return Redirect{}, err
	}
	r := Redirect{URL: text(m["url"]), Token: text(m["token"])}
	if r.URL == "" || r.Token == "" {
		return Redirect{}, fmt.Errorf("%w: missing url or token", ErrUnrecognizedResponse)
	}
	return r, nil
}

func decodeResult(body []byte) (Result, error) {
	m, err := decodeObject(body)
	if err != nil {
		return Result{}, err
	}

	r := Result{
		BuyOrder:          text(m["buy_order"]),
		SessionID:         text(m["session_id"]),
		Status:            text(m["status"]),
		AuthorizationCode: text(m["authorization_code"]),
	}
	if r.BuyOrder == "" {
		return Result{}, fmt.Errorf("%w: missing buy_order", ErrUnrecognizedResponse)
	}

	code, ok := integer(m["response_code"])
	if !ok {
		return Result{}, fmt.Errorf("%w: missing response_code for %s", ErrUnrecognizedResponse, r.BuyOrder)
	}
	r.ResponseCode = int(code)
	r.Amount, _ = integer(m["amount"])

	card := text(m["card_number"])
	if detail, ok := m["card_detail"].(map[string]any); ok {
		card = text(detail["card_number"])
	}
	r.MaskedCard = lastDigits(card, 4)

	r.TransactionDateRaw = text(m["transaction_date"])
	if r.TransactionDateRaw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, r.TransactionDateRaw); err == nil {
			r.TransactionDate = ts.UTC()
		}
	}
	return r, nil
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

func integer(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		// 0.0 is still zero; 0.9 is not an integer.
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func lastDigits(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func truncate(b []byte) string {
	const max = 120
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
