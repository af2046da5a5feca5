// Package gateway talks to the card-payment processor and turns whatever it
// answers into Redirect and Result values. Nothing outside this package sees
// a raw processor payload.
package gateway

import (
	"errors"
	"time"
)

var (
	ErrUnavailable          = errors.New("payment gateway unavailable")
	ErrTimeout              = errors.New("payment gateway timeout")
	ErrProcessor            = errors.New("payment processor error")
	ErrUnrecognizedResponse = errors.New("unrecognized gateway response")
)

// Redirect is where the buyer must be sent to enter card details.
type Redirect struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Result is a normalized commit answer. ResponseCode 0 is the only success.
type Result struct {
	BuyOrder           string
	SessionID          string
	Amount             int64
	ResponseCode       int
	Status             string
	AuthorizationCode  string
	MaskedCard         string
	TransactionDate    time.Time
	TransactionDateRaw string
}

func (r Result) Approved() bool { return r.ResponseCode == 0 }
