// Package payment is the boundary to the hosted payment page.  The gateway
// speaks a signed query-string protocol: the redirect URL and the callback
// both carry an HMAC-SHA512 over the sorted, URL-encoded parameters.
package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameter names used on both legs of the exchange.
const (
	ParamMerchant      = "merchant"
	ParamTxnRef        = "txn_ref"
	ParamAmount        = "amount"
	ParamOrderInfo     = "order_info"
	ParamReturnURL     = "return_url"
	ParamClientIP      = "client_ip"
	ParamCreatedAt     = "created_at"
	ParamExpiresAt     = "expires_at"
	ParamResponseCode  = "response_code"
	ParamTransactionNo = "transaction_no"
	ParamSecureHash    = "secure_hash"
)

// ResponseSuccess is the only response code that means the money moved.
const ResponseSuccess = "00"

const timeParamLayout = "20060102150405"

var (
	// ErrInvalidSignature: the callback was not signed with our secret.
	ErrInvalidSignature = errors.New("invalid gateway signature")
	// ErrMalformedCallback: the signature held but required fields are missing or unparsable.
	ErrMalformedCallback = errors.New("malformed gateway callback")
)

type Config struct {
	Provider   string
	BaseURL    string
	MerchantID string
	Secret     string
	ReturnURL  string
}

// Gateway builds redirect URLs and verifies callbacks.  It holds no state
// and never touches the datastore.
type Gateway struct {
	cfg Config
}

func New(cfg Config) *Gateway {
	if cfg.Provider == "" {
		cfg.Provider = "hosted"
	}
	return &Gateway{cfg: cfg}
}

func (g *Gateway) Provider() string { return g.cfg.Provider }

type RedirectRequest struct {
	OrderCode   string
	Amount      int64
	Description string
	ClientIP    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// BuildRedirectURL returns the hosted payment page URL for an order.
func (g *Gateway) BuildRedirectURL(req RedirectRequest) (string, error) {
	if req.OrderCode == "" || req.Amount <= 0 {
		return "", fmt.Errorf("redirect needs an order code and a positive amount")
	}
	base, err := url.Parse(g.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway base url: %w", err)
	}
	params := url.Values{}
	params.Set(ParamMerchant, g.cfg.MerchantID)
	params.Set(ParamTxnRef, req.OrderCode)
	params.Set(ParamAmount, strconv.FormatInt(req.Amount, 10))
	params.Set(ParamOrderInfo, req.Description)
	params.Set(ParamReturnURL, g.cfg.ReturnURL)
	params.Set(ParamClientIP, req.ClientIP)
	params.Set(ParamCreatedAt, req.CreatedAt.UTC().Format(timeParamLayout))
	if !req.ExpiresAt.IsZero() {
		params.Set(ParamExpiresAt, req.ExpiresAt.UTC().Format(timeParamLayout))
	}
	params.Set(ParamSecureHash, Sign(g.cfg.Secret, params))
	base.RawQuery = params.Encode()
	return base.String(), nil
}

// Verify checks a callback against the gateway secret.
func (g *Gateway) Verify(params url.Values) (Callback, error) {
	return Verify(g.cfg.Secret, params)
}

// Callback is a verified gateway notification.
type Callback struct {
	TxnRef        string
	Amount        int64
	ResponseCode  string
	TransactionNo string
	Raw           url.Values
}

func (c Callback) Success() bool { return c.ResponseCode == ResponseSuccess }

// Sign computes the hex HMAC-SHA512 of every parameter except the hash
// itself, sorted by key.
func Sign(secret string, params url.Values) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

func canonical(params url.Values) string {
	signed := make(url.Values, len(params))
	for k, v := range params {
		if k == ParamSecureHash {
			continue
		}
		signed[k] = v
	}
	return signed.Encode()
}

// Verify is the first gate for callbacks.  It is pure: no I/O and no side
// effects, so it is safe to call on hostile input.
func Verify(secret string, params url.Values) (Callback, error) {
	got, err := hex.DecodeString(strings.TrimSpace(params.Get(ParamSecureHash)))
	if err != nil || len(got) == 0 {
		return Callback{}, ErrInvalidSignature
	}
	want, _ := hex.DecodeString(Sign(secret, params))
	if !hmac.Equal(got, want) {
		return Callback{}, ErrInvalidSignature
	}

	cb := Callback{
		TxnRef:        params.Get(ParamTxnRef),
		ResponseCode:  params.Get(ParamResponseCode),
		TransactionNo: params.Get(ParamTransactionNo),
		Raw:           params,
	}
	if cb.TxnRef == "" || cb.ResponseCode == "" {
		return Callback{}, fmt.Errorf("%w: missing txn_ref or response_code", ErrMalformedCallback)
	}
	amount, err := strconv.ParseInt(params.Get(ParamAmount), 10, 64)
	if err != nil || amount < 0 {
		return Callback{}, fmt.Errorf("%w: bad amount %q", ErrMalformedCallback, params.Get(ParamAmount))
	}
	cb.Amount = amount
	return cb, nil
}
