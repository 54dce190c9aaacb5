// Package rates fetches the currency rates partners send to each other.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
)

const (
	DefaultBitcoinURL = "https://api.coindesk.com/v1/bpi/currentprice.json"
	DefaultUSDURL     = "https://api.exchangerate-api.com/v4/latest/USD"
	DefaultTimeout    = 10 * time.Second
)

const (
	SourceBitcoin = "bitcoin"
	SourceUSD     = "usd"
)

// FetchError reports a failed rate lookup. Fetches are not retried.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s rate: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	BitcoinURL string
	USDURL     string
	http       *http.Client
}

func NewClient(bitcoinURL, usdURL string, timeout time.Duration) *Client {
	if bitcoinURL == "" {
		bitcoinURL = DefaultBitcoinURL
	}
	if usdURL == "" {
		usdURL = DefaultUSDURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BitcoinURL: bitcoinURL,
		USDURL:     usdURL,
		http:       &http.Client{Timeout: timeout},
	}
}

type bitcoinResponse struct {
	BPI struct {
		USD struct {
			RateFloat *float64 `json:"rate_float"`
		} `json:"USD"`
	} `json:"bpi"`
}

type usdResponse struct {
	Rates struct {
		EUR *float64 `json:"EUR"`
	} `json:"rates"`
}

// FetchBitcoinRate returns the price of one bitcoin in US dollars.
func (c *Client) FetchBitcoinRate(ctx context.Context) (float64, error) {
	var out bitcoinResponse
	if err := c.get(ctx, c.BitcoinURL, &out); err != nil {
		return 0, &FetchError{Source: SourceBitcoin, Err: err}
	}
	if out.BPI.USD.RateFloat == nil {
		return 0, &FetchError{Source: SourceBitcoin, Err: fmt.Errorf("missing bpi.USD.rate_float")}
	}
	return *out.BPI.USD.RateFloat, nil
}

// FetchUSDRate returns the value of one US dollar in euros.
func (c *Client) FetchUSDRate(ctx context.Context) (float64, error) {
	var out usdResponse
	if err := c.get(ctx, c.USDURL, &out); err != nil {
		return 0, &FetchError{Source: SourceUSD, Err: err}
	}
	if out.Rates.EUR == nil {
		return 0, &FetchError{Source: SourceUSD, Err: fmt.Errorf("missing rates.EUR")}
	}
	return *out.Rates.EUR, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Quote fetches the rate for role and formats it as message content.
func (c *Client) Quote(ctx context.Context, role protocol.Role) (string, error) {
	switch role {
	case protocol.RoleBitcoin:
		rate, err := c.FetchBitcoinRate(ctx)
		if err != nil {
			return "", err
		}
		return FormatBitcoin(rate), nil
	case protocol.RoleUSA:
		rate, err := c.FetchUSDRate(ctx)
		if err != nil {
			return "", err
		}
		return FormatUSD(rate), nil
	default:
		return "", fmt.Errorf("no rate for role %q", role)
	}
}

// FormatBitcoin renders a BTC price with two to three decimals, e.g.
// "$50,000.00 USD" or "$50,000.125 USD".
func FormatBitcoin(rate float64) string {
	s := humanize.FormatFloat("#,###.###", rate)
	if i := strings.LastIndexByte(s, '.'); i >= 0 && len(s)-i == 4 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return "$" + s + " USD"
}

// FormatUSD renders a USD to EUR rate, e.g. "$1.00 USD = €0.92 EUR".
func FormatUSD(rate float64) string {
	return fmt.Sprintf("$1.00 USD = €%.2f EUR", rate)
}
