package telematics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// chargingHistoryQuery is the GraphQL operation the vehicle app uses for
// the charging-history screen, trimmed to the fields the pipeline reads.
const chargingHistoryQuery = `
query getChargingHistoryV2($pageNumber: Int!, $sortBy: String, $sortOrder: SortByEnum, $latestSession: Boolean) {
  me {
    charging {
      historyV2(pageNumber: $pageNumber, sortBy: $sortBy, sortOrder: $sortOrder, latestSession: $latestSession) {
        data {
          chargeSessionId
          siteLocationName
          chargeStartDateTime
          chargeStopDateTime
          programType
          vin
          invoices {
            fileName
            contentId
            invoiceType
          }
          fees {
            feeType
            currencyCode
            usageBase
            totalDue
            isPaid
          }
        }
        totalResults
        hasMoreData
        pageNumber
      }
    }
  }
}`

// programSupercharger marks sessions billed through the supercharger
// program; partner and home-charging programs are not reimbursable.
const programSupercharger = "SUPERCHARGER"

// Config holds the telematics client settings.
type Config struct {
	BaseURL        string
	InvoiceURL     string
	DeviceCountry  string
	DeviceLanguage string
	Locale         string
	Timeout        time.Duration
}

// Client fetches charging-session history and invoice documents for one
// vehicle from the telematics service.
type Client struct {
	cfg    Config
	tokens TokenSource
	http   *http.Client
	logger *log.Logger
}

// NewClient creates a telematics client using the given token source.
func NewClient(cfg Config, tokens TokenSource, logger *log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Wire types for the GraphQL response.

type historyResponse struct {
	Data struct {
		Me struct {
			Charging struct {
				HistoryV2 struct {
					Data []historyEntry `json:"data"`
				} `json:"historyV2"`
			} `json:"charging"`
		} `json:"me"`
	} `json:"data"`
}

type historyEntry struct {
	ChargeSessionID     string         `json:"chargeSessionId"`
	SiteLocationName    string         `json:"siteLocationName"`
	ChargeStartDateTime string         `json:"chargeStartDateTime"`
	ChargeStopDateTime  string         `json:"chargeStopDateTime"`
	ProgramType         string         `json:"programType"`
	VIN                 string         `json:"vin"`
	Invoices            []invoiceEntry `json:"invoices"`
	Fees                []feeEntry     `json:"fees"`
}

type invoiceEntry struct {
	FileName    string `json:"fileName"`
	ContentID   string `json:"contentId"`
	InvoiceType string `json:"invoiceType"`
}

type feeEntry struct {
	FeeType      string          `json:"feeType"`
	CurrencyCode string          `json:"currencyCode"`
	UsageBase    decimal.Decimal `json:"usageBase"`
	TotalDue     decimal.Decimal `json:"totalDue"`
	IsPaid       bool            `json:"isPaid"`
}

// FetchRecentSessions returns at most maxCount most-recent supercharging
// sessions for the vehicle, newest first. Non-supercharging sessions are
// excluded silently.
func (c *Client) FetchRecentSessions(ctx context.Context, vin string, maxCount int) ([]domain.ChargingSession, error) {
	payload := map[string]any{
		"query": chargingHistoryQuery,
		"variables": map[string]any{
			"sortBy":        "start_datetime",
			"sortOrder":     "DESC",
			"pageNumber":    1,
			"latestSession": false,
		},
		"operationName": "getChargingHistoryV2",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling history query: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/graphql?" + c.deviceParams(vin).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating history request: %w", err)
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return nil, err
	}

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp historyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding history response: %v", ErrUpstreamUnavailable, err)
	}

	entries := resp.Data.Me.Charging.HistoryV2.Data
	sessions := make([]domain.ChargingSession, 0, len(entries))
	for _, entry := range entries {
		if len(sessions) == maxCount {
			break
		}
		if entry.ProgramType != programSupercharger {
			continue
		}
		s, err := entry.toSession()
		if err != nil {
			c.logger.Warn("skipping malformed history entry", "session_id", entry.ChargeSessionID, "err", err)
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// DownloadInvoice fetches the invoice document with the given content id.
func (c *Client) DownloadInvoice(ctx context.Context, vin, contentID string) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.InvoiceURL, "/") + "/" + url.PathEscape(contentID) + "?" + c.deviceParams(vin).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating invoice request: %w", err)
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return nil, err
	}
	return c.do(req)
}

func (e historyEntry) toSession() (domain.ChargingSession, error) {
	s := domain.ChargingSession{
		SessionID:       e.ChargeSessionID,
		LocationLabel:   e.SiteLocationName,
		IsSupercharging: e.ProgramType == programSupercharger,
	}
	if e.ChargeSessionID == "" {
		return s, fmt.Errorf("entry has no charge session id")
	}

	var err error
	if s.StartedAt, err = time.Parse(time.RFC3339, e.ChargeStartDateTime); err != nil {
		return s, fmt.Errorf("parsing charge start %q: %w", e.ChargeStartDateTime, err)
	}
	if e.ChargeStopDateTime != "" {
		if s.EndedAt, err = time.Parse(time.RFC3339, e.ChargeStopDateTime); err != nil {
			return s, fmt.Errorf("parsing charge stop %q: %w", e.ChargeStopDateTime, err)
		}
	}

	// Billing facts live on the CHARGING fee row; idle and other fee types
	// are not reimbursable.
	for _, fee := range e.Fees {
		if fee.FeeType != "CHARGING" {
			continue
		}
		s.EnergyKWh = fee.UsageBase
		s.CostAmount = fee.TotalDue
		s.Currency = fee.CurrencyCode
		break
	}

	for _, inv := range e.Invoices {
		if inv.ContentID != "" {
			s.InvoiceRef = inv.ContentID
			break
		}
	}
	return s, nil
}

func (c *Client) deviceParams(vin string) url.Values {
	return url.Values{
		"deviceLanguage": {c.cfg.DeviceLanguage},
		"deviceCountry":  {c.cfg.DeviceCountry},
		"ttpLocale":      {c.cfg.Locale},
		"vin":            {vin},
		"operationName":  {"getChargingHistoryV2"},
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	requestID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", c.cfg.DeviceLanguage)
	req.Header.Set("x-txid", requestID)
	req.Header.Set("x-request-id", requestID)
	return nil
}

// do executes the request and maps failures onto the adapter error taxonomy.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
