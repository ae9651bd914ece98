package portal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/avandenberg/chargeclaim/internal/claim"
	"github.com/charmbracelet/log"
)

// initialCSRFToken is the fixed anti-forgery token the portal accepts for
// pre-login calls. A dynamic per-session token replaces it after login.
const initialCSRFToken = "T6C+9iB49TLra4jEsMeSckDMNhQ="

// appPath is the portal application root under the base URL.
const appPath = "/MultiTankcard"

// dailyLimitIndicator appears in the rejection message when the card's
// daily submission limit for the chosen date is exhausted.
const dailyLimitIndicator = "deze transactie overschrijdt de voor uw pas"

// Per-endpoint API versions are not published; they are embedded in the
// portal's generated JavaScript and extracted with these patterns.
var apiPatterns = map[string]struct {
	pattern *regexp.Regexp
	script  string
}{
	"appstoreurls": {
		regexp.MustCompile(`GetAppStoreUrls", "screenservices/OnTheMoveMultiTankcard_CW/ActionGetAppStoreUrls", "([^"]+)"`),
		"OnTheMoveMultiTankcard_CW.controller.js",
	},
	"login": {
		regexp.MustCompile(`AppLogin", "screenservices/OtmAcc_Account/ActionAppLogin", "([^"]+)"`),
		"OtmAcc_Account.controller.js",
	},
	"transactions": {
		regexp.MustCompile(`DataActionGetTransactions", "screenservices/OtmTrx_Transactions/Screen/Overview/DataActionGetTransactions", "([^"]+)"`),
		"OtmTrx_Transactions.Screen.Overview.mvc.js",
	},
	"submit": {
		regexp.MustCompile(`Claim_Create", "screenservices/OtmTrx_Transactions/Claim/ClaimForm/ActionClaim_Create", "([^"]+)"`),
		"OtmTrx_Transactions.Claim.ClaimForm.mvc.js",
	},
}

// csrfCookieRe extracts the dynamic anti-forgery token from the nr2Users
// cookie the portal sets after login.
var csrfCookieRe = regexp.MustCompile(`crf%3d(.*?)(?:%3b|$)`)

// Config holds the portal client settings.
type Config struct {
	BaseURL        string
	Username       string
	Password       string
	LookbackMonths int
	Timeout        time.Duration
}

// Ack confirms an accepted submission.
type Ack struct {
	// SubmittedDate is the transaction date the portal accepted, which may
	// differ from the session date after daily-limit retries.
	SubmittedDate string
}

// RecentClaim is one entry of the portal's own transaction history. Note
// carries the comment/reference text where submitted session ids live.
type RecentClaim struct {
	Note   string
	Amount string
	Date   string
}

// Client is the authenticated transport to the reimbursement portal. It
// owns the cookie jar and anti-forgery token for one login session and
// nothing else; claim state lives with the caller.
type Client struct {
	cfg           Config
	http          *http.Client
	csrf          string
	moduleVersion string
	apiVersions   map[string]string
	now           func() time.Time
	logger        *log.Logger
}

// NewClient creates a portal client. Login must be called before Submit
// or RecentClaims.
func NewClient(cfg Config, logger *log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = 6
	}
	return &Client{
		cfg:         cfg,
		http:        &http.Client{Jar: jar, Timeout: timeout},
		apiVersions: map[string]string{},
		now:         time.Now,
		logger:      logger,
	}
}

// Valid reports whether the client holds a live authenticated session.
// The session stops being valid when the portal rotates it server-side;
// that surfaces as ErrAuthExpired from the next call.
func (c *Client) Valid() bool {
	return c.csrf != "" && c.csrf != initialCSRFToken
}

// Login establishes an authenticated session: fetches the module version
// token, primes the session cookies with the pre-login anti-forgery token,
// authenticates, and adopts the dynamic token from the nr2Users cookie.
func (c *Client) Login(ctx context.Context) error {
	if err := c.preLogin(ctx); err != nil {
		return err
	}

	loginVersion, err := c.apiVersion(ctx, "login")
	if err != nil {
		return err
	}
	payload := map[string]any{
		"versionInfo": map[string]any{"moduleVersion": c.moduleVersion, "apiVersion": loginVersion},
		"viewName":    "CommonMTC.Login",
		"inputParameters": map[string]any{
			"Username":       c.cfg.Username,
			"Password":       c.cfg.Password,
			"KeepMeLoggedIn": true,
		},
	}

	body, err := c.postAction(ctx, "/screenservices/OtmAcc_Account/ActionAppLogin", payload, initialCSRFToken)
	if err != nil {
		return err
	}

	var result struct {
		Data struct {
			Result        bool `json:"Result"`
			ErrorMessages struct {
				List []struct {
					MessageText string `json:"MessageText"`
				} `json:"List"`
			} `json:"ErrorMessages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: decoding login response: %v", ErrTransport, err)
	}
	if !result.Data.Result {
		msg := "unknown login error"
		if list := result.Data.ErrorMessages.List; len(list) > 0 {
			msg = list[0].MessageText
		}
		return fmt.Errorf("%w: login failed: %s", ErrAuthExpired, msg)
	}

	csrf, err := c.sessionToken()
	if err != nil {
		return err
	}
	c.csrf = csrf
	c.logger.Info("portal login successful")
	return nil
}

// Submit posts one claim. The response body is inspected for embedded
// error indicators even on HTTP 200, since the portal reports business
// errors inside successful responses.
func (c *Client) Submit(ctx context.Context, p claim.Payload, attachment []byte) (*Ack, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: no authenticated session", ErrAuthExpired)
	}

	submitVersion, err := c.apiVersion(ctx, "submit")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"versionInfo": map[string]any{"moduleVersion": c.moduleVersion, "apiVersion": submitVersion},
		"viewName":    "MainFlowMTC.NewClaim",
		"inputParameters": map[string]any{
			"ClaimNew": map[string]any{
				"TransactionTypeId": p.TransactionTypeID,
				"Iban":              p.IBAN,
				"Amount":            p.Amount,
				"DateTransaction":   p.DateTransaction,
				"Mileage":           p.Mileage,
				"IsForeign":         p.IsForeign,
				"CountryId":         p.CountryID,
				"IsReplacement":     p.IsReplacement,
				"Quantity":          p.Quantity,
				"Description":       p.Description,
				"ProductCode":       p.ProductCode,
			},
			"Attachment": map[string]any{
				"MimeType": "",
				"Binary":   base64.StdEncoding.EncodeToString(attachment),
			},
		},
	}

	body, err := c.postAction(ctx, "/screenservices/OtmTrx_Transactions/Claim/ClaimForm/ActionClaim_Create", payload, c.csrf)
	if err != nil {
		return nil, err
	}
	if err := c.embeddedException(body); err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			Success      bool   `json:"Success"`
			ErrorMessage string `json:"ErrorMessage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding submit response: %v", ErrTransport, err)
	}
	if !result.Data.Success {
		msg := result.Data.ErrorMessage
		if strings.Contains(strings.ToLower(msg), dailyLimitIndicator) {
			return nil, fmt.Errorf("%w: %s", ErrDailyLimit, msg)
		}
		return nil, fmt.Errorf("%w: %s", ErrPortalRejected, msg)
	}
	return &Ack{SubmittedDate: p.DateTransaction}, nil
}

// RecentClaims fetches the portal's own transaction history over the
// configured lookback window, newest first. This is the secondary,
// authoritative duplicate-detection signal: submitted session ids live in
// each claim's note text.
func (c *Client) RecentClaims(ctx context.Context) ([]RecentClaim, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: no authenticated session", ErrAuthExpired)
	}

	trxVersion, err := c.apiVersion(ctx, "transactions")
	if err != nil {
		return nil, err
	}

	nowUTC := c.now().UTC()
	start := monthsBack(nowUTC, c.cfg.LookbackMonths)
	payload := map[string]any{
		"versionInfo": map[string]any{"moduleVersion": c.moduleVersion, "apiVersion": trxVersion},
		"viewName":    "MainFlowMTC.Transactions",
		"screenData": map[string]any{
			"variables": map[string]any{
				"InputParameterString":       fmt.Sprintf("%s|%s|0", start.Format("2006-01-02 00:00:00"), nowUTC.Format("2006-01-02 23:59:59")),
				"MaxRecords":                 50,
				"IsFirstLoad":                true,
				"IsLoadMore":                 false,
				"StartDateTimeCurrentFilter": apiTimestamp(start),
				"EndDateTimeCurrentFilter":   apiTimestamp(nowUTC),
			},
		},
	}

	body, err := c.postAction(ctx, "/screenservices/OtmTrx_Transactions/Screen/Overview/DataActionGetTransactions", payload, c.csrf)
	if err != nil {
		return nil, err
	}
	if err := c.embeddedException(body); err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			Transactions struct {
				List []struct {
					ClaimNote       string `json:"ClaimNote"`
					Amount          string `json:"Amount"`
					DateTransaction string `json:"DateTransaction"`
				} `json:"List"`
			} `json:"Transactions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding transactions response: %v", ErrTransport, err)
	}

	claims := make([]RecentClaim, 0, len(result.Data.Transactions.List))
	for _, trx := range result.Data.Transactions.List {
		claims = append(claims, RecentClaim{
			Note:   trx.ClaimNote,
			Amount: trx.Amount,
			Date:   trx.DateTransaction,
		})
	}
	return claims, nil
}

// preLogin fetches the module version token and primes the session cookies.
func (c *Client) preLogin(ctx context.Context) error {
	versionURL := fmt.Sprintf("%s%s/moduleservices/moduleversioninfo?%d",
		strings.TrimRight(c.cfg.BaseURL, "/"), appPath, c.now().UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return fmt.Errorf("creating module version request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: module version returned status %d", ErrTransport, resp.StatusCode)
	}

	var info struct {
		VersionToken string `json:"versionToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("%w: decoding module version: %v", ErrTransport, err)
	}
	if info.VersionToken == "" {
		return fmt.Errorf("%w: module version token missing", ErrTransport)
	}
	c.moduleVersion = info.VersionToken

	// The app-store-urls action does nothing useful by itself but the
	// portal only issues the session cookies after one authenticated-shape
	// call with the pre-login token.
	appStoreVersion, err := c.apiVersion(ctx, "appstoreurls")
	if err != nil {
		return err
	}
	payload := map[string]any{
		"versionInfo":     map[string]any{"moduleVersion": c.moduleVersion, "apiVersion": appStoreVersion},
		"viewName":        "*",
		"inputParameters": map[string]any{},
	}
	if _, err := c.postAction(ctx, "/screenservices/OnTheMoveMultiTankcard_CW/ActionGetAppStoreUrls", payload, initialCSRFToken); err != nil {
		return err
	}
	return nil
}

// sessionToken extracts the dynamic anti-forgery token from the nr2Users
// cookie set during login.
func (c *Client) sessionToken() (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing portal base url: %w", err)
	}
	for _, cookie := range c.http.Jar.Cookies(base) {
		if cookie.Name != "nr2Users" {
			continue
		}
		m := csrfCookieRe.FindStringSubmatch(cookie.Value)
		if m == nil {
			return "", fmt.Errorf("%w: anti-forgery token not present in session cookie", ErrAuthExpired)
		}
		token, err := url.QueryUnescape(m[1])
		if err != nil {
			return "", fmt.Errorf("%w: malformed anti-forgery token: %v", ErrAuthExpired, err)
		}
		return token, nil
	}
	return "", fmt.Errorf("%w: session cookie not set after login", ErrAuthExpired)
}

// apiVersion extracts (and caches) the per-endpoint API version embedded in
// the portal's generated JavaScript.
func (c *Client) apiVersion(ctx context.Context, key string) (string, error) {
	if v, ok := c.apiVersions[key]; ok {
		return v, nil
	}
	entry, ok := apiPatterns[key]
	if !ok {
		return "", fmt.Errorf("unknown portal endpoint %q", key)
	}

	scriptURL := strings.TrimRight(c.cfg.BaseURL, "/") + appPath + "/scripts/" + entry.script
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating script request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetching %s: %v", ErrTransport, entry.script, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: script %s returned status %d", ErrTransport, entry.script, resp.StatusCode)
	}
	script, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrTransport, entry.script, err)
	}

	m := entry.pattern.FindSubmatch(script)
	if m == nil {
		return "", fmt.Errorf("%w: api version for %q not found in %s", ErrTransport, key, entry.script)
	}
	c.apiVersions[key] = string(m[1])
	return c.apiVersions[key], nil
}

// postAction executes one screenservices action and maps HTTP-level
// failures onto the client error taxonomy.
func (c *Client) postAction(ctx context.Context, action string, payload map[string]any, csrf string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling action payload: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + appPath + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("OutSystems-client-env", "browser")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrPortalRejected, resp.StatusCode, body)
	}
	return body, nil
}

// embeddedException maps the portal's in-body exception envelope, which it
// returns with HTTP 200.
func (c *Client) embeddedException(body []byte) error {
	var env struct {
		Exception *struct {
			Message string `json:"message"`
		} `json:"exception"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Exception == nil {
		return nil
	}
	msg := env.Exception.Message
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "session") || strings.Contains(lower, "not logged in") || strings.Contains(lower, "csrf") {
		return fmt.Errorf("%w: %s", ErrAuthExpired, msg)
	}
	return fmt.Errorf("%w: %s", ErrPortalRejected, msg)
}

// apiTimestamp renders t in the UTC millisecond-Z format the portal's
// filter variables expect.
func apiTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// monthsBack returns the first day of the month n months before t.
func monthsBack(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -n, 0)
}
