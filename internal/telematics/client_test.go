package telematics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func historyJSON(entries ...map[string]any) []byte {
	body := map[string]any{
		"data": map[string]any{
			"me": map[string]any{
				"charging": map[string]any{
					"historyV2": map[string]any{
						"data":         entries,
						"totalResults": len(entries),
						"hasMoreData":  false,
						"pageNumber":   1,
					},
				},
			},
		},
	}
	b, _ := json.Marshal(body)
	return b
}

func historyEntryJSON(id, program, start string, kwh, due float64) map[string]any {
	return map[string]any{
		"chargeSessionId":     id,
		"siteLocationName":    "Utrecht, Netherlands",
		"chargeStartDateTime": start,
		"chargeStopDateTime":  "",
		"programType":         program,
		"invoices": []map[string]any{
			{"fileName": id + ".pdf", "contentId": "inv-" + id, "invoiceType": "INVOICE"},
		},
		"fees": []map[string]any{
			{"feeType": "IDLE", "currencyCode": "EUR", "usageBase": 10.0, "totalDue": 2.0, "isPaid": false},
			{"feeType": "CHARGING", "currencyCode": "EUR", "usageBase": kwh, "totalDue": due, "isPaid": false},
		},
	}
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		InvoiceURL:     baseURL + "/invoice",
		DeviceCountry:  "NL",
		DeviceLanguage: "nl",
		Locale:         "nl_NL",
	}
}

func TestClient_FetchRecentSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "5YJ3TEST", r.URL.Query().Get("vin"))
		assert.Equal(t, "NL", r.URL.Query().Get("deviceCountry"))
		assert.NotEmpty(t, r.Header.Get("x-txid"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "getChargingHistoryV2", payload["operationName"])

		w.Header().Set("Content-Type", "application/json")
		w.Write(historyJSON(
			historyEntryJSON("sess-1", "SUPERCHARGER", "2025-08-14T09:30:00Z", 41.2, 18.75),
			historyEntryJSON("sess-2", "SUPERCHARGER", "2025-08-12T18:00:00Z", 20.5, 9.10),
		))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), StaticTokenSource("token-1"), testLogger())
	sessions, err := client.FetchRecentSessions(context.Background(), "5YJ3TEST", 10)
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-1", sessions[0].SessionID)
	assert.Equal(t, "18.75", sessions[0].CostAmount.StringFixed(2))
	assert.Equal(t, "41.2", sessions[0].EnergyKWh.String())
	assert.Equal(t, "EUR", sessions[0].Currency)
	assert.Equal(t, "inv-sess-1", sessions[0].InvoiceRef)
	assert.True(t, sessions[0].IsSupercharging)
	assert.Equal(t, "sess-2", sessions[1].SessionID)
}

func TestClient_FetchRecentSessions_ExcludesOtherPrograms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(historyJSON(
			historyEntryJSON("sess-sc", "SUPERCHARGER", "2025-08-14T09:30:00Z", 41.2, 18.75),
			historyEntryJSON("sess-partner", "PARTNER", "2025-08-13T09:30:00Z", 12.0, 6.00),
		))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), StaticTokenSource("t"), testLogger())
	sessions, err := client.FetchRecentSessions(context.Background(), "5YJ3TEST", 10)
	require.NoError(t, err)

	// Non-supercharging sessions are excluded silently, not reported.
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-sc", sessions[0].SessionID)
}

func TestClient_FetchRecentSessions_MaxCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(historyJSON(
			historyEntryJSON("sess-1", "SUPERCHARGER", "2025-08-14T09:30:00Z", 1, 1),
			historyEntryJSON("sess-2", "SUPERCHARGER", "2025-08-13T09:30:00Z", 1, 1),
			historyEntryJSON("sess-3", "SUPERCHARGER", "2025-08-12T09:30:00Z", 1, 1),
		))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), StaticTokenSource("t"), testLogger())
	sessions, err := client.FetchRecentSessions(context.Background(), "5YJ3TEST", 2)
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-1", sessions[0].SessionID)
	assert.Equal(t, "sess-2", sessions[1].SessionID)
}

func TestClient_FetchRecentSessions_AuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), StaticTokenSource("stale"), testLogger())
	_, err := client.FetchRecentSessions(context.Background(), "5YJ3TEST", 5)
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestClient_FetchRecentSessions_UpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), StaticTokenSource("t"), testLogger())
	_, err := client.FetchRecentSessions(context.Background(), "5YJ3TEST", 5)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestClient_FetchRecentSessions_Unreachable(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1"), StaticTokenSource("t"), testLogger())
	_, err := client.FetchRecentSessions(context.Background(), "5YJ3TEST", 5)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestClient_DownloadInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoice/inv-42", r.URL.Path)
		assert.Equal(t, "5YJ3TEST", r.URL.Query().Get("vin"))
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), StaticTokenSource("t"), testLogger())
	data, err := client.DownloadInvoice(context.Background(), "5YJ3TEST", "inv-42")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
}
