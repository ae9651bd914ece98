package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avandenberg/chargeclaim/internal/claim"
	"github.com/avandenberg/chargeclaim/internal/testutil"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortal serves the login handshake and lets tests script the submit
// and transactions actions.
type fakePortal struct {
	mux         *http.ServeMux
	srv         *httptest.Server
	submit      func(w http.ResponseWriter, r *http.Request)
	submitCalls int
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	f := &fakePortal{mux: http.NewServeMux()}

	f.mux.HandleFunc("GET /MultiTankcard/moduleservices/moduleversioninfo", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "osVisit", Value: "visit-1", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "osVisitor", Value: "visitor-1", Path: "/"})
		json.NewEncoder(w).Encode(map[string]string{"versionToken": "mv-test"})
	})

	f.mux.HandleFunc("GET /MultiTankcard/scripts/", func(w http.ResponseWriter, r *http.Request) {
		// One blob satisfying every extraction pattern.
		fmt.Fprint(w, `"GetAppStoreUrls", "screenservices/OnTheMoveMultiTankcard_CW/ActionGetAppStoreUrls", "v-appstore"`+"\n")
		fmt.Fprint(w, `"AppLogin", "screenservices/OtmAcc_Account/ActionAppLogin", "v-login"`+"\n")
		fmt.Fprint(w, `"DataActionGetTransactions", "screenservices/OtmTrx_Transactions/Screen/Overview/DataActionGetTransactions", "v-trx"`+"\n")
		fmt.Fprint(w, `"Claim_Create", "screenservices/OtmTrx_Transactions/Claim/ClaimForm/ActionClaim_Create", "v-submit"`+"\n")
	})

	f.mux.HandleFunc("POST /MultiTankcard/screenservices/OnTheMoveMultiTankcard_CW/ActionGetAppStoreUrls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, initialCSRFToken, r.Header.Get("X-CSRFToken"))
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	})

	f.mux.HandleFunc("POST /MultiTankcard/screenservices/OtmAcc_Account/ActionAppLogin", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			InputParameters struct {
				Username string `json:"Username"`
				Password string `json:"Password"`
			} `json:"inputParameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if payload.InputParameters.Password != "hunter2" {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"Result": false,
				"ErrorMessages": map[string]any{"List": []map[string]string{
					{"MessageText": "invalid credentials"},
				}},
			}})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "nr2Users", Value: "uid%3d42%3bcrf%3dtok%2ddynamic%3bexp%3dnever", Path: "/"})
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"Result": true}})
	})

	f.mux.HandleFunc("POST /MultiTankcard/screenservices/OtmTrx_Transactions/Claim/ClaimForm/ActionClaim_Create", func(w http.ResponseWriter, r *http.Request) {
		f.submitCalls++
		if f.submit != nil {
			f.submit(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"Success": true}})
	})

	f.mux.HandleFunc("POST /MultiTankcard/screenservices/OtmTrx_Transactions/Screen/Overview/DataActionGetTransactions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"Transactions": map[string]any{"List": []map[string]string{
				{"ClaimNote": "sess-existing", "Amount": "18.75", "DateTransaction": "2025-07-01T09:00:00.000Z"},
				{"ClaimNote": "", "Amount": "52.10", "DateTransaction": "2025-07-02T09:00:00.000Z"},
			}},
		}})
	})

	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePortal) client() *Client {
	return NewClient(Config{
		BaseURL:        f.srv.URL,
		Username:       "tester",
		Password:       "hunter2",
		LookbackMonths: 6,
	}, log.New(io.Discard))
}

func testPayload(t *testing.T) claim.Payload {
	t.Helper()
	p, err := claim.BuildPayload(testutil.NewTestSession("sess-1"), testutil.NewTestProfile())
	require.NoError(t, err)
	return p
}

func TestClient_Login(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()

	assert.False(t, c.Valid())
	require.NoError(t, c.Login(context.Background()))
	assert.True(t, c.Valid())
	assert.Equal(t, "tok-dynamic", c.csrf, "dynamic token must be unescaped from the session cookie")
}

func TestClient_Login_BadCredentials(t *testing.T) {
	f := newFakePortal(t)
	c := NewClient(Config{BaseURL: f.srv.URL, Username: "tester", Password: "wrong"}, log.New(io.Discard))

	err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.False(t, c.Valid())
}

func TestClient_Submit_Success(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()
	require.NoError(t, c.Login(context.Background()))

	f.submit = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-dynamic", r.Header.Get("X-CSRFToken"))
		var payload struct {
			InputParameters struct {
				ClaimNew struct {
					Description string `json:"Description"`
					Amount      string `json:"Amount"`
					ProductCode string `json:"ProductCode"`
				} `json:"ClaimNew"`
				Attachment struct {
					Binary string `json:"Binary"`
				} `json:"Attachment"`
			} `json:"inputParameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "sess-1", payload.InputParameters.ClaimNew.Description)
		assert.Equal(t, "18.75", payload.InputParameters.ClaimNew.Amount)
		assert.Equal(t, "10", payload.InputParameters.ClaimNew.ProductCode)
		assert.NotEmpty(t, payload.InputParameters.Attachment.Binary)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"Success": true}})
	}

	ack, err := c.Submit(context.Background(), testPayload(t), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, ack.SubmittedDate)
}

func TestClient_Submit_RequiresSession(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()

	_, err := c.Submit(context.Background(), testPayload(t), nil)
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Zero(t, f.submitCalls)
}

func TestClient_Submit_EmbeddedRejection(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()
	require.NoError(t, c.Login(context.Background()))

	// Business errors arrive inside an HTTP 200 response.
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"Success":      false,
			"ErrorMessage": "IBAN onbekend",
		}})
	}

	_, err := c.Submit(context.Background(), testPayload(t), nil)
	assert.ErrorIs(t, err, ErrPortalRejected)
	assert.ErrorContains(t, err, "IBAN onbekend")
}

func TestClient_Submit_DailyLimit(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()
	require.NoError(t, c.Login(context.Background()))

	f.submit = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"Success":      false,
			"ErrorMessage": "Deze transactie overschrijdt de voor uw pas geldende limiet",
		}})
	}

	_, err := c.Submit(context.Background(), testPayload(t), nil)
	assert.ErrorIs(t, err, ErrDailyLimit)
}

func TestClient_Submit_SessionExpiredException(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()
	require.NoError(t, c.Login(context.Background()))

	f.submit = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"exception": map[string]string{
			"message": "Invalid session token",
		}})
	}

	_, err := c.Submit(context.Background(), testPayload(t), nil)
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestClient_Submit_ServerError(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()
	require.NoError(t, c.Login(context.Background()))

	f.submit = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := c.Submit(context.Background(), testPayload(t), nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_RecentClaims(t *testing.T) {
	f := newFakePortal(t)
	c := f.client()
	require.NoError(t, c.Login(context.Background()))

	claims, err := c.RecentClaims(context.Background())
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "sess-existing", claims[0].Note)
	assert.Equal(t, "", claims[1].Note)
}
