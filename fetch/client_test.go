package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/peterldowns/testy/assert"
)

func TestClientConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     ClientConfig{BaseURL: "http://base", AccessToken: "token", Timeout: time.Second},
			wantErr: false,
		},
		{
			name:    "missing everything",
			cfg:     ClientConfig{},
			wantErr: true,
		},
		{
			name:    "missing token",
			cfg:     ClientConfig{BaseURL: "http://base", Timeout: time.Second},
			wantErr: true,
		},
	}

	for _, test := range tests {
		err := test.cfg.Validate()
		if test.wantErr && err == nil {
			t.Errorf("%s: expected an error, got none", test.name)
		}
		if !test.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
		}
	}
}

func TestClient(t *testing.T) {
	var gotAuth string
	var gotQuery map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		q := r.URL.Query()
		gotQuery = map[string]string{
			"symbol":      q.Get("symbol"),
			"resolution":  q.Get("resolution"),
			"date_format": q.Get("date_format"),
			"range_from":  q.Get("range_from"),
			"range_to":    q.Get("range_to"),
			"cont_flag":   q.Get("cont_flag"),
		}
		_, _ = w.Write([]byte(`{"s":"ok","candles":[[1704252600,49150,49200,49120,49180,1000]]}`))
	})
	mux.HandleFunc("/quotes", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbols") {
		case "BAD":
			_, _ = w.Write([]byte(`{"s":"error"}`))
		default:
			_, _ = w.Write([]byte(`{"s":"ok","d":[{"n":"NSE:NIFTY50-INDEX","v":{"lp":49250,"tt":1704253000}}]}`))
		}
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(&ClientConfig{
		BaseURL:     srv.URL + "/",
		AccessToken: "token",
		AppID:       "app",
		Timeout:     time.Second,
	})
	assert.NoError(t, err)

	// Ensure urls can be formed accurately.
	assert.Equal(t, c.formURL("/path", "a=bbb&b=ccc"), srv.URL+"/path?a=bbb&b=ccc")

	// Ensure history can be fetched with the expected parameters.
	start := time.Unix(1704252600, 0)
	end := start.Add(time.Minute * 5)
	rows, err := c.FetchHistory(context.Background(), "NSE:NIFTY50-INDEX", shared.FiveMinute, start, end)
	assert.NoError(t, err)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, gotAuth, "Bearer app:token")
	assert.Equal(t, gotQuery, map[string]string{
		"symbol":      "NSE:NIFTY50-INDEX",
		"resolution":  "5",
		"date_format": "0",
		"range_from":  "1704252600",
		"range_to":    "1704252900",
		"cont_flag":   "1",
	})

	// Ensure quotes can be fetched.
	quotes, err := c.FetchQuotes(context.Background(), []string{"NSE:NIFTY50-INDEX"})
	assert.NoError(t, err)
	assert.Equal(t, len(quotes), 1)
	assert.Equal(t, quotes[0].Get("v.lp").Float(), float64(49250))

	// Ensure a payload without quotes is terminal.
	_, err = c.FetchQuotes(context.Background(), []string{"BAD"})
	assert.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	// Ensure access can be verified.
	assert.NoError(t, c.VerifyAccess(context.Background(), "NSE:NIFTY50-INDEX"))
}

func TestClientStatusErrors(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"s":"error","message":"invalid token"}`))
	}))
	defer srv.Close()

	c, err := NewClient(&ClientConfig{BaseURL: srv.URL, AccessToken: "token", Timeout: time.Second})
	assert.NoError(t, err)
	assert.Equal(t, c.authorization(), "Bearer token")

	// Ensure unauthorized responses are terminal.
	err = c.VerifyAccess(context.Background(), "NSE:NIFTY50-INDEX")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, IsTerminal(err))

	// Ensure server errors are retryable.
	status = http.StatusBadGateway
	_, err = c.FetchHistory(context.Background(), "NSE:NIFTY50-INDEX", shared.FiveMinute,
		time.Unix(0, 0), time.Unix(300, 0))
	assert.Error(t, err)
	assert.False(t, IsTerminal(err))
}
