package odata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapmcp/odata-bridge/internal/edm"
)

func TestCSRFLifecycle(t *testing.T) {
	var fetches, creates int32
	validToken := "token-1"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			atomic.AddInt32(&fetches, 1)
			w.Header().Set("X-CSRF-Token", validToken)
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodPost {
			atomic.AddInt32(&creates, 1)
			if r.Header.Get("X-CSRF-Token") != validToken {
				w.Header().Set("X-CSRF-Token", "Required")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("CSRF token validation failed"))
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{"ID": "1"}})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})

	// First create fetches a token lazily, then succeeds.
	_, err := c.Create(context.Background(), "Orders", map[string]interface{}{"ID": "1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	assert.Equal(t, int32(1), atomic.LoadInt32(&creates))

	// Second create reuses the cached token: no new fetch.
	_, err = c.Create(context.Background(), "Orders", map[string]interface{}{"ID": "2"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	// Server rotates the token: next create gets 403, refetches once,
	// replays once and succeeds.
	validToken = "token-2"
	_, err = c.Create(context.Background(), "Orders", map[string]interface{}{"ID": "3"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
	// Creates: 1 + 2 + (rejected + replay) = 5.
	assert.Equal(t, int32(5), atomic.LoadInt32(&creates))
}

func TestCSRFSecondRejectionSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("X-CSRF-Token", "always-stale")
			return
		}
		w.Header().Set("X-CSRF-Token", "Required")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("CSRF token validation failed"))
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	_, err := c.Create(context.Background(), "Orders", map[string]interface{}{})
	require.Error(t, err)
	var csrfErr *CSRFError
	assert.ErrorAs(t, err, &csrfErr)
}

func TestGetDoesNotFetchCSRF(t *testing.T) {
	var heads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			atomic.AddInt32(&heads, 1)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{"results": []interface{}{}}})
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	_, err := c.List(context.Background(), "Orders", url.Values{})
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&heads))
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&gets, 1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	_, err := c.List(context.Background(), "Orders", url.Values{})
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadGateway, ue.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gets), "5xx must not trigger a retry")
}

func TestNetworkErrorIsTransportError(t *testing.T) {
	c := NewClient(Options{ServiceURL: "http://127.0.0.1:1"})
	_, err := c.List(context.Background(), "Orders", url.Values{})
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestUpdateMergeFallsBackToPUT(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("X-CSRF-Token", "tok")
			return
		}
		methods = append(methods, r.Method)
		if r.Method == "MERGE" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	result, err := c.Update(context.Background(), "Orders", "('1')", map[string]interface{}{"Status": "done"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"MERGE", http.MethodPut}, methods)

	m, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, m["message"], "204")
}

func TestUpdateForcedMethodNoFallback(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("X-CSRF-Token", "tok")
			return
		}
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	_, err := c.Update(context.Background(), "Orders", "('1')", map[string]interface{}{}, http.MethodPut)
	require.Error(t, err)
	assert.Equal(t, []string{http.MethodPut}, methods)
}

func TestCountPlainEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Products/$count" {
			assert.Equal(t, "Discontinued eq false", r.URL.Query().Get("$filter"))
			w.Write([]byte("69"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	n, err := c.Count(context.Background(), "Products", "Discontinued eq false")
	require.NoError(t, err)
	assert.Equal(t, int64(69), n)
}

func TestCountInlinecountFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Products/$count" {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		assert.Equal(t, "allpages", r.URL.Query().Get("$inlinecount"))
		assert.Equal(t, "0", r.URL.Query().Get("$top"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"d": map[string]interface{}{"results": []interface{}{}, "__count": "42"},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	n, err := c.Count(context.Background(), "Products", "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestCountNetworkErrorNotRetried(t *testing.T) {
	fallbackHit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Products/$count" {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fallbackHit = true
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	_, err := c.Count(context.Background(), "Products", "")
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
	assert.False(t, fallbackHit, "network failure must not trigger the $inlinecount fallback")
}

func TestVerboseErrorsRedactHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":{"value":"boom"}}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{
		ServiceURL:    srv.URL,
		Username:      "alice",
		Password:      "hunter22secret",
		Cookies:       map[string]string{"MYSAPSSO2": "cookievalue123"},
		VerboseErrors: true,
	})
	_, err := c.List(context.Background(), "Products", url.Values{})
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.NotNil(t, ue.Context)
	assert.Equal(t, http.MethodGet, ue.Context["method"])

	auth := ue.Context["header:Authorization"]
	require.NotEmpty(t, auth)
	raw := base64.StdEncoding.EncodeToString([]byte("alice:hunter22secret"))
	assert.NotContains(t, auth, raw)
	assert.Contains(t, auth, "***")

	cookie := ue.Context["header:Cookie"]
	require.NotEmpty(t, cookie)
	assert.NotContains(t, cookie, "cookievalue123")
	assert.Contains(t, cookie, "***")
}

func TestLoadMetadataFallsBackToServiceDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/$metadata" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"d": map[string]interface{}{"EntitySets": []string{"Orders"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	meta, err := c.LoadMetadata(context.Background())
	require.NoError(t, err)
	assert.True(t, meta.FromFallback)
	assert.Contains(t, meta.EntitySets, "Orders")
	assert.False(t, meta.EntitySets["Orders"].Creatable)
}

func TestLoadMetadataBothFailFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	_, err := c.LoadMetadata(context.Background())
	require.Error(t, err)
	var me *MetadataError
	assert.ErrorAs(t, err, &me)
}

func TestCallFunctionParamsInQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("X-CSRF-Token", "tok")
			return
		}
		assert.Equal(t, "/Reseed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "5", r.URL.Query().Get("Count"))
		json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{"Reseed": true}})
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	fi := &edm.FunctionImport{Name: "Reseed", HTTPMethod: http.MethodPost}
	params := url.Values{}
	params.Set("Count", "5")
	_, err := c.CallFunction(context.Background(), fi, params)
	require.NoError(t, err)
}

func TestQueryStringUsesPercent20(t *testing.T) {
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]interface{}{"d": map[string]interface{}{"results": []interface{}{}}})
	}))
	defer srv.Close()

	c := NewClient(Options{ServiceURL: srv.URL})
	q := url.Values{}
	q.Set("$filter", "City eq 'New York'")
	_, err := c.List(context.Background(), "Customers", q)
	require.NoError(t, err)
	assert.NotContains(t, captured, "+")
}
