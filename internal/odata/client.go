// Package odata implements the OData v2 request engine: session and
// auth handling, CSRF token lifecycle, URL construction and the verb
// operations the projected tools call.
package odata

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sapmcp/odata-bridge/internal/edm"
	"github.com/sapmcp/odata-bridge/internal/metadata"
	"github.com/sapmcp/odata-bridge/internal/trace"
)

const (
	csrfHeader     = "X-CSRF-Token"
	csrfFetchValue = "Fetch"

	defaultTimeout  = 30 * time.Second
	idleConnTimeout = 90 * time.Second
)

// Options configures a Client. Exactly one auth variant applies:
// basic credentials, a cookie set, or nothing.
type Options struct {
	ServiceURL    string
	Username      string
	Password      string
	Cookies       map[string]string
	Verbose       bool
	VerboseErrors bool
	Timeout       time.Duration
}

// Client is a stateful session against one OData v2 service. It is
// safe for concurrent use; the CSRF token is the only mutable state.
type Client struct {
	baseURL       string
	http          *http.Client
	username      string
	password      string
	cookies       map[string]string
	verbose       bool
	verboseErrors bool

	csrfMu         sync.Mutex
	csrfToken      string
	sessionCookies map[string]string
}

// NewClient builds a session. Cookie auth disables TLS verification
// since harvested SAP cookies usually belong to hosts with internal
// certificates.
func NewClient(opts Options) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     idleConnTimeout,
	}
	if len(opts.Cookies) > 0 {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(opts.ServiceURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		username:       opts.Username,
		password:       opts.Password,
		cookies:        opts.Cookies,
		verbose:        opts.Verbose,
		verboseErrors:  opts.VerboseErrors,
		sessionCookies: make(map[string]string),
	}
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) logf(format string, args ...interface{}) {
	if c.verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

// LoadMetadata fetches and parses $metadata, falling back to the JSON
// service document when the service refuses EDMX. Both failing is
// fatal for the bridge.
func (c *Client) LoadMetadata(ctx context.Context) (*edm.ServiceMetadata, error) {
	c.logf("fetching metadata from %s/$metadata", trace.MaskURL(c.baseURL))

	raw, metaErr := c.fetchRaw(ctx, c.baseURL+"/$metadata", "application/xml")
	if metaErr == nil {
		meta, parseErr := metadata.Parse(raw, c.baseURL)
		if parseErr == nil {
			return meta, nil
		}
		metaErr = parseErr
	}

	c.logf("metadata fetch failed (%v), trying service document", metaErr)
	raw, docErr := c.fetchRaw(ctx, c.baseURL+"?$format=json", "application/json")
	if docErr == nil {
		meta, parseErr := metadata.ParseServiceDocument(raw, c.baseURL)
		if parseErr == nil {
			c.logf("using service document fallback with %d entity sets", len(meta.EntitySets))
			return meta, nil
		}
		docErr = parseErr
	}

	return nil, &MetadataError{
		ServiceURL: c.baseURL,
		Err:        fmt.Errorf("$metadata: %v; service document: %v", metaErr, docErr),
	}
}

func (c *Client) fetchRaw(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp.StatusCode, body, http.MethodGet, rawURL, req.Header)
	}
	return body, nil
}

// List runs a collection query. Query options arrive pre-assembled;
// $format=json is forced here.
func (c *Client) List(ctx context.Context, set string, query url.Values) (interface{}, error) {
	query.Set("$format", "json")
	u := c.baseURL + "/" + set + "?" + EncodeQuery(query)
	return c.doJSON(ctx, http.MethodGet, u, nil)
}

// Count fetches the entity count through the $count endpoint, falling
// back to $inlinecount when the service rejects $count.
func (c *Client) Count(ctx context.Context, set, filter string) (int64, error) {
	u := c.baseURL + "/" + set + "/$count"
	if filter != "" {
		q := url.Values{}
		q.Set("$filter", filter)
		u += "?" + EncodeQuery(q)
	}

	body, err := c.fetchRaw(ctx, u, "text/plain")
	if err == nil {
		if n, parseErr := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64); parseErr == nil {
			return n, nil
		}
	} else {
		// Only an HTTP-level rejection of /$count justifies the
		// fallback; network failures are never retried.
		var ue *UpstreamError
		if !errors.As(err, &ue) {
			return 0, err
		}
	}

	c.logf("$count endpoint unusable for %s, falling back to $inlinecount", set)
	q := url.Values{}
	q.Set("$inlinecount", "allpages")
	q.Set("$top", "0")
	q.Set("$format", "json")
	if filter != "" {
		q.Set("$filter", filter)
	}
	result, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/"+set+"?"+EncodeQuery(q), nil)
	if err != nil {
		return 0, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		if d, ok := m["d"].(map[string]interface{}); ok {
			if count, ok := d["__count"]; ok {
				if n, err := strconv.ParseInt(fmt.Sprintf("%v", count), 10, 64); err == nil {
					return n, nil
				}
			}
		}
	}
	return 0, &UpstreamError{Status: 200, Message: "service returned no count"}
}

// Get retrieves a single entity by its key predicate.
func (c *Client) Get(ctx context.Context, set, keyPredicate string, query url.Values) (interface{}, error) {
	query.Set("$format", "json")
	u := c.baseURL + "/" + set + keyPredicate + "?" + EncodeQuery(query)
	return c.doJSON(ctx, http.MethodGet, u, nil)
}

// Create posts a new entity.
func (c *Client) Create(ctx context.Context, set string, payload map[string]interface{}) (interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Argumentf("encoding payload: %v", err)
	}
	u := c.baseURL + "/" + set + "?$format=json"
	return c.doJSON(ctx, http.MethodPost, u, body)
}

// Update modifies an entity. MERGE applies a partial update and is
// preferred; a 405 triggers a single PUT retry for services that only
// accept full replacement. A forced method skips the fallback.
func (c *Client) Update(ctx context.Context, set, keyPredicate string, payload map[string]interface{}, method string) (interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Argumentf("encoding payload: %v", err)
	}
	u := c.baseURL + "/" + set + keyPredicate + "?$format=json"

	forced := method != ""
	if !forced {
		method = "MERGE"
	}

	result, err := c.doJSON(ctx, method, u, body)
	if err != nil && !forced {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.Status == http.StatusMethodNotAllowed {
			c.logf("MERGE not allowed on %s, retrying with PUT", set)
			return c.doJSON(ctx, http.MethodPut, u, body)
		}
	}
	return result, err
}

// Delete removes an entity.
func (c *Client) Delete(ctx context.Context, set, keyPredicate string) (interface{}, error) {
	u := c.baseURL + "/" + set + keyPredicate
	return c.doJSON(ctx, http.MethodDelete, u, nil)
}

// CallFunction invokes a function import. Parameters travel in the
// query string regardless of method; POST calls still need a CSRF
// token.
func (c *Client) CallFunction(ctx context.Context, fi *edm.FunctionImport, params url.Values) (interface{}, error) {
	params.Set("$format", "json")
	u := c.baseURL + "/" + fi.Name + "?" + EncodeQuery(params)
	return c.doJSON(ctx, fi.HTTPMethod, u, nil)
}

// doJSON executes one request with CSRF handling and parses the JSON
// result. Modifying requests carry a token and get exactly one retry
// when the service reports CSRF validation failure; nothing else is
// ever retried.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, payload []byte) (interface{}, error) {
	mutating := isMutating(method)

	var token string
	if mutating {
		var err error
		token, err = c.ensureCSRFToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	req, err := c.newRequest(ctx, method, rawURL, payload, token)
	if err != nil {
		return nil, err
	}
	status, header, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if mutating && isCSRFRejection(status, header, body) {
		c.logf("CSRF token rejected, refreshing and retrying once")
		c.invalidateCSRF()
		token, err = c.ensureCSRFToken(ctx)
		if err != nil {
			return nil, err
		}
		req, err = c.newRequest(ctx, method, rawURL, payload, token)
		if err != nil {
			return nil, err
		}
		status, header, body, err = c.do(req)
		if err != nil {
			return nil, err
		}
		if isCSRFRejection(status, header, body) {
			return nil, &CSRFError{Msg: "token rejected again after refresh"}
		}
	}

	if status >= 400 {
		return nil, c.statusError(status, body, method, rawURL, req.Header)
	}
	return parseResultBody(status, body)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, payload []byte, csrfToken string) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, Argumentf("building request: %v", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrfToken != "" {
		req.Header.Set(csrfHeader, csrfToken)
	}
	c.applyAuth(req)
	return req, nil
}

func (c *Client) do(req *http.Request) (int, http.Header, []byte, error) {
	c.logf("%s %s", req.Method, trace.MaskURL(req.URL.String()))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &TransportError{Err: err}
	}
	c.logf("response %d (%d bytes)", resp.StatusCode, len(body))
	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) applyAuth(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	c.csrfMu.Lock()
	for name, value := range c.sessionCookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	c.csrfMu.Unlock()
}

// ensureCSRFToken returns the cached token or fetches one with a HEAD
// request against the service root. The mutex makes concurrent
// callers share a single fetch.
func (c *Client) ensureCSRFToken(ctx context.Context) (string, error) {
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()

	if c.csrfToken != "" {
		return c.csrfToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return "", &CSRFError{Msg: "building fetch request", Err: err}
	}
	req.Header.Set(csrfHeader, csrfFetchValue)
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &CSRFError{Msg: "token fetch failed", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	token := resp.Header.Get(csrfHeader)
	if token == "" || strings.EqualFold(token, "required") {
		return "", &CSRFError{Msg: fmt.Sprintf("service did not issue a token (status %d)", resp.StatusCode)}
	}

	// SAP ties the token to the session cookies issued alongside it.
	for _, cookie := range resp.Cookies() {
		c.sessionCookies[cookie.Name] = cookie.Value
	}

	c.csrfToken = token
	c.logf("acquired CSRF token %s", trace.MaskToken(token))
	return token, nil
}

func (c *Client) invalidateCSRF() {
	c.csrfMu.Lock()
	c.csrfToken = ""
	c.csrfMu.Unlock()
}

func (c *Client) statusError(status int, body []byte, method, rawURL string, reqHeader http.Header) error {
	if status == http.StatusUnauthorized {
		ue := ExtractUpstreamError(status, body)
		return &AuthError{Status: status, Msg: ue.Message}
	}
	ue := ExtractUpstreamError(status, body)
	if c.verboseErrors {
		context := map[string]string{
			"method": method,
			"url":    trace.MaskURL(rawURL),
		}
		for name, values := range reqHeader {
			context["header:"+name] = trace.MaskHeader(name, strings.Join(values, ", "))
		}
		ue.Context = context
	}
	return ue
}

func parseResultBody(status int, body []byte) (interface{}, error) {
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return map[string]interface{}{
			"message": fmt.Sprintf("Operation completed successfully (status %d)", status),
		}, nil
	}
	var result interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		// Some gateways answer writes with XML or plain text.
		return map[string]interface{}{
			"message": fmt.Sprintf("Operation completed successfully (status %d)", status),
			"raw":     string(bytes.TrimSpace(body)),
		}, nil
	}
	return result, nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

// isCSRFRejection recognizes the SAP token-expired signature: a 403
// whose token header demands Required or whose body names the failure.
func isCSRFRejection(status int, header http.Header, body []byte) bool {
	if status != http.StatusForbidden {
		return false
	}
	if strings.EqualFold(header.Get(csrfHeader), "required") {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("csrf token validation failed"))
}

