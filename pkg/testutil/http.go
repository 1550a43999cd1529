// Package testutil provides common test utilities for handler and integration tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// ReadBody reads the response body as a string.
func ReadBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err, "failed to read response body")
	return string(body)
}

// UnmarshalErrorResponse unmarshals the response body as an error response.
func UnmarshalErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result), "failed to unmarshal error response")
	return result
}

// AssertStatus asserts the response status code matches expected.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code")
}

// AssertErrorCode asserts the response contains the expected error code.
func AssertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	errResp := UnmarshalErrorResponse(t, rr)
	assert.Equal(t, expectedCode, errResp["error"], "unexpected error code")
}

var hxHeadersAttr = regexp.MustCompile(`hx-headers='([^']*)'`)

// Browser replays cookies across requests against a handler the way a single
// browser tab would. Headers a loaded page declares with hx-headers are sent
// with that tab's partial requests.
type Browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	page    map[string]string
	// Header is added to every request.
	Header http.Header
}

func NewBrowser(t *testing.T, handler http.Handler) *Browser {
	return &Browser{t: t, handler: handler, cookies: map[string]*http.Cookie{}, Header: http.Header{}}
}

// NewTab opens another tab of the same browser. Cookies are shared; the
// loaded page is not.
func (b *Browser) NewTab() *Browser {
	return &Browser{t: b.t, handler: b.handler, cookies: b.cookies, Header: b.Header.Clone()}
}

// Load performs a full page load of target (path plus optional query).
func (b *Browser) Load(target string) *httptest.ResponseRecorder {
	b.t.Helper()
	rr := b.Do(httptest.NewRequest(http.MethodGet, target, nil))
	if rr.Code == http.StatusOK {
		b.page = nil
		if m := hxHeadersAttr.FindSubmatch(rr.Body.Bytes()); m != nil {
			require.NoError(b.t, json.Unmarshal(m[1], &b.page), "page declares invalid hx-headers")
		}
	}
	return rr
}

// PageHeader returns a header the loaded page sends with partial requests.
func (b *Browser) PageHeader(name string) string {
	return b.page[name]
}

// Partial issues a request the way the page itself would (HX-Request set).
// A non-nil form is sent url-encoded.
func (b *Browser) Partial(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("HX-Request", "true")
	for k, v := range b.page {
		req.Header.Set(k, v)
	}
	return b.Do(req)
}

// Follow performs a full page load of the response's Location.
func (b *Browser) Follow(rr *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	b.t.Helper()
	loc := rr.Header().Get("Location")
	require.NotEmpty(b.t, loc, "response has no Location header")
	return b.Load(loc)
}

// Do sends req with the stored cookies and records any cookies it sets.
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for k, vs := range b.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rr := DoRequest(b.handler, req)
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rr
}

// Cookie returns the stored value of the named cookie, or "".
func (b *Browser) Cookie(name string) string {
	if c, ok := b.cookies[name]; ok {
		return c.Value
	}
	return ""
}

// ClearCookie forgets the named cookie.
func (b *Browser) ClearCookie(name string) {
	delete(b.cookies, name)
}
