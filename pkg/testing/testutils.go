package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
)

// PerformRequest serves r with h and returns the recorded response.
func PerformRequest(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// PerformSimpleRequest serves a request without a body.
func PerformSimpleRequest(h http.Handler, method, path string) *httptest.ResponseRecorder {
	return PerformRequest(h, httptest.NewRequest(method, path, nil))
}

// DecodeJSONResponse performs a GET of path and decodes the JSON body into
// out. It returns the response for further checks on status and headers.
func DecodeJSONResponse(h http.Handler, path string, out any) (*httptest.ResponseRecorder, error) {
	w := PerformSimpleRequest(h, http.MethodGet, path)
	if ct := w.Header().Get("Content-Type"); ct != "" && ct != "application/json; charset=utf-8" {
		return w, fmt.Errorf("unexpected content type %q for %s", ct, path)
	}
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		return w, fmt.Errorf("decoding %s: %w", path, err)
	}
	return w, nil
}
