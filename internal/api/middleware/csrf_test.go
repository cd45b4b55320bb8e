package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testCSRFKey = []byte("12345678901234567890123456789012")

func csrfTestHandler() http.Handler {
	return CSRFProtection(testCSRFKey, false, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	}))
}

func TestCSRFProtection_BlocksMissingToken(t *testing.T) {
	handler := csrfTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/date-requests", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("Expected problem document, got %s", got)
	}
	if !strings.Contains(res.Body.String(), "csrf-failure") {
		t.Errorf("Expected CSRF problem type, got: %s", res.Body.String())
	}
}

func TestCSRFProtection_AllowsSafeMethods(t *testing.T) {
	handler := csrfTestHandler()

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(method, "/api/v1/me", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if res.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", method, res.Code)
		}
	}
}

func TestCSRFProtection_ExposesTokenAndCookie(t *testing.T) {
	handler := csrfTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Header().Get(CSRFHeader) == "" {
		t.Fatal("expected CSRF token header on safe request")
	}

	var found bool
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name != "_gorilla_csrf" {
			continue
		}
		found = true
		if !cookie.HttpOnly {
			t.Error("CSRF cookie should be HttpOnly")
		}
		if cookie.Path != "/" {
			t.Errorf("CSRF cookie path should be /, got %s", cookie.Path)
		}
		if cookie.SameSite != http.SameSiteLaxMode {
			t.Errorf("CSRF cookie should be SameSite=Lax, got %v", cookie.SameSite)
		}
	}
	if !found {
		t.Error("CSRF cookie not set in response")
	}
}

func TestCSRFProtection_TokenRoundTrip(t *testing.T) {
	handler := csrfTestHandler()

	getRes := httptest.NewRecorder()
	handler.ServeHTTP(getRes, httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/me", nil))
	token := getRes.Header().Get(CSRFHeader)

	postReq := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/date-requests", strings.NewReader("{}"))
	postReq.Header.Set(CSRFHeader, token)
	for _, cookie := range getRes.Result().Cookies() {
		postReq.AddCookie(cookie)
	}
	postRes := httptest.NewRecorder()
	handler.ServeHTTP(postRes, postReq)

	if postRes.Code != http.StatusOK {
		t.Fatalf("expected POST with token to pass, got %d: %s", postRes.Code, postRes.Body.String())
	}
}

func TestCSRFProtection_InvalidTokenBlocked(t *testing.T) {
	handler := csrfTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/date-requests", strings.NewReader("{}"))
	req.Header.Set(CSRFHeader, "invalid-token")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 with invalid token, got %d", res.Code)
	}
}

func TestCSRFProtection_UnsafeMethodsRequireToken(t *testing.T) {
	handler := csrfTestHandler()

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/v1/panel/competitions/1", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if res.Code != http.StatusForbidden {
			t.Errorf("Expected status 403 for %s without token, got %d", method, res.Code)
		}
	}
}

func BenchmarkCSRFProtection_GET(b *testing.B) {
	handler := csrfTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
	}
}
