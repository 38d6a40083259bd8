package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfHandler(called *bool) http.Handler {
	return NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFMiddleware_SafeMethodsSkipValidation(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			w := httptest.NewRecorder()
			csrfHandler(&called).ServeHTTP(w, httptest.NewRequest(method, "/api/products", nil))

			if !called {
				t.Error("next handler should be called")
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
		})
	}
}

func TestCSRFMiddleware_GETIssuesCookieOnce(t *testing.T) {
	called := false
	w := httptest.NewRecorder()
	csrfHandler(&called).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var issued *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == CSRFCookieName {
			issued = c
		}
	}
	if issued == nil {
		t.Fatal("expected csrf cookie to be issued")
	}
	if issued.HttpOnly {
		t.Error("csrf cookie must be readable from JavaScript")
	}
	if len(issued.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(issued.Value))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing"})
	w = httptest.NewRecorder()
	csrfHandler(&called).ServeHTTP(w, req)
	if len(w.Result().Cookies()) != 0 {
		t.Error("existing cookie should not be replaced")
	}
}

func TestCSRFMiddleware_StateChangingMethods(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
	}{
		{name: "matching tokens", cookie: "tok", header: "tok", wantStatus: http.StatusOK},
		{name: "missing cookie", header: "tok", wantStatus: http.StatusForbidden},
		{name: "missing header", cookie: "tok", wantStatus: http.StatusForbidden},
		{name: "mismatch", cookie: "tok", header: "other", wantStatus: http.StatusForbidden},
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		for _, tt := range tests {
			t.Run(method+"/"+tt.name, func(t *testing.T) {
				req := httptest.NewRequest(method, "/api/cart/items", nil)
				if tt.cookie != "" {
					req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
				}
				if tt.header != "" {
					req.Header.Set(CSRFHeaderName, tt.header)
				}

				called := false
				w := httptest.NewRecorder()
				csrfHandler(&called).ServeHTTP(w, req)

				if w.Code != tt.wantStatus {
					t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
				}
				if called != (tt.wantStatus == http.StatusOK) {
					t.Errorf("next called = %v", called)
				}
				if tt.wantStatus == http.StatusForbidden {
					if body := decodeErrorBody(t, w); body.Code != "CSRF_TOKEN_INVALID" {
						t.Errorf("code = %q, want CSRF_TOKEN_INVALID", body.Code)
					}
				}
			})
		}
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true})

	t.Run("issues new token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("cookies = %d, want 1", len(cookies))
		}
		if cookies[0].Value != body["token"] {
			t.Errorf("cookie %q and body %q differ", cookies[0].Value, body["token"])
		}
		if !cookies[0].Secure {
			t.Error("cookie should be Secure")
		}
	})

	t.Run("returns existing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "keep-me"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["token"] != "keep-me" {
			t.Errorf("token = %q, want %q", body["token"], "keep-me")
		}
		if len(w.Result().Cookies()) != 0 {
			t.Error("no cookie should be set when one exists")
		}
	})
}
