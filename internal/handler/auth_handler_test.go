package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/techshop/internal/auth"
	"github.com/hitoshi/techshop/internal/middleware"
	"github.com/hitoshi/techshop/internal/model"
)

var testAuthConfig = AuthHandlerConfig{
	BaseURL:       "http://localhost:3000",
	CookieSecure:  true,
	SessionMaxAge: 3600,
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestAuthHandler_Register_SetsSessionCookie(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, *model.User, error) {
			got = in
			return &model.Session{ID: "sess-1"}, &model.User{ID: "u-1", Name: in.Name, Email: in.Email, PasswordHash: "secret-hash"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	body := `{"name":"Ali","email":"ali@example.com","phone":"+998","password":"hunter22"}`
	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Email != "ali@example.com" || got.Password != "hunter22" || got.Phone != "+998" {
		t.Errorf("input = %+v", got)
	}

	cookie := sessionCookie(t, w)
	if cookie.Value != "sess-1" || !cookie.HttpOnly || !cookie.Secure || cookie.MaxAge != 3600 {
		t.Errorf("cookie = %+v", cookie)
	}
	if strings.Contains(w.Body.String(), "secret-hash") {
		t.Error("password hash must not be serialized")
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "duplicate email", body: `{"email":"a@example.com"}`, err: model.NewDuplicateEmailError("a@example.com"), wantStatus: http.StatusConflict, wantCode: model.ErrCodeDuplicateEmail},
		{name: "validation", body: `{"email":"bad"}`, err: model.NewValidationError("email"), wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeValidation},
		{name: "internal", body: `{}`, err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.Session, *model.User, error) {
					return nil, nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc, testAuthConfig).Register(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if len(w.Result().Cookies()) != 0 {
				t.Error("no cookie should be set on failure")
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			if email == "ali@example.com" && password == "hunter22" {
				return &model.Session{ID: "sess-2"}, &model.User{ID: "u-1", Email: email}, nil
			}
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ali@example.com","password":"hunter22"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if c := sessionCookie(t, w); c.Value != "sess-2" {
		t.Errorf("cookie value = %q", c.Value)
	}

	w = httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"ali@example.com","password":"wrong"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q", body.Code)
	}
}

func TestAuthHandler_Logout_ClearsCookieEvenOnError(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return errors.New("db down")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	NewAuthHandler(svc, testAuthConfig).Logout(w, req)

	if loggedOut != "sess-1" {
		t.Errorf("logout session = %q", loggedOut)
	}
	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != testAuthConfig.BaseURL {
		t.Errorf("Location = %q", loc)
	}
	if c := sessionCookie(t, w); c.MaxAge != -1 || c.Value != "" {
		t.Errorf("cookie = %+v, want cleared", c)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "sess-1" {
				return &model.User{ID: "u-1", Name: "Ali", Email: "ali@example.com", IsAdmin: true}, nil
			}
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	t.Run("no cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("expired session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "gone"})
		w := httptest.NewRecorder()
		h.Me(w, req)
		if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeLoginRequired {
			t.Errorf("code = %q", body.Code)
		}
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
		w := httptest.NewRecorder()
		h.Me(w, req)

		var user map[string]any
		if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if user["email"] != "ali@example.com" || user["admin"] != true {
			t.Errorf("user = %v", user)
		}
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	var gotUser string
	var gotUpd auth.ProfileUpdate
	svc := &mockAuthService{
		updateProfileFn: func(ctx context.Context, userID string, upd auth.ProfileUpdate) (*model.User, error) {
			gotUser, gotUpd = userID, upd
			return &model.User{ID: userID, Name: *upd.Name}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"name":"Vali"}`)), "u-1")
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUser != "u-1" {
		t.Errorf("userID = %q", gotUser)
	}
	if gotUpd.Name == nil || *gotUpd.Name != "Vali" {
		t.Errorf("name = %v", gotUpd.Name)
	}
	if gotUpd.Email != nil || gotUpd.Phone != nil || gotUpd.Address != nil {
		t.Error("omitted fields should stay nil")
	}

	w = httptest.NewRecorder()
	h.UpdateProfile(w, httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{}`)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
