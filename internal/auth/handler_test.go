package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func handlerFixture(t *testing.T) (*Handler, *Service) {
	t.Helper()
	store := newFakeStore()
	seedAccount(t, store)
	service := newTestService(store, newFakeBlacklist())
	return NewHandler(service), service
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if body.Timestamp == "" {
		t.Fatalf("envelope missing timestamp")
	}
	return body
}

func TestHandlerLoginSuccess(t *testing.T) {
	handler, _ := handlerFixture(t)

	w := httptest.NewRecorder()
	handler.Login(w, postJSON("/auth/login", `{"email":"alice@lab.test","password":"`+testPassword+`"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeEnvelope(t, w)
	if !body.Success || body.Message != "Login successful" {
		t.Fatalf("unexpected envelope: %+v", body)
	}

	data, ok := body.Data.(map[string]any)
	if !ok {
		t.Fatalf("login data missing")
	}
	if data["tokenType"] != "Bearer" {
		t.Fatalf("tokenType = %v, want Bearer", data["tokenType"])
	}
	if data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatalf("tokens missing from response")
	}
}

func TestHandlerLoginBadCredentials(t *testing.T) {
	handler, _ := handlerFixture(t)

	w := httptest.NewRecorder()
	handler.Login(w, postJSON("/auth/login", `{"email":"alice@lab.test","password":"wrong"}`))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if body := decodeEnvelope(t, w); body.Success {
		t.Fatalf("failure envelope reports success")
	}
}

func TestHandlerLoginLockedSetsRetryAfter(t *testing.T) {
	handler, _ := handlerFixture(t)

	var w *httptest.ResponseRecorder
	for i := 0; i < MaxLoginAttempts+1; i++ {
		w = httptest.NewRecorder()
		handler.Login(w, postJSON("/auth/login", `{"email":"alice@lab.test","password":"wrong"}`))
	}

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("locked response missing Retry-After")
	}
}

func TestHandlerRejectsMalformedJSON(t *testing.T) {
	handler, _ := handlerFixture(t)

	for _, body := range []string{`{not json`, `{"email":"a@b.c","unknown":1}`} {
		w := httptest.NewRecorder()
		handler.Login(w, postJSON("/auth/login", body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestHandlerLoginRequiresFields(t *testing.T) {
	handler, _ := handlerFixture(t)

	w := httptest.NewRecorder()
	handler.Login(w, postJSON("/auth/login", `{"email":"alice@lab.test"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandlerRegisterConflict(t *testing.T) {
	handler, _ := handlerFixture(t)

	payload := `{"fullName":"Bob Ray","username":"bob","email":"alice@lab.test","password":"` +
		testPassword + `","confirmPassword":"` + testPassword + `","role":"STAFF","organizationId":"org-1"}`

	w := httptest.NewRecorder()
	handler.Register(w, postJSON("/auth/register", payload))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if body := decodeEnvelope(t, w); body.Message != ErrEmailTaken.Error() {
		t.Fatalf("message = %q, want %q", body.Message, ErrEmailTaken.Error())
	}
}

func TestHandlerRegisterUnknownOrganization(t *testing.T) {
	handler, _ := handlerFixture(t)

	payload := `{"fullName":"Bob Ray","username":"bob","email":"bob@lab.test","password":"` +
		testPassword + `","confirmPassword":"` + testPassword + `","role":"STAFF","organizationId":"org-9"}`

	w := httptest.NewRecorder()
	handler.Register(w, postJSON("/auth/register", payload))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandlerLogoutAlwaysSucceeds(t *testing.T) {
	handler, _ := handlerFixture(t)

	for _, body := range []string{`{"refreshToken":"not-a-token"}`, `{}`, ``} {
		w := httptest.NewRecorder()
		handler.Logout(w, postJSON("/auth/logout", body))
		if w.Code != http.StatusOK {
			t.Fatalf("body %q: expected 200, got %d", body, w.Code)
		}
	}
}

func TestHandlerVerify(t *testing.T) {
	handler, service := handlerFixture(t)
	token := issueTestAccess(t, service)

	principal, err := service.PrincipalByID(context.Background(), "user-1")
	if err != nil || principal == nil {
		t.Fatalf("load principal: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	ctx := context.WithValue(r.Context(), principalContextKey, principal)
	ctx = context.WithValue(ctx, tokenContextKey, token)
	w := httptest.NewRecorder()
	handler.Verify(w, r.WithContext(ctx))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := decodeEnvelope(t, w)
	data, ok := body.Data.(map[string]any)
	if !ok {
		t.Fatalf("verify data missing")
	}
	if data["valid"] != true {
		t.Fatalf("valid = %v, want true", data["valid"])
	}
	expiresIn, ok := data["expiresIn"].(float64)
	if !ok || expiresIn <= 0 || expiresIn > 900 {
		t.Fatalf("expiresIn = %v, want within (0, 900]", data["expiresIn"])
	}
}
