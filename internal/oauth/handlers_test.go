package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"crm-platform/internal/config"
	"crm-platform/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// fakeIdP is a minimal identity provider: token and revoke endpoints with
// call counters, so tests can assert which network calls happened.
type fakeIdP struct {
	srv *httptest.Server

	exchanges int32
	refreshes int32
	revokes   int32

	accessToken  string
	refreshToken string
}

func newFakeIdP(t *testing.T, accessToken string) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{accessToken: accessToken, refreshToken: "refresh-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			atomic.AddInt32(&idp.exchanges, 1)
		case "refresh_token":
			atomic.AddInt32(&idp.refreshes, 1)
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  idp.accessToken,
			"refresh_token": idp.refreshToken,
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/oauth/revoke", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&idp.revokes, 1)
		w.WriteHeader(http.StatusOK)
	})

	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func testHandlers(t *testing.T, idp *fakeIdP) (Handlers, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	mgr, err := session.NewManager(config.SessionConfig{Secret: "handlers-test-secret"}, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	provider, err := NewProvider(config.OAuthConfig{
		IssuerURL:    idp.srv.URL,
		ClientID:     "crm-web",
		ClientSecret: "s3cret",
		RedirectURI:  "https://crm.example.com/auth/callback",
		Scopes:       []string{"openid", "email"},
		UsePKCE:      true,
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	return Handlers{
		Provider: provider,
		States:   NewRedisStateStore(rdb),
		Sessions: mgr,
		AuthMode: config.AuthModeSSO,
		StateTTL: 5 * time.Minute,
	}, mr
}

func authRouter(h Handlers) http.Handler {
	r := newTestRouter()
	r.GET("/auth/login", h.Login)
	r.GET("/auth/callback", h.Callback)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	r.GET("/v1/auth/me", session.RequireSession(h.Sessions), h.Me)
	return r
}

// seedState plants a live server-side state and returns the encoded state
// parameter the IdP would echo back.
func seedState(t *testing.T, h Handlers, redirectTo string) string {
	t.Helper()
	st := State{Nonce: NewNonce(), CodeVerifier: h.Provider.NewVerifier(), RedirectTo: redirectTo}
	if err := h.States.Save(context.Background(), st, h.StateTTL); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return EncodeStateParam(st)
}

func sessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, ck := range res.Cookies() {
		if ck.Name == session.CookieName {
			return ck
		}
	}
	return nil
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	h, mr := testHandlers(t, newFakeIdP(t, "tok"))
	r := authRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login?redirect=/leads", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "/oauth/authorize") || !strings.Contains(loc, "state=") {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one stored state, got %v", mr.Keys())
	}
}

func TestCallback_Success(t *testing.T) {
	idToken := idpToken(t, "user-1", "rep@acme.io", "550e8400-e29b-41d4-a716-446655440000", "sales_rep")
	idp := newFakeIdP(t, idToken)
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	state := seedState(t, h, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != DefaultDestination {
		t.Fatalf("expected %s, got %s", DefaultDestination, loc)
	}
	if n := atomic.LoadInt32(&idp.exchanges); n != 1 {
		t.Fatalf("expected 1 exchange, got %d", n)
	}

	ck := sessionCookie(t, w.Result())
	if ck == nil {
		t.Fatalf("expected session cookie")
	}
	claims, err := h.Sessions.Verify(ck.Value, time.Now())
	if err != nil {
		t.Fatalf("verify minted session: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "sales_rep" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.AccessToken != idToken || claims.RefreshToken != "refresh-1" {
		t.Fatalf("upstream tokens not carried in session")
	}
	if claims.RequiresOnboarding {
		t.Fatalf("tenant member must not require onboarding")
	}
}

func TestCallback_HonorsRelativeRedirect(t *testing.T) {
	idp := newFakeIdP(t, idpToken(t, "u", "u@x.com", "550e8400-e29b-41d4-a716-446655440000", "viewer"))
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	state := seedState(t, h, "/leads/42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))

	if loc := w.Header().Get("Location"); loc != "/leads/42" {
		t.Fatalf("expected /leads/42, got %s", loc)
	}
}

func TestCallback_IgnoresAbsoluteRedirect(t *testing.T) {
	idp := newFakeIdP(t, idpToken(t, "u", "u@x.com", "550e8400-e29b-41d4-a716-446655440000", "viewer"))
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	state := seedState(t, h, "https://evil.example.com/phish")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))

	if loc := w.Header().Get("Location"); loc != DefaultDestination {
		t.Fatalf("expected %s, got %s", DefaultDestination, loc)
	}
}

func TestCallback_NoTenantForcesOnboarding(t *testing.T) {
	idp := newFakeIdP(t, idpToken(t, "new-user", "new@x.com", "", ""))
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	state := seedState(t, h, "/leads")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))

	if loc := w.Header().Get("Location"); loc != OnboardingDestination {
		t.Fatalf("expected %s, got %s", OnboardingDestination, loc)
	}
	claims, err := h.Sessions.Verify(sessionCookie(t, w.Result()).Value, time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !claims.RequiresOnboarding || claims.OnboardingStatus != session.OnboardingPending {
		t.Fatalf("expected pending onboarding, got %+v", claims)
	}
	if claims.OnboardingStep != session.StepCreateBusiness {
		t.Fatalf("expected create_business step, got %q", claims.OnboardingStep)
	}
}

func TestCallback_ProviderErrorSkipsExchange(t *testing.T) {
	idp := newFakeIdP(t, "unused")
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != loginPath+"?error="+ErrTagAccessDenied {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if n := atomic.LoadInt32(&idp.exchanges); n != 0 {
		t.Fatalf("exchange must not run on provider error, got %d calls", n)
	}
	if sessionCookie(t, w.Result()) != nil {
		t.Fatalf("no session may be minted on provider error")
	}
}

func TestCallback_UnknownStateSkipsExchange(t *testing.T) {
	idp := newFakeIdP(t, "unused")
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	// Well-formed param, but the nonce was never saved locally.
	forged := EncodeStateParam(State{Nonce: NewNonce()})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+forged, nil))

	if loc := w.Header().Get("Location"); !strings.Contains(loc, ErrTagInvalidState) {
		t.Fatalf("expected invalid_state redirect, got %s", loc)
	}
	if n := atomic.LoadInt32(&idp.exchanges); n != 0 {
		t.Fatalf("exchange must not run without a state match, got %d calls", n)
	}
}

func TestCallback_StateReplayRejected(t *testing.T) {
	idp := newFakeIdP(t, idpToken(t, "u", "u@x.com", "550e8400-e29b-41d4-a716-446655440000", "viewer"))
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	state := seedState(t, h, "")
	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))
	if first.Header().Get("Location") != DefaultDestination {
		t.Fatalf("first callback should succeed")
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))
	if loc := second.Header().Get("Location"); !strings.Contains(loc, ErrTagInvalidState) {
		t.Fatalf("replayed state must be rejected, got %s", loc)
	}
	if n := atomic.LoadInt32(&idp.exchanges); n != 1 {
		t.Fatalf("replay must not reach the token endpoint, got %d exchanges", n)
	}
}

func TestCallback_MalformedState(t *testing.T) {
	idp := newFakeIdP(t, "unused")
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=%25%25not-base64", nil))

	if loc := w.Header().Get("Location"); !strings.Contains(loc, ErrTagInvalidState) {
		t.Fatalf("expected invalid_state redirect, got %s", loc)
	}
}

func TestRefresh_RotatesTokens(t *testing.T) {
	idp := newFakeIdP(t, "new-access")
	idp.refreshToken = "refresh-2"
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	signed, err := h.Sessions.Sign(time.Now(), session.Claims{
		UserID: "user-1", Email: "u@x.com", Role: "viewer",
		AccessToken: "old-access", RefreshToken: "refresh-1",
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: signed})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if n := atomic.LoadInt32(&idp.refreshes); n != 1 {
		t.Fatalf("expected 1 refresh call, got %d", n)
	}

	var body struct {
		ExpiresAt int64 `json:"expires_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.ExpiresAt == 0 {
		t.Fatalf("expected expires_at in response, got %s", w.Body.String())
	}

	claims, err := h.Sessions.Verify(sessionCookie(t, w.Result()).Value, time.Now())
	if err != nil {
		t.Fatalf("verify rotated session: %v", err)
	}
	if claims.AccessToken != "new-access" || claims.RefreshToken != "refresh-2" {
		t.Fatalf("tokens not rotated: %+v", claims)
	}
}

func TestRefresh_KeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	idp := newFakeIdP(t, "new-access")
	idp.refreshToken = ""
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	signed, _ := h.Sessions.Sign(time.Now(), session.Claims{
		UserID: "user-1", AccessToken: "old-access", RefreshToken: "refresh-1",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: signed})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	claims, err := h.Sessions.Verify(sessionCookie(t, w.Result()).Value, time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.RefreshToken != "refresh-1" {
		t.Fatalf("old refresh token must survive an omitted rotation, got %q", claims.RefreshToken)
	}
}

func TestRefresh_NoCookie(t *testing.T) {
	h, _ := testHandlers(t, newFakeIdP(t, "tok"))
	r := authRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRefresh_TamperedCookie(t *testing.T) {
	h, _ := testHandlers(t, newFakeIdP(t, "tok"))
	r := authRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "tampered"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if ck := sessionCookie(t, w.Result()); ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("tampered session must be cleared")
	}
}

func TestLogout(t *testing.T) {
	idp := newFakeIdP(t, "tok")
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	signed, _ := h.Sessions.Sign(time.Now(), session.Claims{
		UserID: "user-1", AccessToken: "access-1",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: signed})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), loginPath) {
		t.Fatalf("expected login redirect in body, got %s", w.Body.String())
	}
	if n := atomic.LoadInt32(&idp.revokes); n != 1 {
		t.Fatalf("expected 1 revoke call, got %d", n)
	}
	if ck := sessionCookie(t, w.Result()); ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("logout must clear the session cookie")
	}
}

func TestLogout_WithoutSession(t *testing.T) {
	idp := newFakeIdP(t, "tok")
	h, _ := testHandlers(t, idp)
	r := authRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("logout is idempotent, got %d", w.Code)
	}
	if n := atomic.LoadInt32(&idp.revokes); n != 0 {
		t.Fatalf("nothing to revoke without a session, got %d calls", n)
	}
}

func TestMe(t *testing.T) {
	h, _ := testHandlers(t, newFakeIdP(t, "tok"))
	r := authRouter(h)

	signed, _ := h.Sessions.Sign(time.Now(), session.Claims{
		UserID: "user-1", Email: "u@x.com", TenantID: "550e8400-e29b-41d4-a716-446655440000", Role: "manager",
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: signed})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["user_id"] != "user-1" || body["role"] != "manager" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestResolveDestination(t *testing.T) {
	cases := []struct {
		requested  string
		onboarding bool
		want       string
	}{
		{"", false, DefaultDestination},
		{"/leads", false, "/leads"},
		{"/leads?page=2", false, "/leads?page=2"},
		{"https://evil.example.com", false, DefaultDestination},
		{"//evil.example.com", false, DefaultDestination},
		{"/\\evil.example.com", false, DefaultDestination},
		{"relative/path", false, DefaultDestination},
		{"/leads", true, OnboardingDestination},
		{"", true, OnboardingDestination},
	}
	for _, tc := range cases {
		if got := ResolveDestination(tc.requested, tc.onboarding); got != tc.want {
			t.Errorf("ResolveDestination(%q, %v) = %q, want %q", tc.requested, tc.onboarding, got, tc.want)
		}
	}
}
