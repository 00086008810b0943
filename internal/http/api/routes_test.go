package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ideaspark/ideaspark/internal/config"
	"github.com/ideaspark/ideaspark/internal/db"
	"github.com/ideaspark/ideaspark/internal/gemini"
	"github.com/ideaspark/ideaspark/internal/models"
	"github.com/ideaspark/ideaspark/internal/quota"
	"github.com/ideaspark/ideaspark/internal/ratelimit"
	"github.com/ideaspark/ideaspark/internal/security"
	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const sampleIdeasText = "Title: A\nFormat: Blog\nAngle: X\n---\nTitle: B\nFormat: Video\nAngle: Y\n---"

// stubGenerator is a Generator test double with a recorded call count.
type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type testEnv struct {
	engine    *gin.Engine
	conn      *gorm.DB
	jwtCfg    config.JWTConfig
	generator *stubGenerator
	settings  *internalsettings.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	settingsStore, errSettings := internalsettings.NewStore(conn)
	if errSettings != nil {
		t.Fatalf("settings store: %v", errSettings)
	}

	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	generator := &stubGenerator{text: sampleIdeasText}
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig {
		return ratelimit.ConfigFromStore(settingsStore)
	}, nil, nil)

	engine := gin.New()
	RegisterRoutes(engine, conn, jwtCfg, quota.NewTracker(conn), generator, limiter, settingsStore)

	return &testEnv{engine: engine, conn: conn, jwtCfg: jwtCfg, generator: generator, settings: settingsStore}
}

func (e *testEnv) do(t *testing.T, method, path, ip, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":55000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return decoded
}

func TestSignUp_SucceedsOnceThenConflicts(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"email": "new@example.com", "password": "hunter2", "fullName": "New User"}

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "203.0.113.1", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decoded := decodeBody(t, rec)
	if decoded["token"] == "" || decoded["token"] == nil {
		t.Fatalf("expected token in response")
	}
	user, ok := decoded["user"].(map[string]any)
	if !ok || user["email"] != "new@example.com" || user["fullName"] != "New User" {
		t.Fatalf("unexpected user payload: %v", decoded["user"])
	}

	rec = env.do(t, http.MethodPost, "/api/auth/signup", "203.0.113.1", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on duplicate, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "User already exists" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestSignUp_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/auth/signup", "203.0.113.1", "", map[string]string{"email": "x@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSignIn_MatchesOnlyCorrectPassword(t *testing.T) {
	env := newTestEnv(t)
	signup := map[string]string{"email": "who@example.com", "password": "correct-horse"}
	if rec := env.do(t, http.MethodPost, "/api/auth/signup", "203.0.113.1", "", signup); rec.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/signin", "203.0.113.1", "", signup)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 signin, got %d", rec.Code)
	}

	for _, body := range []map[string]string{
		{"email": "who@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "correct-horse"},
	} {
		rec = env.do(t, http.MethodPost, "/api/auth/signin", "203.0.113.1", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if decodeBody(t, rec)["error"] != "Invalid credentials" {
			t.Fatalf("unexpected error body: %s", rec.Body.String())
		}
	}
}

func TestSignOut_AlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/auth/signout", "203.0.113.1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGoogleStub_NotImplemented(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/auth/google", "203.0.113.1", "", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestCurrentUser_AuthStates(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/auth/signup", "203.0.113.1", "", map[string]string{
		"email": "me@example.com", "password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", rec.Code)
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatalf("expected signup token")
	}

	if rec = env.do(t, http.MethodGet, "/api/user", "203.0.113.1", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec = env.do(t, http.MethodGet, "/api/user", "203.0.113.1", "garbage-token", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with bad token, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/user", "203.0.113.1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if decodeBody(t, rec)["email"] != "me@example.com" {
		t.Fatalf("unexpected profile: %s", rec.Body.String())
	}

	if errDelete := env.conn.Delete(&models.User{}, "email = ?", "me@example.com").Error; errDelete != nil {
		t.Fatalf("delete user: %v", errDelete)
	}
	if rec = env.do(t, http.MethodGet, "/api/user", "203.0.113.1", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted user, got %d", rec.Code)
	}
}

func TestCurrentUser_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	token, err := security.IssueUserToken(env.jwtCfg.Secret, -time.Minute, 1, "ghost@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec := env.do(t, http.MethodGet, "/api/user", "203.0.113.1", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for expired token, got %d", rec.Code)
	}
}

func TestGenerate_MissingKeywordFailsBeforeProvider(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []map[string]string{{}, {"mainKeyword": "   "}} {
		rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.2", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	}
	if env.generator.calls != 0 {
		t.Fatalf("provider must not be called on validation failure")
	}
	count := usageCount(t, env.conn, "203.0.113.2")
	if count != 0 {
		t.Fatalf("expected no usage recorded, got %d", count)
	}
}

func TestGenerate_AnonymousDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"mainKeyword": "sourdough"}

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.3", "", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected generation %d allowed, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
		decoded := decodeBody(t, rec)
		if decoded["content"] != sampleIdeasText {
			t.Fatalf("unexpected content: %v", decoded["content"])
		}
		ideas, ok := decoded["ideas"].([]any)
		if !ok || len(ideas) != 2 {
			t.Fatalf("expected 2 parsed ideas, got %v", decoded["ideas"])
		}
	}

	rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.3", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third call, got %d", rec.Code)
	}
	decoded := decodeBody(t, rec)
	if decoded["requiresAuth"] != true {
		t.Fatalf("expected requiresAuth flag, got %s", rec.Body.String())
	}
	if env.generator.calls != 2 {
		t.Fatalf("provider must not be called when over limit, calls=%d", env.generator.calls)
	}

	// Another IP still has its own allowance.
	rec = env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.4", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected separate ip allowed, got %d", rec.Code)
	}
}

func TestGenerate_AuthenticatedBypassesLimit(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"mainKeyword": "sourdough"}

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "203.0.113.5", "", map[string]string{
		"email": "member@example.com", "password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", rec.Code)
	}
	token, _ := decodeBody(t, rec)["token"].(string)

	// Exhaust the anonymous allowance from the same IP first.
	for i := 0; i < 2; i++ {
		if rec = env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.5", "", body); rec.Code != http.StatusOK {
			t.Fatalf("anonymous generation %d failed: %d", i+1, rec.Code)
		}
	}
	if rec = env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.5", "", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected anonymous limit, got %d", rec.Code)
	}

	for i := 0; i < 3; i++ {
		rec = env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.5", token, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected authenticated generation %d allowed, got %d", i+1, rec.Code)
		}
	}
	if count := usageCount(t, env.conn, "203.0.113.5"); count != 2 {
		t.Fatalf("authenticated calls must not touch the counter, got %d", count)
	}
}

func TestGenerate_DailyLimitFollowsSettings(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"mainKeyword": "sourdough"}

	errUpdate := env.conn.Model(&models.Setting{}).
		Where("key = ?", internalsettings.DailyFreeLimitKey).
		Update("value", datatypes.JSON([]byte("3"))).Error
	if errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}
	if errReload := env.settings.Reload(context.Background()); errReload != nil {
		t.Fatalf("reload settings: %v", errReload)
	}

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.8", "", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected generation %d allowed under raised limit, got %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.8", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected fourth call rejected, got %d", rec.Code)
	}
}

func TestGenerate_InvalidTokenDegradesToAnonymous(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"mainKeyword": "sourdough"}

	rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.6", "bogus-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected bad token to degrade, got %d: %s", rec.Code, rec.Body.String())
	}
	if count := usageCount(t, env.conn, "203.0.113.6"); count != 1 {
		t.Fatalf("expected degraded call to consume quota, got %d", count)
	}
}

func TestGenerate_ProviderFailureDoesNotConsumeQuota(t *testing.T) {
	env := newTestEnv(t)
	env.generator.err = context.DeadlineExceeded
	body := map[string]string{"mainKeyword": "sourdough"}

	rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.7", "", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on provider failure, got %d", rec.Code)
	}
	if count := usageCount(t, env.conn, "203.0.113.7"); count != 0 {
		t.Fatalf("failed generation must not consume quota, got %d", count)
	}

	env.generator.err = nil
	for i := 0; i < 2; i++ {
		if rec = env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.7", "", body); rec.Code != http.StatusOK {
			t.Fatalf("expected full allowance after failure, got %d", rec.Code)
		}
	}
}

func TestGenerate_MissingProviderKeyReportedDistinctly(t *testing.T) {
	env := newTestEnv(t)
	env.generator.err = gemini.ErrNotConfigured
	body := map[string]string{"mainKeyword": "sourdough"}

	rec := env.do(t, http.MethodPost, "/api/generate-content", "203.0.113.10", "", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unconfigured provider, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "Gemini API key not configured" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
	if count := usageCount(t, env.conn, "203.0.113.10"); count != 0 {
		t.Fatalf("config failure must not consume quota, got %d", count)
	}
}

func usageCount(t *testing.T, conn *gorm.DB, ip string) int {
	t.Helper()
	count, err := quota.NewTracker(conn).Count(context.Background(), ip, quota.DateUTC(time.Now()))
	if err != nil {
		t.Fatalf("usage count: %v", err)
	}
	return count
}
