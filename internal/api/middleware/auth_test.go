package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testLogger возвращает логгер, не пишущий в вывод тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestMapGroupsToRole проверяет маппинг групп IdP в роли.
func TestMapGroupsToRole(t *testing.T) {
	adminGroups := []string{"/platform-admins"}
	readonlyGroups := []string{"/viewers"}

	cases := []struct {
		name   string
		groups []string
		want   string
	}{
		{"админская группа", []string{"/platform-admins"}, RoleAdmin},
		{"readonly группа", []string{"/viewers"}, RoleReadonly},
		{"обе группы — выигрывает admin", []string{"/viewers", "/platform-admins"}, RoleAdmin},
		{"неизвестная группа", []string{"/others"}, ""},
		{"без групп", nil, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := mapGroupsToRole(c.groups, adminGroups, readonlyGroups); got != c.want {
				t.Errorf("mapGroupsToRole(%v) = %q, ожидалось %q", c.groups, got, c.want)
			}
		})
	}
}

// TestParseScopeString проверяет разбор scope из JWT.
func TestParseScopeString(t *testing.T) {
	scopes := parseScopeString("analysis:read analysis:write")
	if len(scopes) != 2 || scopes[0] != "analysis:read" || scopes[1] != "analysis:write" {
		t.Errorf("scopes = %v", scopes)
	}
	if parseScopeString("") != nil {
		t.Error("пустая строка должна давать nil")
	}
}

// TestAuthClaimsHelpers проверяет методы проверки ролей и scopes.
func TestAuthClaimsHelpers(t *testing.T) {
	claims := &AuthClaims{
		EffectiveRole: RoleReadonly,
		Scopes:        []string{"analysis:read"},
	}

	if !claims.HasRole(RoleReadonly) || claims.HasRole(RoleAdmin) {
		t.Error("HasRole работает неверно")
	}
	if !claims.HasAnyRole(RoleAdmin, RoleReadonly) {
		t.Error("HasAnyRole должен находить readonly")
	}
	if !claims.HasScope("analysis:read") || claims.HasScope("analysis:write") {
		t.Error("HasScope работает неверно")
	}
}

// authForTest создаёт JWTAuth без JWKS: до валидации подписи дело
// не доходит — тесты проверяют отказ на уровне заголовка.
func authForTest(t *testing.T) *JWTAuth {
	t.Helper()
	return &JWTAuth{
		logger: testLogger(),
	}
}

// TestMiddlewareRejectsMissingHeader проверяет 401 без Authorization.
func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	auth := authForTest(t)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен вызываться без токена")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/files", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, ожидался 401", rec.Code)
	}
}

// TestMiddlewareRejectsBadScheme проверяет 401 при не-Bearer схеме.
func TestMiddlewareRejectsBadScheme(t *testing.T) {
	auth := authForTest(t)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен вызываться")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews/files", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, ожидался 401", rec.Code)
	}
}

// TestMiddlewareWithExclusions проверяет пропуск служебных путей.
func TestMiddlewareWithExclusions(t *testing.T) {
	auth := authForTest(t)
	called := false
	handler := auth.MiddlewareWithExclusions([]string{"/health", "/metrics"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))

	// Служебный путь — без токена.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if !called || rec.Code != http.StatusOK {
		t.Errorf("health должен проходить без аутентификации: called=%v status=%d", called, rec.Code)
	}

	// Бизнес-путь — 401 без токена.
	called = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/outputs", nil))
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("бизнес-путь должен требовать токен: called=%v status=%d", called, rec.Code)
	}
}

// TestNormalizePath проверяет нормализацию путей для метрик.
func TestNormalizePath(t *testing.T) {
	const id = "a1b2c3d4-e5f6-7890-abcd-ef1234567890"
	cases := []struct {
		path, want string
	}{
		{"/health/live", "/health/live"},
		{"/api/v1/reviews/files", "/api/v1/reviews/files"},
		{"/api/v1/reviews/files/latest", "/api/v1/reviews/files/latest"},
		{"/api/v1/reviews/files/" + id, "/api/v1/reviews/files/{id}"},
		{"/api/v1/reviews/codebase/" + id, "/api/v1/reviews/codebase/{id}"},
		{"/api/v1/guidelines/" + id, "/api/v1/guidelines/{id}"},
		{"/api/v1/guidelines/" + id + "/download", "/api/v1/guidelines/{id}/download"},
		{"/api/v1/graph/node-relationships", "/api/v1/graph/node-relationships"},
		{"/api/v1/graph/dump", "/api/v1/graph/dump"},
	}

	for _, c := range cases {
		if got := normalizePath(c.path); got != c.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", c.path, got, c.want)
		}
	}
}

// TestRequireRoleOrScope проверяет авторизацию по ролям (User)
// и scopes (Service Account).
func TestRequireRoleOrScope(t *testing.T) {
	guard := RequireRoleOrScope(
		[]string{RoleAdmin},
		[]string{ScopeAnalysisWrite},
	)

	cases := []struct {
		name   string
		claims *AuthClaims
		want   int
	}{
		{
			"user с нужной ролью",
			&AuthClaims{SubjectType: SubjectTypeUser, EffectiveRole: RoleAdmin},
			http.StatusOK,
		},
		{
			"user с недостаточной ролью",
			&AuthClaims{SubjectType: SubjectTypeUser, EffectiveRole: RoleReadonly},
			http.StatusForbidden,
		},
		{
			"SA с нужным scope",
			&AuthClaims{SubjectType: SubjectTypeSA, Scopes: []string{ScopeAnalysisWrite}},
			http.StatusOK,
		},
		{
			"SA без нужного scope",
			&AuthClaims{SubjectType: SubjectTypeSA, Scopes: []string{ScopeAnalysisRead}},
			http.StatusForbidden,
		},
		{
			"без claims в контексте",
			nil,
			http.StatusUnauthorized,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			called := false
			handler := guard(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/files", nil)
			if c.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, c.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != c.want {
				t.Errorf("status = %d, ожидался %d", rec.Code, c.want)
			}
			if (c.want == http.StatusOK) != called {
				t.Errorf("handler вызван = %v при статусе %d", called, rec.Code)
			}
		})
	}
}
