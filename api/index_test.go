package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spaces-backend/pkg/config"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox 模拟 Piston：固定的运行时列表，执行时回显 print 的内容
func fakeSandbox(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/runtimes":
			_, _ = w.Write([]byte(`[
				{"language":"python","version":"3.10.0","aliases":["py","python3"]},
				{"language":"rust","version":"1.68.2","aliases":["rs"]},
				{"language":"javascript","version":"18.15.0","aliases":["js","node"]}
			]`))
		case "/execute":
			var req struct {
				Language string `json:"language"`
				Version  string `json:"version"`
				Files    []struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			stdout := ""
			if len(req.Files) > 0 {
				src := req.Files[0].Content
				if strings.HasPrefix(src, "print('") && strings.HasSuffix(src, "')") {
					stdout = strings.TrimSuffix(strings.TrimPrefix(src, "print('"), "')") + "\n"
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"language": req.Language,
				"version":  req.Version,
				"run":      map[string]interface{}{"stdout": stdout, "stderr": "", "output": stdout, "code": 0, "signal": nil},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeTracker struct {
	beats atomic.Int32
}

func (f *fakeTracker) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/current/statusbar/today":
			_, _ = w.Write([]byte(`{"data":{}}`))
		case "/users/current/heartbeats":
			f.beats.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"responses":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	t       *testing.T
	app     *server.App
	db      *database.LocalDatabase
	router  http.Handler
	tracker *fakeTracker
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, configure func(*config.Config)) *testEnv {
	tracker := &fakeTracker{}
	cfg := &config.Config{
		Environment:     "test",
		Port:            "0",
		UseLocalDB:      true,
		DBPoolSize:      1,
		DBLivenessCache: time.Second,
		SecretKey:       "e2e-secret",
		SessionMaxAge:   time.Hour,
		PistonURL:       fakeSandbox(t).URL,
		HackatimeURL:    tracker.server(t).URL,
		AllowedOrigins:  []string{"*"},
	}
	if configure != nil {
		configure(cfg)
	}
	db := database.NewLocalDatabase()
	app := server.NewAppWithDatabase(cfg, db)
	t.Cleanup(func() { _ = app.Close() })
	return &testEnv{t: t, app: app, db: db, router: NewRouter(app), tracker: tracker}
}

func (e *testEnv) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (e *testEnv) signup(username string) (token, userID string) {
	rec, body := e.do(http.MethodPost, "/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct-horse",
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	user := body["user"].(map[string]interface{})
	return body["token"].(string), user["id"].(string)
}

func TestCreatePythonSpaceAndRun(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("alice")

	rec, body := env.do(http.MethodPost, "/api/sites/code", token, map[string]string{"name": "Hello", "language": "python"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := body["id"].(string)
	assert.True(t, strings.HasSuffix(body["slug"].(string), ".py"))

	rec, body = env.do(http.MethodGet, "/code/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lang := body["language"].(map[string]interface{})
	assert.Equal(t, "python", lang["name"])
	assert.Equal(t, "3.10.0", body["version"])

	rec, body = env.do(http.MethodPost, "/api/run/"+id, token, map[string]string{"code": "print('hi')"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "hi\n", body["run_output"])
}

func TestCodeSpaceSlugCarriesExtension(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("bob")

	rec, body := env.do(http.MethodPost, "/api/sites/code", token, map[string]string{"name": "Ciao", "language": "rust"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasSuffix(body["slug"].(string), ".rs"), body["slug"])
}

func TestSpaceQuota(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("carol")
	require.NoError(t, env.db.PutSetting(context.Background(), models.SettingMaxSitesPerUser, "2"))

	for _, name := range []string{"One", "Two"} {
		rec, _ := env.do(http.MethodPost, "/api/sites", token, map[string]string{"name": name})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec, body := env.do(http.MethodPost, "/api/sites", token, map[string]string{"name": "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, body["error"], "maximum limit of 2")
}

func TestSignupRateLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 75; i++ {
		rec, _ := env.do(http.MethodPost, "/signup", "", `{}`)
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code, "request %d", i+1)
	}

	rec, body := env.do(http.MethodPost, "/signup", "", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, strings.HasPrefix(body["error"].(string), "Rate limit exceeded"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func signupWithForwardedFor(env *testEnv, xff string) int {
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", xff)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec.Code
}

func TestSignupRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t)

	denied := 0
	for i := 0; i < 100; i++ {
		if signupWithForwardedFor(env, fmt.Sprintf("10.0.%d.%d", i/250, i%250+1)) == http.StatusTooManyRequests {
			denied++
		}
	}
	// 没有可信代理时按连接地址计数
	assert.Equal(t, 25, denied)
}

func TestSignupRateLimitBehindTrustedProxy(t *testing.T) {
	env := newTestEnvWith(t, func(cfg *config.Config) {
		// httptest 请求的对端地址是 192.0.2.1
		cfg.TrustedProxies = []string{"192.0.2.0/24"}
	})

	// 客户端伪造的左侧地址被忽略，代理追加的真实地址才是计数键
	denied := 0
	for i := 0; i < 80; i++ {
		if signupWithForwardedFor(env, fmt.Sprintf("10.9.0.%d, 203.0.113.7", i+1)) == http.StatusTooManyRequests {
			denied++
		}
	}
	assert.Equal(t, 5, denied)

	// 另一个真实客户端有自己的窗口
	assert.NotEqual(t, http.StatusTooManyRequests, signupWithForwardedFor(env, "203.0.113.8"))
}

func TestRunLanguageMustMatchSpace(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("carol")

	_, body := env.do(http.MethodPost, "/api/sites/code", token, map[string]string{"name": "Calc", "language": "python"})
	id := body["id"].(string)

	rec, body := env.do(http.MethodPost, "/api/run/"+id, token, map[string]string{"code": "print('x')", "language": "rust"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "does not match")

	// 别名解析到空间语言时照常运行
	rec, body = env.do(http.MethodPost, "/api/run/"+id, token, map[string]string{"code": "print('x')", "language": "PY"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "x\n", body["run_output"])
}

func TestOversizeRunRejected(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("dave")

	_, body := env.do(http.MethodPost, "/api/sites/code", token, map[string]string{"name": "Big", "language": "python"})
	id := body["id"].(string)

	rec, body := env.do(http.MethodPost, "/api/run/"+id, token, map[string]string{"code": strings.Repeat("x", 10001)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "10,000 characters")
}

func TestHeartbeatFirstOfDay(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.signup("erin")

	rec, _ := env.do(http.MethodPost, "/hackatime/connect", token, map[string]string{"api_key": "key-123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	countBeats := func() int {
		events, err := env.db.ListActivityByUser(context.Background(), userID, 100)
		require.NoError(t, err)
		n := 0
		for _, ev := range events {
			if ev.Type == models.ActivityHackatimeBeat {
				n++
			}
		}
		return n
	}

	rec, body := env.do(http.MethodPost, "/hackatime/heartbeat", token, map[string]string{"entity": "main.py"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["first_of_day"])
	assert.Equal(t, 1, countBeats())

	rec, body = env.do(http.MethodPost, "/hackatime/heartbeat", token, `[{"entity":"a.py"},{"entity":"b.py"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["first_of_day"])
	assert.EqualValues(t, 2, body["forwarded"])
	assert.Equal(t, 1, countBeats())
	assert.EqualValues(t, 2, env.tracker.beats.Load())
}

func TestPublishedSpaceVisibility(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("frank")

	_, body := env.do(http.MethodPost, "/api/sites", token, map[string]string{"name": "Landing"})
	id, slug := body["id"].(string), body["slug"].(string)

	rec, _ := env.do(http.MethodPut, "/api/sites/"+id, token, map[string]interface{}{"is_public": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 私有空间对匿名访问者表现为不存在
	rec, _ = env.do(http.MethodGet, "/s/"+slug, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(http.MethodPut, "/api/sites/"+id, token, map[string]interface{}{
		"html":      "<h1>hello</h1>",
		"is_public": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = env.do(http.MethodGet, "/s/"+slug, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1>hello</h1>")
}

func TestAnonymousCannotCreate(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(http.MethodPost, "/api/sites", "", map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestHealthAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", body["database"])
	assert.Equal(t, "healthy", body["status"])

	rec, body = env.do(http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func (e *testEnv) admin() (token, userID string) {
	user := &models.User{
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: "unused",
		IsActive:     true,
		IsAdmin:      true,
		IsStaff:      true,
	}
	require.NoError(e.t, e.db.CreateUser(context.Background(), user))
	token, _, err := e.app.Sessions.Issue(user, nil)
	require.NoError(e.t, err)
	return token, user.ID
}

func TestAdminImpersonationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	adminToken, adminID := env.admin()
	_, userID := env.signup("gina")

	rec, body := env.do(http.MethodPost, "/api/admin/impersonate/"+userID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["impersonating"])
	asUser := body["token"].(string)

	rec, body = env.do(http.MethodGet, "/api/me", asUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gina", body["user"].(map[string]interface{})["username"])
	assert.Equal(t, adminID, body["impersonator_id"])

	// 模拟期间的写操作记录管理员 id
	rec, _ = env.do(http.MethodPost, "/api/sites", asUser, map[string]string{"name": "Borrowed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events, err := env.db.ListActivityByUser(context.Background(), userID, 10)
	require.NoError(t, err)
	var created *models.ActivityEvent
	for i := range events {
		if events[i].Type == models.ActivitySiteCreated {
			created = &events[i]
		}
	}
	require.NotNil(t, created)
	require.NotNil(t, created.ActorAdminID)
	assert.Equal(t, adminID, *created.ActorAdminID)

	// 模拟中的会话不是管理员
	rec, _ = env.do(http.MethodGet, "/api/admin/settings", asUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = env.do(http.MethodPost, "/api/admin/impersonate/stop", asUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["impersonating"])
	assert.Equal(t, "root", body["user"].(map[string]interface{})["username"])
}

func TestMaintenanceModeBlocksUsersNotAdmins(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.admin()
	userToken, _ := env.signup("hank")

	rec, _ := env.do(http.MethodPut, "/api/admin/settings", adminToken, map[string]interface{}{
		"maintenance_mode":    true,
		"maintenance_message": "Back soon",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := env.do(http.MethodGet, "/api/sites", userToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Back soon", body["error"])
	assert.Equal(t, "300", rec.Header().Get("Retry-After"))

	rec, _ = env.do(http.MethodGet, "/api/sites", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPagesLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("iris")
	otherToken, _ := env.signup("jack")

	_, body := env.do(http.MethodPost, "/api/sites", token, map[string]string{"name": "Docs"})
	id, slug := body["id"].(string), body["slug"].(string)

	rec, _ := env.do(http.MethodPost, "/api/site/"+id+"/pages", token, map[string]string{
		"filename": "about.html",
		"content":  "<p>about</p>",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = env.do(http.MethodPost, "/api/site/"+id+"/pages", otherToken, map[string]string{
		"filename": "evil.html",
		"content":  "<p>nope</p>",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(http.MethodGet, "/s/"+slug+"/about.html", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>about</p>", rec.Body.String())

	rec, _ = env.do(http.MethodDelete, "/api/site/"+id+"/pages/about.html", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = env.do(http.MethodGet, "/s/"+slug+"/about.html", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
