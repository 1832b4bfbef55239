package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/config"
	"spaces-backend/pkg/handlers"
	customMiddleware "spaces-backend/pkg/middleware"
	"spaces-backend/pkg/server"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxRequestBody 请求体上限，略大于单个空间的内容上限
const MaxRequestBody = 6 << 20

var (
	vercelOnce   sync.Once
	vercelRouter http.Handler
	vercelErr    error
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有端点集中在一个Chi路由器中管理；
// 应用在首次调用时构建，之后在同一实例内复用
func Handler(w http.ResponseWriter, r *http.Request) {
	vercelOnce.Do(func() {
		cfg := config.GetCached()
		if err := cfg.Validate(); err != nil {
			vercelErr = fmt.Errorf("configuration error: %w", err)
			return
		}
		app, err := server.NewApp(context.Background(), cfg)
		if err != nil {
			vercelErr = err
			return
		}
		vercelRouter = NewRouter(app)
	})
	if vercelErr != nil {
		utils.WriteError(w, apperr.Wrap(apperr.Internal, "Service misconfigured", vercelErr))
		return
	}
	vercelRouter.ServeHTTP(w, r)
}

// NewRouter 创建Chi路由器
func NewRouter(app *server.App) http.Handler {
	router := chi.NewRouter()
	setupMiddleware(router, app)
	setupRoutes(router, app)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, app *server.App) {
	// 基础中间件
	router.Use(middleware.RequestID)
	// 转发头只采信来自 TRUSTED_PROXIES 的请求
	router.Use(customMiddleware.RealIP(app.Config.TrustedProxies))
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(app.Metrics))
	router.Use(customMiddleware.Recovery())

	router.Use(customMiddleware.SecurityHeaders())
	router.Use(customMiddleware.CORS(app.Config))

	// 运行代码最长 15 秒，留出余量
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.Compress(5))

	router.Use(customMiddleware.DBLiveness(app.Liveness))
	router.Use(customMiddleware.RateLimit(app.Limiter))
	router.Use(customMiddleware.Session(app.Sessions, app.DB))
	router.Use(customMiddleware.Suspension())
	router.Use(customMiddleware.Maintenance(app.Settings))
	router.Use(customMiddleware.MaxBodySize(MaxRequestBody))

	// 开发环境额外中间件
	if app.Config.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有路由
func setupRoutes(router *chi.Mux, app *server.App) {
	// 创建处理器
	healthHandler := handlers.NewHealthHandler(app.Config.Environment, app.DatabaseKind(), app.Liveness)
	authHandler := handlers.NewAuthHandler(app.Accounts, app.Activity, app.Sessions)
	sitesHandler := handlers.NewSitesHandler(app.Spaces)
	runHandler := handlers.NewRunHandler(app.Spaces, app.Gateway, app.Catalog, app.Activity)
	pagesHandler := handlers.NewPagesHandler(app.Pages)
	languagesHandler := handlers.NewLanguagesHandler(app.Catalog)
	hackatimeHandler := handlers.NewHackatimeHandler(app.Bridge)
	adminHandler := handlers.NewAdminHandler(app.Accounts, app.Settings, app.Activity, app.Sessions)
	serveHandler := handlers.NewServeHandler(app.Spaces, app.Pages, app.Catalog)

	router.Get("/health", healthHandler.HealthCheck)
	router.Handle("/metrics", app.Metrics.Handler())

	// 账户
	router.With(customMiddleware.ContentTypeJSON).Post("/signup", authHandler.Signup)
	router.With(customMiddleware.ContentTypeJSON).Post("/login", authHandler.Login)
	router.Post("/logout", authHandler.Logout)
	router.With(customMiddleware.RequireAuth).Get("/suspended", authHandler.Suspended)

	// 发布页面（公开或所有者可见）
	router.Get("/s/{slug}", serveHandler.ServeSite)
	router.Get("/s/{slug}/*", serveHandler.ServeFile)
	router.With(customMiddleware.RequireAuth).Get("/code/{id}", serveHandler.Editor)

	// 时间追踪
	router.Route("/hackatime", func(r chi.Router) {
		r.Use(customMiddleware.RequireAuth)
		r.Post("/heartbeat", hackatimeHandler.Heartbeat)
		r.Get("/status", hackatimeHandler.Status)
		r.Post("/connect", hackatimeHandler.Connect)
		r.Post("/disconnect", hackatimeHandler.Disconnect)
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)

		r.Get("/languages", languagesHandler.ListLanguages)
		r.With(customMiddleware.RequireAdmin).Post("/languages/refresh", languagesHandler.RefreshLanguages)

		// 文件读取对公开空间开放，写入由服务层校验
		r.Route("/site/{id}/pages", func(r chi.Router) {
			r.Get("/", pagesHandler.ListPages)
			r.Get("/{filename}", pagesHandler.GetPage)
			r.With(customMiddleware.RequireAuth).Post("/", pagesHandler.SavePage)
			r.With(customMiddleware.RequireAuth).Put("/", pagesHandler.ReplacePages)
			r.With(customMiddleware.RequireAuth).Delete("/{filename}", pagesHandler.DeletePage)
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.RequireAuth)

			r.Get("/me", authHandler.Me)
			r.Get("/activity", authHandler.MyActivity)

			r.Route("/sites", func(r chi.Router) {
				r.Get("/", sitesHandler.ListSites)
				r.Post("/", sitesHandler.CreateSite)
				r.Post("/code", sitesHandler.CreateCodeSite)
				r.Get("/{id}", sitesHandler.GetSite)
				r.Put("/{id}", sitesHandler.UpdateSite)
				r.Put("/{id}/rename", sitesHandler.RenameSite)
				r.Delete("/{id}", sitesHandler.DeleteSite)
				r.Post("/{id}/run", runHandler.RunSite)
			})
			r.Post("/run/{id}", runHandler.RunCode)
		})

		r.Route("/admin", func(r chi.Router) {
			// 模拟中的管理员以目标用户身份访问，因此 stop 只要求登录
			r.With(customMiddleware.RequireAuth).Post("/impersonate/stop", adminHandler.StopImpersonation)

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireAdmin)
				r.Get("/settings", adminHandler.GetSettings)
				r.Put("/settings", adminHandler.UpdateSettings)
				r.Get("/activity", adminHandler.RecentActivity)
				r.Post("/users/{id}/suspend", adminHandler.SuspendUser)
				r.Post("/users/{id}/unsuspend", adminHandler.UnsuspendUser)
				r.Delete("/users/{id}", adminHandler.DeleteUser)
				r.Post("/impersonate/{id}", adminHandler.Impersonate)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if utils.WantsHTML(r) {
			utils.WriteHTMLError(w, http.StatusNotFound, utils.ErrorPage{
				Title:   "Page not found",
				Message: "The page you're looking for doesn't exist.",
			})
			return
		}
		utils.WriteErrorMessage(w, http.StatusNotFound, apperr.NotFound,
			fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorMessage(w, http.StatusMethodNotAllowed, apperr.InvalidInput,
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path))
	})
}
