package middleware

import (
	"fmt"
	"net/http"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Recovery 恢复中间件，记录 panic 堆栈并返回 500
func Recovery() func(http.Handler) http.Handler {
	logger := log.WithName("recovery")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic while handling request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("panic", fmt.Sprint(rec)),
					zap.Stack("stack"),
				)
				if utils.WantsHTML(r) {
					utils.WriteHTMLError(w, http.StatusInternalServerError, utils.ErrorPage{
						Title:   "Something went wrong",
						Message: "An unexpected error occurred while loading this page.",
						Suggestions: []string{
							"Refresh the page",
							"Go back and try again in a moment",
						},
					})
					return
				}
				utils.WriteErrorMessage(w, http.StatusInternalServerError, apperr.Internal, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
