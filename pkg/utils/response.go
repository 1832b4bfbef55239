package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/log"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrorResponse 错误响应信封
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Code    apperr.Kind `json:"code"`
}

var validate = validator.New()

// WriteJSON 写入JSON响应
func WriteJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithName("http").Warn("failed to encode response", zap.Error(err))
	}
}

// WriteSuccess 扁平的成功响应，自动带上 success:true
func WriteSuccess(w http.ResponseWriter, fields map[string]interface{}) {
	WriteStatus(w, http.StatusOK, fields)
}

// WriteCreated 201 成功响应
func WriteCreated(w http.ResponseWriter, fields map[string]interface{}) {
	WriteStatus(w, http.StatusCreated, fields)
}

// WriteStatus 指定状态码的成功响应
func WriteStatus(w http.ResponseWriter, statusCode int, fields map[string]interface{}) {
	body := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	WriteJSON(w, statusCode, body)
}

// WriteErrorMessage 直接写入错误信封
func WriteErrorMessage(w http.ResponseWriter, statusCode int, kind apperr.Kind, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Success: false, Error: message, Code: kind})
}

// WriteError 将任意错误映射为错误信封；内部错误只记日志，不向客户端暴露细节
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.Internal, "Internal server error", err)
	}
	status := apperr.HTTPStatus(appErr.Kind)
	message := appErr.Message
	if appErr.Kind == apperr.Internal {
		log.WithName("http").Error("internal error", zap.Error(err), zap.Stack("stack"))
		message = "Internal server error"
	}
	WriteErrorMessage(w, status, appErr.Kind, message)
}

// DecodeJSON 解析并校验请求体
func DecodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.New(apperr.PayloadTooLarge, "Request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.InvalidInput, "Request body is required")
		}
		return apperr.Wrap(apperr.InvalidInput, "Invalid JSON body", err)
	}
	return ValidateStruct(v)
}

// ValidateStruct 按 validate 标签校验
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return nil
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.Newf(apperr.InvalidInput, "%s is required", field)
	case "min":
		return apperr.Newf(apperr.InvalidInput, "%s must be at least %s", field, fe.Param())
	case "max":
		return apperr.Newf(apperr.InvalidInput, "%s must be at most %s", field, fe.Param())
	case "email":
		return apperr.New(apperr.InvalidInput, "email is invalid")
	default:
		return apperr.Newf(apperr.InvalidInput, "%s is invalid", field)
	}
}

// GetQueryParam 获取查询参数，如果不存在则返回默认值
func GetQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

// QueryInt 整数查询参数，无法解析时返回默认值
func QueryInt(r *http.Request, key string, defaultValue int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultValue
	}
	return n
}

// WantsHTML 浏览器页面请求（而非 API 调用）
func WantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · Spaces</title>
<style>
body{font-family:system-ui,sans-serif;background:#f9fafc;color:#1f2d3d;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0}
main{max-width:32rem;padding:2rem;background:#fff;border-radius:12px;box-shadow:0 4px 16px rgba(0,0,0,.08)}
h1{color:#ec3750;margin-top:0}
li{margin:.25rem 0}
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Suggestions}}<ul>{{range .Suggestions}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p><a href="/">Back to Spaces</a></p>
</main>
</body>
</html>
`))

// ErrorPage 错误页内容
type ErrorPage struct {
	Title       string
	Message     string
	Suggestions []string
}

// WriteHTMLError 渲染品牌化错误页
func WriteHTMLError(w http.ResponseWriter, statusCode int, page ErrorPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := errorPage.Execute(w, page); err != nil {
		_, _ = fmt.Fprintf(w, "%d %s", statusCode, http.StatusText(statusCode))
	}
}

// DatabaseUnavailablePage 数据库不可用时的静态页
func DatabaseUnavailablePage() ErrorPage {
	return ErrorPage{
		Title:   "Service temporarily unavailable",
		Message: "We can't reach the database right now.",
		Suggestions: []string{
			"Wait a few seconds and refresh the page",
			"Your saved work is safe",
			"If this keeps happening, let the club leaders know",
		},
	}
}
