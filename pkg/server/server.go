package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"spaces-backend/pkg/log"

	"go.uber.org/zap"
)

// ShutdownTimeout 等待进行中请求完成的上限；代码执行最长 15 秒
const ShutdownTimeout = 20 * time.Second

// Serve 监听 addr 直到 ctx 取消，然后优雅关闭
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, listener, handler)
}

// ServeListener 在已有监听器上运行 HTTP 服务
func ServeListener(ctx context.Context, listener net.Listener, handler http.Handler) error {
	logger := log.WithName("server")
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
