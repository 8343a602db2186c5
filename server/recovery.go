package server

import (
	"net/http"
	"runtime"

	"github.com/Tsukikage7/tracing-bundle/logger"
)

// recoveryStackSize 记录 panic 时捕获的堆栈大小.
const recoveryStackSize = 64 * 1024

// recoverMiddleware 捕获 handler 的 panic 并返回 500.
//
// 安装在追踪过滤器之外：span 先记录异常并结束，再由这里记录日志.
// http.ErrAbortHandler 按标准库语义继续向上抛出.
func recoverMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				stack := make([]byte, recoveryStackSize)
				stack = stack[:runtime.Stack(stack, false)]

				log.WithContext(r.Context()).With(
					logger.Any("panic", p),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(stack)),
				).Error("[HTTP] 请求处理 panic，已恢复")

				w.WriteHeader(http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
