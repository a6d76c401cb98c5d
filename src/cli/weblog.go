package cli

import (
	"FlightDelayInsight/src/storage"
	"errors"
	"fmt"
	"net/http"
)

// logHandler 以chunked方式持续输出日志, 客户端断开后退订
func logHandler(logger *storage.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 设置响应头
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")

		// 创建日志订阅通道
		logChan := logger.Subscribe()
		defer logger.Unsubscribe(logChan)

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		for {
			select {
			case msg, ok := <-logChan:
				if !ok {
					return
				}
				// 写入失败(如客户端断开连接)则退出
				if _, err := fmt.Fprint(w, msg); err != nil {
					return
				}
				// 刷新响应缓冲区，确保消息立即发送到客户端
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}

// startWebUI 在addr上提供 /logs 实时日志
func startWebUI(addr string, logger *storage.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/logs", logHandler(logger))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("日志服务启动失败: " + err.Error())
		}
	}()
	logger.Info(fmt.Sprintf("实时日志: http://%s/logs", addr))
	return srv
}
