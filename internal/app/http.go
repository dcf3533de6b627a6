package app

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/qverse/iotbridge/internal/bridge"
	"github.com/qverse/iotbridge/internal/config"
	"github.com/qverse/iotbridge/internal/handlers"
	"github.com/qverse/iotbridge/internal/logger"
)

func buildRouter(h *handlers.Handlers, bridgeServer *bridge.Server) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r, bridgeServer)
	registerHealthRoutes(r)
	return r
}

func buildHandlerChain(cfg *config.Config, router *mux.Router) http.Handler {
	loggingHandler := requestLoggingMiddleware(router)

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(cfg.GetAllowedOrigins()),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.AllowCredentials(),
	)

	return corsHandler(loggingHandler)
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	log := logger.WithModule("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rw.statusCode,
			"bytes", rw.bytes,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Hijack WebSocket升级需要接管底层连接
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func registerHealthRoutes(r *mux.Router) {
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteSuccess(w, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
}
