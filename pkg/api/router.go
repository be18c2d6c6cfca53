package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/transferd/internal/logger"
	"github.com/marmos91/transferd/pkg/download"
	"github.com/marmos91/transferd/pkg/upload"
)

// RouterConfig carries the dependencies NewRouter wires into handlers.
type RouterConfig struct {
	Upload           *upload.Service
	Download         *download.Service
	UploadLimitBytes int64
	LifespanDefault  int64
	DownloadDefault  *int
	RequestTimeout   time.Duration
}

// NewRouter builds the chi router serving the upload/download
// HTTP/JSON surface.
//
// Routes:
//   - GET  /status              - liveness + version
//   - GET  /api/upload/defaults - announce-side defaults
//   - POST /api/upload/init     - reserve a key for a future upload
//   - POST /api/upload          - stream the blob under ?key=
//   - POST /api/upload/delete   - soft-delete an Upload via its deletion secret
//   - POST /api/download/init   - handshake: nonce, size, download_key, confirm_key
//   - POST /api/download        - stream the blob body
//   - POST /api/download/confirm - verify the decrypted content hash
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/status", statusHandler)

	uh := &uploadHandler{
		service:       cfg.Upload,
		uploadLimit:   cfg.UploadLimitBytes,
		lifespanSecs:  cfg.LifespanDefault,
		downloadLimit: cfg.DownloadDefault,
	}
	dh := &downloadHandler{service: cfg.Download}

	r.Route("/api/upload", func(r chi.Router) {
		r.Get("/defaults", uh.defaults)
		r.Post("/init", uh.init)
		r.Post("/delete", uh.delete)
		r.Post("/", uh.stream)
	})

	r.Route("/api/download", func(r chi.Router) {
		r.Post("/init", dh.init)
		r.Post("/confirm", dh.confirm)
		r.Post("/", dh.body)
	})

	return r
}

// requestLogger logs each request at DEBUG on start and INFO on
// completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
