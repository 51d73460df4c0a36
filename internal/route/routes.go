package route

import (
	"net/http"

	"faceenroll/internal/handler"
	"faceenroll/internal/logger"
	"faceenroll/internal/middleware"
)

// SetupRoutes registers the local status API, the preview socket and the log
// endpoints, and wraps the mux with the token middleware.
func SetupRoutes(session handler.SessionController, hub handler.ViewerHub, token string, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/session", handler.GetSessionHandler(session, logger))
	mux.HandleFunc("/api/session/cancel", handler.CancelSessionHandler(session, logger))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, logger))

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		file := level + ".log"
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, file))
	}

	// Apply middleware
	return middleware.TokenMiddleware(token)(mux)
}
