// routes/api_routes.go
package routes

import (
	"net/http"

	"github.com/LilVoxy/support_bridge/database"
	"github.com/gorilla/mux"
)

// SetupRoutes настраивает маршруты служебного HTTP API
func SetupRoutes(router *mux.Router, store *database.Store) {
	// Применяем CORS middleware
	router.Use(corsMiddleware)

	// API пользователей
	router.HandleFunc("/api/users", ListUsersHandler(store)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/users/{telegramId}", GetUserHandler(store)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/users/{telegramId}/ban", BanUserHandler(store)).Methods("POST", "OPTIONS")

	// API топиков
	router.HandleFunc("/api/topics", ListTopicsHandler(store)).Methods("GET", "OPTIONS")

	// API непрочитанных сообщений
	router.HandleFunc("/api/unread", ListUnreadHandler(store)).Methods("GET", "OPTIONS")
}

// corsMiddleware разрешает кросс-доменные запросы к API
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
