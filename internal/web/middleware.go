package web

import (
	"net/http"
	"strings"

	"notify-triage/internal/infra/logger"
)

const (
	sessionCookieName = "triage_session"
	sessionMaxAge     = 3600 // 1 час в секундах
)

func isAPIPath(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// authMiddleware проверяет аутентификацию пользователя.
// Скриптовые клиенты передают ?token= в каждом запросе к /api/ и не получают
// сессию; браузер по токену получает cookie сессии и редирект на чистый URL.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			if isAPIPath(r) {
				if s.auth.CheckToken(token) {
					next.ServeHTTP(w, r)
					return
				}
				logger.Warn("Invalid auth token attempt")
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid authentication token"})
				return
			}

			sessionID, valid := s.auth.ValidateToken(token)
			if valid {
				// Устанавливаем cookie с session ID
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   sessionMaxAge,
					HttpOnly: true,
					SameSite: http.SameSiteStrictMode,
				})
				// Редирект на тот же путь без токена в URL
				http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
				return
			}
			// Невалидный токен
			logger.Warn("Invalid auth token attempt")
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		// Проверяем существующую сессию через cookie
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			s.unauthorized(w, r)
			return
		}

		// Валидируем сессию
		if !s.auth.ValidateSession(cookie.Value) {
			logger.Debug("Session expired or invalid")
			s.unauthorized(w, r)
			return
		}

		// Обновляем cookie
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    cookie.Value,
			Path:     "/",
			MaxAge:   sessionMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})

		// Сессия валидна, пропускаем дальше
		next.ServeHTTP(w, r)
	})
}

// unauthorized отвечает отказом в формате, ожидаемом клиентом:
// JSON для API, HTML-страница для браузера
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Unauthorized access: %s %s from %s",
		r.Method, r.URL.Path, r.RemoteAddr)

	if isAPIPath(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "authentication required"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authentication Required - Notify Triage</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100">
    <div class="min-h-screen flex items-center justify-center">
        <div class="bg-white rounded-lg shadow-lg p-8 max-w-md w-full">
            <div class="text-center">
                <svg class="mx-auto h-12 w-12 text-red-500" fill="none" stroke="currentColor" viewBox="0 0 24 24">
                    <path stroke-linecap="round" stroke-linejoin="round" stroke-width="2" d="M12 15v2m-6 4h12a2 2 0 002-2v-6a2 2 0 00-2-2H6a2 2 0 00-2 2v6a2 2 0 002 2zm10-10V7a4 4 0 00-8 0v4h8z"></path>
                </svg>
                <h1 class="mt-4 text-2xl font-bold text-gray-900">Authentication Required</h1>
                <p class="mt-2 text-gray-600">You need to authenticate to access this page.</p>
                <div class="mt-6 p-4 bg-blue-50 rounded-lg">
                    <p class="text-sm text-blue-800">
                        <strong>How to authenticate:</strong><br>
                        Open the tokenized link printed to the service log at startup,
                        e.g. <code class="bg-blue-100 px-2 py-1 rounded">/?token=...</code>.
                        The <code class="bg-blue-100 px-2 py-1 rounded">token</code> console command prints it again.
                    </p>
                </div>
            </div>
        </div>
    </div>
</body>
</html>`

	writeResponse(w, []byte(html))
}

// loggingMiddleware логирует все запросы
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("HTTP %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware отбрасывает запросы сверх общего лимита сервера
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			logger.Debugf("HTTP %s %s throttled", r.Method, r.URL.Path)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
