// request.go — сведения о клиенте для аудита и лимитов.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// maxUserAgentLen — длина user agent, сохраняемая в журнале.
const maxUserAgentLen = 500

// ClientIP возвращает адрес клиента: первый адрес X-Forwarded-For
// (сервис работает за reverse proxy), иначе адрес соединения.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := stripPort(strings.TrimSpace(first)); ip != "" {
			return ip
		}
	}
	return stripPort(r.RemoteAddr)
}

// stripPort отрезает порт, если он есть.
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// RequestMeta собирает IP и user agent запроса.
func RequestMeta(r *http.Request) model.RequestMeta {
	ua := r.UserAgent()
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
		for !utf8.ValidString(ua) {
			ua = ua[:len(ua)-1]
		}
	}
	return model.RequestMeta{IP: ClientIP(r), UserAgent: ua}
}
