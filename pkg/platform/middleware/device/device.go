// Package device summarizes the caller's user agent for audit detail.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"medfayda/pkg/requestcontext"
)

// Summarize reduces a User-Agent header to "browser major on os (platform)",
// e.g. "chrome 120 on windows 10 (desktop)". Empty input yields "".
func Summarize(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}

	browser, version := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	if major, _, _ := strings.Cut(version, "."); major != "" {
		browser += " " + major
	}

	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}
	return browser + " on " + os + " (" + platform + ")"
}

// Middleware stores the device summary in the context. It must run after the
// metadata middleware, which extracts the User-Agent.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if summary := Summarize(requestcontext.UserAgent(ctx)); summary != "" {
			ctx = requestcontext.WithDevice(ctx, summary)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
