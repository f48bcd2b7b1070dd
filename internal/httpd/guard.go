package httpd

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/blogshield/blogshield/internal/pipeline"
)

const maxInspectedBody = 64 << 10

// Guard is the enforcement middleware: every request runs through the
// inspection pipeline before it reaches the protected application.
func Guard(insp *pipeline.Inspector, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := pipeline.Request{
				Identity: clientIP(r),
				Method:   r.Method,
				URL:      r.URL.RequestURI(),
				Headers:  flattenHeaders(r.Header),
			}

			if r.Body != nil && r.ContentLength != 0 && inspectableBody(r) {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
				if err != nil {
					logger.Warn("request body unreadable", "error", err, "path", r.URL.Path)
				} else {
					req.Body = string(body)
					r.Body = struct {
						io.Reader
						io.Closer
					}{io.MultiReader(strings.NewReader(req.Body), r.Body), r.Body}
				}
			}

			d := insp.Inspect(r.Context(), req)
			switch d.Verdict {
			case pipeline.VerdictReject:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(d.StatusCode)
				_, _ = io.WriteString(w, d.Body)
			case pipeline.VerdictServeHoneypot:
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(d.StatusCode)
				_, _ = io.WriteString(w, d.Body)
			default:
				sw := &statusWriter{ResponseWriter: w, status: 200}
				next.ServeHTTP(sw, r)
				// A failed login feeds the brute-force window.
				if sw.status == http.StatusUnauthorized && isLoginPath(r.URL.Path) {
					insp.RecordLoginFailure(r.Context(), req.Identity, r.PostFormValue("username"))
				}
			}
		})
	}
}

func inspectableBody(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" ||
		strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "text/")
}

func isLoginPath(path string) bool {
	return path == "/login" || strings.HasSuffix(path, "/login")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
