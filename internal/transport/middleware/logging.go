package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/pocket-settlement/pkg/logger"
)

const (
	filtered       = "[FILTERED]"
	maxLoggedBody  = 4 << 10
	maxPeekedBody  = 64 << 10
	omittedBody    = "[OMITTED - body too large]"
	truncateMarker = "...[TRUNCATED]"
)

// sensitiveFields match JSON keys, header names and callback tag names by
// substring, case-insensitively.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"signature",
	"pan",
	"card",
	"phone",
	"cookie",
}

// unloggedPrefixes serve static documents whose bodies are noise.
var unloggedPrefixes = []string{"/swagger/", "/openapi.yml"}

var tagValuePattern = regexp.MustCompile(`(?i)<([a-z_][\w.-]*)>([^<]*)</([a-z_][\w.-]*)>`)

func LoggingMiddleware(fallback *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range unloggedPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			log := logger.FromOr(r.Context(), fallback).With("request_id", middleware.GetReqID(r.Context()))

			logRequest(r.Context(), log, r)

			ww := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(ww, r)

			logResponse(r.Context(), log, ww, time.Since(start))
		})
	}
}

// responseWriter keeps the status and the first maxLoggedBody bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	body       bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - rw.body.Len(); room > 0 {
		rw.body.Write(b[:min(len(b), room)])
	}
	rw.size += len(b)
	return rw.ResponseWriter.Write(b)
}

// peekBody reads at most maxPeekedBody bytes for the log and puts them back in
// front of the unread remainder, so handler size limits still see the whole
// stream.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	head, _ := io.ReadAll(io.LimitReader(r.Body, maxPeekedBody))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	return head
}

func logRequest(ctx context.Context, log *slog.Logger, r *http.Request) {
	bodyBytes := peekBody(r)
	// a cut body cannot be masked reliably
	body := omittedBody
	if len(bodyBytes) < maxPeekedBody {
		body = filterSensitiveBody(bodyBytes)
	}

	log.InfoContext(ctx, "incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
		"body", body,
	)
}

func logResponse(ctx context.Context, log *slog.Logger, rw *responseWriter, duration time.Duration) {
	statusCode := rw.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	log.Log(ctx, level, "response",
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
		"body", filterSensitiveBody(rw.body.Bytes()),
	)
}

func isSensitive(name string) bool {
	name = strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(name, field) {
			return true
		}
	}
	return false
}

func filterSensitiveHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
		} else {
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

// filterSensitiveBody masks sensitive values in JSON bodies and in the
// tag-delimited bodies the processor sends, leaving everything else readable.
func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var out string
	var jsonData interface{}
	if err := json.Unmarshal(body, &jsonData); err == nil {
		masked, err := json.Marshal(filterSensitiveJSON(jsonData))
		if err != nil {
			return "[ERROR - Failed to marshal filtered JSON]"
		}
		out = string(masked)
	} else {
		out = filterSensitiveTags(string(body))
	}

	if len(out) > maxLoggedBody {
		out = out[:maxLoggedBody] + truncateMarker
	}
	return out
}

func filterSensitiveTags(body string) string {
	return tagValuePattern.ReplaceAllStringFunc(body, func(tag string) string {
		m := tagValuePattern.FindStringSubmatch(tag)
		if !strings.EqualFold(m[1], m[3]) || !isSensitive(m[1]) {
			return tag
		}
		return "<" + m[1] + ">" + filtered + "</" + m[3] + ">"
	})
}

func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = filtered
			} else {
				out[key] = filterSensitiveJSON(value)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = filterSensitiveJSON(item)
		}
		return out
	default:
		return v
	}
}
