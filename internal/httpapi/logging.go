package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// loggingLineWriter logs complete stream frames at debug level.
type loggingLineWriter struct {
	path string
	buf  []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(lw.buf[:idx])
		if len(line) > 0 {
			zlog.Debug().Str("path", lw.path).Bytes("frame", line).Msg("stream")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("RELAYD_HTTP_LOG_LEVEL"))

// SetDefaultLogLevel overrides the request log level used when a request
// carries no override.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// reqLog writes the start and end lines of one API call.
type reqLog struct {
	lvl   LogLevel
	path  string
	model string
	rid   string
	start time.Time
}

func startReqLog(r *http.Request, model string) *reqLog {
	l := &reqLog{
		lvl:   requestLogLevel(r),
		path:  r.URL.Path,
		model: model,
		rid:   middleware.GetReqID(r.Context()),
		start: time.Now(),
	}
	if l.lvl >= LevelInfo {
		zlog.Info().Str("path", l.path).Str("model", l.model).Str("request_id", l.rid).Msg("request start")
	}
	return l
}

func (l *reqLog) end(status int, err error) {
	switch {
	case err != nil && l.lvl >= LevelError:
		zlog.Error().Str("path", l.path).Int("status", status).Dur("dur", time.Since(l.start)).Str("request_id", l.rid).Err(err).Msg("request end")
	case err == nil && l.lvl >= LevelInfo:
		zlog.Info().Str("path", l.path).Int("status", status).Dur("dur", time.Since(l.start)).Str("request_id", l.rid).Msg("request end")
	}
}

// debugStream reports whether stream frames should be logged.
func (l *reqLog) debugStream() bool { return l.lvl >= LevelDebug }
