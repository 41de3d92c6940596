package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
// Default remains 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// generationTimeout bounds one generation request. Zero means no additional
// timeout beyond server/connection timeouts.
var generationTimeout = int64(0) // seconds

// SetGenerationTimeoutSeconds sets the generation timeout in seconds (0 disables).
func SetGenerationTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	generationTimeout = sec
}

func generationDeadline() time.Duration {
	return time.Duration(generationTimeout) * time.Second
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// rateLimitPerMinute caps requests per client IP on the API routes. Zero disables.
var rateLimitPerMinute int

// SetRateLimitPerMinute configures the per-IP request limit.
func SetRateLimitPerMinute(n int) {
	if n < 0 {
		n = 0
	}
	rateLimitPerMinute = n
}
