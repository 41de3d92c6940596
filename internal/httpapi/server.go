package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relayd/internal/presence"
	"relayd/internal/relay"
	"relayd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	PerformChat(ctx context.Context, req relay.ChatRequest) (relay.Result, error)
	StreamChat(ctx context.Context, req relay.ChatRequest, onDelta func(string) error) (relay.Result, error)
	PerformCompletion(ctx context.Context, req relay.CompletionRequest) (relay.Result, error)
	StreamCompletion(ctx context.Context, req relay.CompletionRequest, onDelta func(string) error) (relay.Result, error)
	PerformResponse(ctx context.Context, req relay.ResponseRequest) (relay.ResponseResult, error)
	Embed(ctx context.Context, req relay.EmbedRequest) (relay.EmbedResult, error)

	Models() []types.Descriptor
	Resolve(name string) (types.Descriptor, bool)
	LoadModel(ctx context.Context, id string) error
	UnloadModel(id string) error
	Ready() bool
	Status() types.StatusResponse

	CatalogJSON() ([]byte, error)
	UpsertCatalogEntry(entry types.CatalogEntry)
	RecordClient(md presence.Metadata)
	ConnectedClients() []types.ConnectedClient
}

type api struct {
	svc     Service
	started time.Time
}

// NewMux builds the router for svc.
func NewMux(svc Service) http.Handler {
	a := &api{svc: svc, started: time.Now()}
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no models"))
	})

	r.Get("/status", a.status)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	r.Group(func(r chi.Router) {
		if rateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(rateLimitPerMinute, time.Minute))
		}
		r.Use(presenceMiddleware(svc.RecordClient))

		r.Get("/v1/models", a.openAIModels)
		r.Get("/api/tags", a.ollamaTags)
		r.Get("/api/v0/models", a.lmStudioModels)

		r.Post("/v1/chat/completions", a.chatCompletions)
		r.Post("/v1/completions", a.completions)
		r.Post("/v1/responses", a.responses)
		r.Post("/api/chat", a.ollamaChat)
		r.Post("/api/generate", a.ollamaGenerate)
		r.Post("/v1/embeddings", a.embeddings)
		r.Post("/api/embed", a.ollamaEmbed)

		r.Post("/v1/models/{id}/load", a.loadModel)
		r.Post("/v1/models/{id}/unload", a.unloadModel)

		r.Get("/v1/catalog", a.catalog)
		r.Post("/v1/catalog", a.upsertCatalog)
		r.Get("/v1/clients", a.clients)
	})

	return r
}

// status godoc
// @Summary      Pool status
// @Tags         admin
// @Produce      json
// @Success      200 {object} types.StatusResponse
// @Router       /status [get]
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	st := a.svc.Status()
	st.UptimeSeconds = int64(time.Since(a.started).Seconds())
	st.ServerTimeUnix = time.Now().Unix()
	writeJSON(w, http.StatusOK, st)
}

// loadModel godoc
// @Summary      Load and pin a model
// @Tags         admin
// @Produce      json
// @Param        id path string true "Model id or name"
// @Success      200 {object} types.ModelActionResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /v1/models/{id}/load [post]
func (a *api) loadModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	l := startReqLog(r, name)
	desc, ok := a.svc.Resolve(name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not configured: "+name)
		l.end(http.StatusNotFound, nil)
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if err := a.svc.LoadModel(ctx, desc.ID); err != nil {
		l.end(writeServiceError(w, err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModelActionResponse{Model: desc.ID, Status: "loaded"})
	l.end(http.StatusOK, nil)
}

// unloadModel godoc
// @Summary      Unpin and unload a model
// @Tags         admin
// @Produce      json
// @Param        id path string true "Model id or name"
// @Success      200 {object} types.ModelActionResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /v1/models/{id}/unload [post]
func (a *api) unloadModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if desc, ok := a.svc.Resolve(id); ok {
		id = desc.ID
	}
	l := startReqLog(r, id)
	if err := a.svc.UnloadModel(id); err != nil {
		l.end(writeServiceError(w, err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModelActionResponse{Model: id, Status: "unloaded"})
	l.end(http.StatusOK, nil)
}

// catalog godoc
// @Summary      Peer-facing model catalog
// @Tags         admin
// @Produce      json
// @Success      200 {array} catalog.Record
// @Router       /v1/catalog [get]
func (a *api) catalog(w http.ResponseWriter, r *http.Request) {
	b, err := a.svc.CatalogJSON()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode catalog")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// upsertCatalog godoc
// @Summary      Record exposure or health of a catalog entry
// @Tags         admin
// @Accept       json
// @Param        request body types.CatalogEntry true "Entry"
// @Success      204
// @Failure      400 {object} types.ErrorResponse
// @Router       /v1/catalog [post]
func (a *api) upsertCatalog(w http.ResponseWriter, r *http.Request) {
	var entry types.CatalogEntry
	if !decodeJSON(w, r, &entry) {
		return
	}
	if strings.TrimSpace(entry.ModelID) == "" {
		writeJSONError(w, http.StatusBadRequest, "model_id is required")
		return
	}
	if entry.LastChecked.IsZero() {
		entry.LastChecked = time.Now().UTC()
	}
	a.svc.UpsertCatalogEntry(entry)
	w.WriteHeader(http.StatusNoContent)
}

// clients godoc
// @Summary      Recently seen callers
// @Tags         admin
// @Produce      json
// @Success      200 {object} types.ConnectedClientsResponse
// @Router       /v1/clients [get]
func (a *api) clients(w http.ResponseWriter, r *http.Request) {
	clients := a.svc.ConnectedClients()
	if clients == nil {
		clients = []types.ConnectedClient{}
	}
	writeJSON(w, http.StatusOK, types.ConnectedClientsResponse{Clients: clients})
}

// decodeJSON enforces the content type and body limit, then decodes into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also land here; the limit is not reported.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func metaOf(r *http.Request) relay.Meta {
	return relay.Meta{RequestID: middleware.GetReqID(r.Context()), Caller: callerOf(r)}
}

// generationContext joins the server base context with the request context
// and applies the configured generation timeout.
func generationContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	d := generationDeadline()
	if d <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
