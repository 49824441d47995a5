package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/gatewaypipe/internal/accounting"
	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/internal/pipeline"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// maxAuditBody bounds POST /admin/audit request bodies.
const maxAuditBody = 1 << 20

// RateLedger exposes the per-key rate-limit accounting.
type RateLedger interface {
	Tallies() []accounting.Tally
	Snapshot(key string) (accounting.Tally, bool)
}

// Admin serves pipeline introspection and manual audit injection.
type Admin struct {
	registry  *pipeline.Registry
	audit     dispatch.Publisher[*event.Record]
	validator event.Validator
	ledger    RateLedger
	logger    *slog.Logger
}

// NewAdmin creates the admin handler. audit may be nil when the audit
// pipeline is disabled; POST /admin/audit then answers 503.
func NewAdmin(registry *pipeline.Registry, audit dispatch.Publisher[*event.Record], validator event.Validator, logger *slog.Logger) *Admin {
	return &Admin{
		registry:  registry,
		audit:     audit,
		validator: validator,
		logger:    logger,
	}
}

// SetRateLedger enables the /admin/ratelimit routes. Without a ledger they
// answer 503.
func (a *Admin) SetRateLedger(ledger RateLedger) {
	a.ledger = ledger
}

// Register mounts the admin routes on mux.
func (a *Admin) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/pipelines", a.listPipelines)
	mux.HandleFunc("GET /admin/pipelines/{name}", a.getPipeline)
	mux.HandleFunc("POST /admin/audit", a.publishAudit)
	mux.HandleFunc("GET /admin/ratelimit", a.listTallies)
	mux.HandleFunc("GET /admin/ratelimit/{key}", a.getTally)
}

func (a *Admin) listPipelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.logger, http.StatusOK, a.registry.Stats())
}

func (a *Admin) getPipeline(w http.ResponseWriter, r *http.Request) {
	h, ok := a.registry.Get(r.PathValue("name"))
	if !ok {
		writeNotFound(w, fmt.Sprintf("pipeline %q is not registered", r.PathValue("name")))
		return
	}
	writeJSON(w, a.logger, http.StatusOK, h.Stats())
}

func (a *Admin) listTallies(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		writeError(w, a.logger, fmt.Errorf("ratelimit pipeline is disabled: %w", apperrors.ErrNotStarted))
		return
	}
	writeJSON(w, a.logger, http.StatusOK, a.ledger.Tallies())
}

func (a *Admin) getTally(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		writeError(w, a.logger, fmt.Errorf("ratelimit pipeline is disabled: %w", apperrors.ErrNotStarted))
		return
	}
	tally, ok := a.ledger.Snapshot(r.PathValue("key"))
	if !ok {
		writeNotFound(w, fmt.Sprintf("key %q is not tracked", r.PathValue("key")))
		return
	}
	writeJSON(w, a.logger, http.StatusOK, tally)
}

func writeNotFound(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    http.StatusNotFound,
		Kind:    "not_found",
		Message: message,
	})
}

// publishAudit accepts a structured-mode CloudEvent and publishes it into
// the audit pipeline. The gateway plugin comes from the "plugin" extension
// or the plugin query parameter.
func (a *Admin) publishAudit(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeError(w, a.logger, fmt.Errorf("audit pipeline is disabled: %w", apperrors.ErrNotStarted))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBody))
	if err != nil {
		writeError(w, a.logger, fmt.Errorf("failed to read body: %w", err))
		return
	}

	sdkEvent := cloudevents.NewEvent()
	if err := json.Unmarshal(body, &sdkEvent); err != nil {
		writeError(w, a.logger, &apperrors.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	ce := event.FromSDK(sdkEvent)
	plugin := r.URL.Query().Get("plugin")
	if v, ok := ce.Extensions["plugin"]; ok {
		plugin = fmt.Sprint(v)
	}

	now := time.Now().UTC()
	record := &event.Record{
		Event: ce,
		Gateway: event.GatewayMetadata{
			Plugin:    plugin,
			Route:     r.URL.Path,
			Method:    r.Method,
			ClientIP:  r.RemoteAddr,
			Timestamp: now,
		},
		ProcessedAt: now,
	}

	if a.validator != nil {
		if err := a.validator.Validate(ce); err != nil {
			writeError(w, a.logger, err)
			return
		}
	}
	if plugin == "" {
		writeError(w, a.logger, &apperrors.ValidationError{EventID: ce.ID, Field: "plugin", Reason: "required field is missing"})
		return
	}

	if err := a.audit.Publish(record); err != nil {
		writeError(w, a.logger, err)
		return
	}

	writeJSON(w, a.logger, http.StatusAccepted, map[string]string{
		"id":     ce.ID,
		"plugin": plugin,
		"status": "accepted",
	})
}
