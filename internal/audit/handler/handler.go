package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	"kvault/pkg/platform/audit"
	"kvault/pkg/platform/httputil"
	"kvault/pkg/requestcontext"
)

// Lister reads audit entries newest first.
type Lister interface {
	List(ctx context.Context, q audit.Query) ([]audit.Entry, error)
}

type Handler struct {
	entries Lister
	logger  *slog.Logger
	limit   int
}

func New(entries Lister, logger *slog.Logger, limit int) *Handler {
	return &Handler{entries: entries, logger: logger, limit: limit}
}

// Register mounts routes that expect RequireAuth upstream.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
}

// HandleList returns the caller's own trail, or the whole region's trail for
// admins and reviewers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requestcontext.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	entries, err := h.entries.List(ctx, scopeFor(actor, h.limit))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit entries",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries"))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func scopeFor(actor id.Actor, limit int) audit.Query {
	q := audit.Query{Limit: limit}
	if actor.IsPrivileged() {
		regionID := actor.RegionID
		q.RegionID = &regionID
		return q
	}
	actorID := actor.ID
	q.ActorID = &actorID
	return q
}
