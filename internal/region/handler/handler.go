package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kvault/internal/region/models"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	"kvault/pkg/platform/httputil"
	"kvault/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context) ([]*models.Region, error)
	Create(ctx context.Context, actor id.Actor, name string) (*models.Region, error)
}

// Handler serves the region registry endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts routes that need no actor.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/regions", h.HandleList)
}

// Register mounts routes that expect RequireAuth and an admin role gate upstream.
func (h *Handler) Register(r chi.Router) {
	r.Post("/regions", h.HandleCreate)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regions, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list regions",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, regions)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := requestcontext.Actor(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.CreateRegionRequest](w, r, h.logger)
	if !ok {
		return
	}

	region, err := h.service.Create(ctx, actor, req.Name)
	if err != nil {
		if dErrors.IsServerError(dErrors.CodeOf(err)) {
			h.logger.ErrorContext(ctx, "failed to create region",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, region)
}
