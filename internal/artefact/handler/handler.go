package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"kvault/internal/artefact/models"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	"kvault/pkg/platform/httputil"
	authmw "kvault/pkg/platform/middleware/auth"
	platformstrings "kvault/pkg/platform/strings"
	"kvault/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, actor id.Actor, in *models.CreateInput) (*models.Artefact, error)
	List(ctx context.Context, actor id.Actor, params models.ListParams) ([]*models.Artefact, error)
	Get(ctx context.Context, actor id.Actor, artefactID id.ArtefactID) (*models.Detail, error)
	Update(ctx context.Context, actor id.Actor, artefactID id.ArtefactID, patch models.Patch) (*models.Artefact, error)
	AddVersion(ctx context.Context, actor id.Actor, artefactID id.ArtefactID, in *models.AddVersionInput) (*models.Version, error)
	Archive(ctx context.Context, actor id.Actor, artefactID id.ArtefactID) (*models.Artefact, error)
	ListTags(ctx context.Context, actor id.Actor) ([]models.TagCount, error)
	Recommend(ctx context.Context, actor id.Actor, tag string) ([]*models.Artefact, error)
	Submit(ctx context.Context, actor id.Actor, artefactID id.ArtefactID) (*models.Artefact, error)
	ListPending(ctx context.Context, actor id.Actor) ([]*models.Artefact, error)
	Decide(ctx context.Context, actor id.Actor, artefactID id.ArtefactID, decision models.Decision, reason string) (*models.Artefact, error)
}

// multipartMemory is how much of a form is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// Handler serves artefact, governance and recommendation endpoints.
type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register mounts routes that expect RequireAuth upstream. The review queue
// and decisions are additionally gated to privileged roles here.
func (h *Handler) Register(r chi.Router) {
	r.Route("/artefacts", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/tags", h.HandleListTags)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Post("/{id}/versions", h.HandleAddVersion)
		r.Delete("/{id}", h.HandleArchive)
	})

	r.Route("/governance", func(r chi.Router) {
		r.Post("/submit", h.HandleSubmit)
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.logger, id.RoleAdmin, id.RoleReviewer))
			r.Get("/pending", h.HandleListPending)
			r.Post("/decision", h.HandleDecision)
		})
	})

	r.Get("/recommendations/auto", h.HandleRecommend)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	form, ok := h.parseMultipart(w, r)
	if !ok {
		return
	}
	defer removeForm(form)

	upload, closeUpload, err := fileFrom(form)
	if err != nil {
		h.writeError(ctx, w, "failed to open upload", err)
		return
	}
	defer closeUpload()
	in := &models.CreateInput{
		Title:          formValue(form, "title"),
		Description:    formValue(form, "description"),
		Tags:           formTags(form),
		Classification: formValue(form, "classification"),
		ChangeNote:     formValue(form, "changeNote"),
		File:           upload,
	}
	artefact, err := h.service.Create(ctx, actor, in)
	if err != nil {
		h.writeError(ctx, w, "failed to create artefact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, artefact)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	params := models.ListParams{
		Search:          q.Get("search"),
		Tag:             q.Get("tag"),
		Status:          q.Get("status"),
		Classification:  q.Get("classification"),
		IncludeArchived: parseBool(q.Get("includeArchived")),
	}
	items, err := h.service.List(ctx, actor, params)
	if err != nil {
		h.writeError(ctx, w, "failed to list artefacts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	tags, err := h.service.ListTags(ctx, actor)
	if err != nil {
		h.writeError(ctx, w, "failed to list tags", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tags)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	artefactID, ok := h.artefactIDParam(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(ctx, actor, artefactID)
	if err != nil {
		h.writeError(ctx, w, "failed to load artefact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	artefactID, ok := h.artefactIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateRequest](w, r, h.logger)
	if !ok {
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	artefact, err := h.service.Update(ctx, actor, artefactID, patch)
	if err != nil {
		h.writeError(ctx, w, "failed to update artefact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, artefact)
}

func (h *Handler) HandleAddVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	artefactID, ok := h.artefactIDParam(w, r)
	if !ok {
		return
	}
	form, ok := h.parseMultipart(w, r)
	if !ok {
		return
	}
	defer removeForm(form)

	upload, closeUpload, err := fileFrom(form)
	if err != nil {
		h.writeError(ctx, w, "failed to open upload", err)
		return
	}
	defer closeUpload()
	version, err := h.service.AddVersion(ctx, actor, artefactID, &models.AddVersionInput{
		ChangeNote: formValue(form, "changeNote"),
		File:       upload,
	})
	if err != nil {
		h.writeError(ctx, w, "failed to add version", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, version)
}

type archiveResponse struct {
	Message  string           `json:"message"`
	Artefact *models.Artefact `json:"artefact"`
}

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	artefactID, ok := h.artefactIDParam(w, r)
	if !ok {
		return
	}
	artefact, err := h.service.Archive(ctx, actor, artefactID)
	if err != nil {
		h.writeError(ctx, w, "failed to archive artefact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, archiveResponse{Message: "Artefact archived", Artefact: artefact})
}

func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	items, err := h.service.Recommend(ctx, actor, r.URL.Query().Get("tag"))
	if err != nil {
		h.writeError(ctx, w, "failed to load recommendations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}
	artefactID, err := id.ParseArtefactID(req.ArtefactID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	artefact, err := h.service.Submit(ctx, actor, artefactID)
	if err != nil {
		h.writeError(ctx, w, "failed to submit artefact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, artefact)
}

func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListPending(ctx, actor)
	if err != nil {
		h.writeError(ctx, w, "failed to list pending artefacts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.DecisionRequest](w, r, h.logger)
	if !ok {
		return
	}
	artefactID, err := id.ParseArtefactID(req.ArtefactID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	artefact, err := h.service.Decide(ctx, actor, artefactID, decision, req.Reason)
	if err != nil {
		h.writeError(ctx, w, "failed to record decision", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, artefact)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (id.Actor, bool) {
	actor, ok := requestcontext.Actor(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Actor{}, false
	}
	return actor, true
}

func (h *Handler) artefactIDParam(w http.ResponseWriter, r *http.Request) (id.ArtefactID, bool) {
	artefactID, err := id.ParseArtefactID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ArtefactID{}, false
	}
	return artefactID, true
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "upload exceeds the size limit"))
			return nil, false
		}
		h.logger.WarnContext(r.Context(), "invalid multipart form",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart form"))
		return nil, false
	}
	return r.MultipartForm, true
}

func removeForm(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}

// fileFrom opens the "file" part. A missing part yields a nil upload, which
// input validation reports. The returned func closes the opened file.
func fileFrom(form *multipart.Form) (*models.Upload, func(), error) {
	headers := form.File["file"]
	if len(headers) == 0 {
		return nil, func() {}, nil
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, dErrors.Wrap(err, dErrors.CodeBadRequest, "could not read uploaded file")
	}
	return &models.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// formTags accepts "tags=a,b" as well as repeated tags fields.
func formTags(form *multipart.Form) []string {
	var tags []string
	for _, raw := range form.Value["tags"] {
		tags = append(tags, platformstrings.SplitCSV(raw)...)
	}
	return platformstrings.DedupeAndTrim(tags)
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.IsServerError(dErrors.CodeOf(err)) {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
