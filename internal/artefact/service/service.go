package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"kvault/internal/artefact/metrics"
	"kvault/internal/artefact/models"
	"kvault/internal/artefact/store"
	"kvault/internal/authz"
	"kvault/internal/blob"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/middleware/metadata"
	"kvault/pkg/platform/sentinel"
	"kvault/pkg/requestcontext"
)

// Store is the persistence port. Execute must commit with compare-and-swap on
// Revision and report a lost race as sentinel.ErrStale.
type Store interface {
	Create(ctx context.Context, artefact *models.Artefact, version *models.Version) error
	FindByID(ctx context.Context, artefactID id.ArtefactID) (*models.Artefact, error)
	ListVersions(ctx context.Context, artefactID id.ArtefactID) ([]*models.Version, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Artefact, error)
	Tags(ctx context.Context, regionID id.RegionID, limit int) ([]models.TagCount, error)
	Execute(ctx context.Context, artefactID id.ArtefactID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.Artefact, error)
}

type BlobStore interface {
	Put(ctx context.Context, obj blob.Object) (blob.Ref, error)
}

type AuditPublisher interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Limits caps result sizes. Zero values fall back to the model maximums.
type Limits struct {
	List      int
	Tags      int
	Recommend int
}

const defaultWriteRetries = 3

// errAlreadyArchived short-circuits Execute when archive has nothing to do.
var errAlreadyArchived = errors.New("already archived")

// Service runs the artefact lifecycle: authorize, compute, persist, audit.
type Service struct {
	store          Store
	blobs          BlobStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	limits         Limits
	writeRetries   int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func WithLimits(limits Limits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

// WithWriteRetries sets how many times a write is retried after losing a
// compare-and-swap before the caller gets a conflict.
func WithWriteRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.writeRetries = n
		}
	}
}

func New(artefacts Store, blobs BlobStore, opts ...Option) *Service {
	s := &Service{
		store:        artefacts,
		blobs:        blobs,
		writeRetries: defaultWriteRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("kvault/internal/artefact/service")
	}
	return s
}

// Create uploads the file, then stores the artefact with version 1.
func (s *Service) Create(ctx context.Context, actor id.Actor, in *models.CreateInput) (_ *models.Artefact, err error) {
	ctx, span := s.startSpan(ctx, "artefact.create", actor)
	defer func() { s.endSpan(span, err) }()

	if err := s.authorize(ctx, actor, nil, authz.OpCreate); err != nil {
		return nil, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	file, err := s.upload(ctx, in.File)
	if err != nil {
		s.metrics.IncOperation(string(authz.OpCreate), "upstream_error")
		return nil, err
	}

	artefact, err := models.NewArtefact(id.ArtefactID(uuid.New()), actor, in.ToDraft(), now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, errMessage(err))
	}
	version, err := models.NewVersion(id.VersionID(uuid.New()), artefact.ID, models.FirstVersionNumber, file, actor.ID, in.ChangeNote, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build version")
	}
	if err := s.store.Create(ctx, artefact, version); err != nil {
		s.metrics.IncOperation(string(authz.OpCreate), "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create artefact")
	}

	s.record(ctx, actor, audit.ActionArtefactCreated, artefact, map[string]any{"title": artefact.Title})
	s.metrics.IncOperation(string(authz.OpCreate), "success")
	s.logger.InfoContext(ctx, "artefact created",
		"artefact_id", artefact.ID.String(),
		"actor_id", actor.ID.String(),
		"region_id", actor.RegionID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return artefact, nil
}

// List returns the artefacts visible to actor, newest update first.
func (s *Service) List(ctx context.Context, actor id.Actor, params models.ListParams) ([]*models.Artefact, error) {
	filter, err := models.NewFilter(actor, params, s.limits.List)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, filter)
}

// Recommend returns recent approved artefacts in the actor's region.
func (s *Service) Recommend(ctx context.Context, actor id.Actor, tag string) ([]*models.Artefact, error) {
	return s.list(ctx, models.RecommendFilter(actor, tag, s.limits.Recommend))
}

// ListPending returns the region's review queue. Privileged roles only.
func (s *Service) ListPending(ctx context.Context, actor id.Actor) ([]*models.Artefact, error) {
	if err := s.authorize(ctx, actor, nil, authz.OpListPending); err != nil {
		return nil, err
	}
	return s.list(ctx, models.PendingFilter(actor.RegionID, s.limits.List))
}

func (s *Service) list(ctx context.Context, filter models.Filter) ([]*models.Artefact, error) {
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list artefacts")
	}
	if items == nil {
		items = []*models.Artefact{}
	}
	return items, nil
}

func (s *Service) ListTags(ctx context.Context, actor id.Actor) ([]models.TagCount, error) {
	if err := s.authorize(ctx, actor, nil, authz.OpListTags); err != nil {
		return nil, err
	}
	tags, err := s.store.Tags(ctx, actor.RegionID, s.limits.Tags)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate tags")
	}
	if tags == nil {
		tags = []models.TagCount{}
	}
	return tags, nil
}

// Get loads the artefact and its versions concurrently, then authorizes the read.
func (s *Service) Get(ctx context.Context, actor id.Actor, artefactID id.ArtefactID) (_ *models.Detail, err error) {
	ctx, span := s.startSpan(ctx, "artefact.get", actor)
	defer func() { s.endSpan(span, err) }()

	var (
		artefact *models.Artefact
		versions []*models.Version
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.store.FindByID(gctx, artefactID)
		artefact = a
		return err
	})
	g.Go(func() error {
		v, err := s.store.ListVersions(gctx, artefactID)
		versions = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, translateStoreErr(err, "failed to load artefact")
	}

	if err := s.authorize(ctx, actor, artefact, authz.OpRead); err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []*models.Version{}
	}
	return &models.Detail{Artefact: artefact, Versions: versions}, nil
}

// Update applies a partial change to descriptive fields and lifecycle status.
func (s *Service) Update(ctx context.Context, actor id.Actor, artefactID id.ArtefactID, patch models.Patch) (_ *models.Artefact, err error) {
	ctx, span := s.startSpan(ctx, "artefact.update", actor)
	defer func() { s.endSpan(span, err) }()

	if patch.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "no fields to update")
	}
	now := requestcontext.Now(ctx)
	var changed []string
	updated, _, err := s.execute(ctx, actor, artefactID, authz.OpUpdate,
		func(a *models.Artefact) error { return a.CanUpdate(patch) },
		func(a *models.Artefact) (*models.Version, error) {
			changed = a.ApplyUpdate(patch, now)
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionArtefactUpdated, updated, map[string]any{
		"title":   updated.Title,
		"changed": changed,
	})
	return updated, nil
}

// AddVersion uploads new content and appends it as the next version. The
// artefact drops back to draft and loses any reviewer decision.
func (s *Service) AddVersion(ctx context.Context, actor id.Actor, artefactID id.ArtefactID, in *models.AddVersionInput) (_ *models.Version, err error) {
	ctx, span := s.startSpan(ctx, "artefact.add_version", actor)
	defer func() { s.endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	// Refuse before uploading so denied callers never reach blob storage.
	current, err := s.store.FindByID(ctx, artefactID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load artefact")
	}
	if err := s.authorize(ctx, actor, current, authz.OpAddVersion); err != nil {
		return nil, err
	}

	file, err := s.upload(ctx, in.File)
	if err != nil {
		s.metrics.IncOperation(string(authz.OpAddVersion), "upstream_error")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var version *models.Version
	updated, from, err := s.execute(ctx, actor, artefactID, authz.OpAddVersion,
		func(*models.Artefact) error { return nil },
		func(a *models.Artefact) (*models.Version, error) {
			n := a.ApplyNewVersion(now)
			v, err := models.NewVersion(id.VersionID(uuid.New()), a.ID, n, file, actor.ID, in.ChangeNote, now)
			version = v
			return v, err
		})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(from), string(updated.Status))
	s.record(ctx, actor, audit.ActionArtefactVersionAdded, updated, map[string]any{
		"versionNumber": version.VersionNumber,
	})
	return version, nil
}

// Archive marks the artefact archived. Archiving twice succeeds without a write.
func (s *Service) Archive(ctx context.Context, actor id.Actor, artefactID id.ArtefactID) (_ *models.Artefact, err error) {
	ctx, span := s.startSpan(ctx, "artefact.archive", actor)
	defer func() { s.endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var unchanged *models.Artefact
	updated, _, err := s.execute(ctx, actor, artefactID, authz.OpArchive,
		func(a *models.Artefact) error {
			if a.Archived {
				unchanged = a
				return errAlreadyArchived
			}
			return nil
		},
		func(a *models.Artefact) (*models.Version, error) {
			a.ApplyArchive(now)
			return nil, nil
		})
	if errors.Is(err, errAlreadyArchived) {
		return unchanged, nil
	}
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionArtefactArchived, updated, map[string]any{"title": updated.Title})
	return updated, nil
}

// Submit moves an owner's draft into the review queue.
func (s *Service) Submit(ctx context.Context, actor id.Actor, artefactID id.ArtefactID) (_ *models.Artefact, err error) {
	ctx, span := s.startSpan(ctx, "artefact.submit", actor)
	defer func() { s.endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	updated, from, err := s.execute(ctx, actor, artefactID, authz.OpSubmitForReview,
		func(a *models.Artefact) error { return a.CanSubmit() },
		func(a *models.Artefact) (*models.Version, error) {
			a.ApplySubmit(now)
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(from), string(updated.Status))
	s.record(ctx, actor, audit.ActionArtefactSubmittedForReview, updated, map[string]any{"title": updated.Title})
	return updated, nil
}

// Decide records a reviewer verdict on a pending artefact.
func (s *Service) Decide(ctx context.Context, actor id.Actor, artefactID id.ArtefactID, decision models.Decision, reason string) (_ *models.Artefact, err error) {
	ctx, span := s.startSpan(ctx, "artefact.decide", actor)
	defer func() { s.endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	updated, from, err := s.execute(ctx, actor, artefactID, authz.OpReviewDecision,
		func(a *models.Artefact) error { return a.CanDecide(decision) },
		func(a *models.Artefact) (*models.Version, error) {
			a.ApplyDecision(actor.ID, decision, reason, now)
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(from), string(updated.Status))
	s.record(ctx, actor, audit.ActionArtefactReviewDecision, updated, map[string]any{
		"decision": string(decision),
		"reason":   updated.ReviewerDecision.Reason,
	})
	s.logger.InfoContext(ctx, "review decision recorded",
		"artefact_id", updated.ID.String(),
		"actor_id", actor.ID.String(),
		"decision", string(decision),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// execute authorizes against the freshly loaded artefact inside every attempt
// and retries lost compare-and-swaps. It returns the status before the write.
func (s *Service) execute(
	ctx context.Context,
	actor id.Actor,
	artefactID id.ArtefactID,
	op authz.Operation,
	validate store.ValidateFunc,
	mutate store.MutateFunc,
) (*models.Artefact, models.Status, error) {
	for attempt := 1; ; attempt++ {
		var from models.Status
		updated, err := s.store.Execute(ctx, artefactID,
			func(a *models.Artefact) error {
				from = a.Status
				if err := s.authorize(ctx, actor, a, op); err != nil {
					return err
				}
				return validate(a)
			},
			mutate,
		)
		if err == nil {
			s.metrics.IncOperation(string(op), "success")
			return updated, from, nil
		}
		if errors.Is(err, errAlreadyArchived) {
			s.metrics.IncOperation(string(op), "noop")
			return nil, from, err
		}
		if !errors.Is(err, sentinel.ErrStale) {
			s.metrics.IncOperation(string(op), outcomeOf(err))
			return nil, from, translateStoreErr(err, "failed to update artefact")
		}

		exhausted := attempt >= s.writeRetries
		s.metrics.IncConflict(string(op), exhausted)
		s.logger.WarnContext(ctx, "concurrent artefact write",
			"artefact_id", artefactID.String(),
			"op", string(op),
			"attempt", attempt,
			"request_id", requestcontext.RequestID(ctx),
		)
		if exhausted {
			s.metrics.IncOperation(string(op), "conflict")
			return nil, from, dErrors.Wrap(err, dErrors.CodeConflict, "artefact was modified concurrently, retry the request")
		}
	}
}

func (s *Service) authorize(ctx context.Context, actor id.Actor, artefact *models.Artefact, op authz.Operation) error {
	decision := authz.Decide(actor, authz.SnapshotOf(artefact), op)
	if decision.Allowed {
		return nil
	}
	s.metrics.IncDenial(string(op), string(decision.Reason))
	if op.IsWrite() {
		s.logger.InfoContext(ctx, "artefact write denied",
			"op", string(op),
			"reason", string(decision.Reason),
			"actor_id", actor.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return decision.Err()
}

func (s *Service) upload(ctx context.Context, in *models.Upload) (models.File, error) {
	start := time.Now()
	ref, err := s.blobs.Put(ctx, blob.Object{
		Name:        in.Name,
		ContentType: in.ContentType,
		Size:        in.Size,
		Body:        in.Body,
	})
	s.metrics.ObserveUpload(time.Since(start).Seconds())
	if err != nil {
		s.logger.ErrorContext(ctx, "blob upload failed",
			"file_name", in.Name,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return models.File{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to store file")
	}
	return models.File{
		URL:         ref.URL,
		ContentID:   ref.ContentID,
		Name:        in.Name,
		Size:        in.Size,
		ContentType: in.ContentType,
	}, nil
}

func (s *Service) record(ctx context.Context, actor id.Actor, action audit.Action, a *models.Artefact, fields map[string]any) {
	if s.auditPublisher == nil {
		return
	}
	details := metadata.Describe(ctx)
	for k, v := range fields {
		details[k] = v
	}
	s.auditPublisher.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		RegionID:   a.RegionID,
		Action:     action,
		TargetType: audit.TargetArtefact,
		TargetID:   a.ID.String(),
		Details:    details,
	})
}

func (s *Service) startSpan(ctx context.Context, name string, actor id.Actor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("region.id", actor.RegionID.String()),
	))
}

func (s *Service) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func translateStoreErr(err error, action string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "artefact not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}

func outcomeOf(err error) string {
	return string(dErrors.CodeOf(err))
}

func errMessage(err error) string {
	if de, ok := dErrors.As(err); ok {
		return de.Message
	}
	return err.Error()
}
