package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kvault/internal/artefact/models"
	"kvault/internal/platform/postgres"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/sentinel"
	txcontext "kvault/pkg/platform/tx"
)

const artefactColumns = `id, title, description, tags, classification, status, lifecycle_status,
	latest_version_number, reviewer_id, reviewer_decision, reviewer_reason, decided_at,
	owner_id, region_id, archived, archived_at, created_at, updated_at, revision`

const versionColumns = `id, artefact_id, version_number, file_url, content_id, file_name,
	file_size, content_type, change_note, uploaded_by, uploaded_at`

// PostgresStore persists artefacts. Version numbers are additionally guarded
// by UNIQUE (artefact_id, version_number).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the artefact and its first version in one transaction.
func (s *PostgresStore) Create(ctx context.Context, artefact *models.Artefact, version *models.Version) error {
	return txcontext.RunInTx(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)
		_, err := exec.ExecContext(ctx,
			`INSERT INTO artefacts (`+artefactColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			artefactArgs(artefact)...,
		)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("artefact %s: %w", artefact.ID, sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("insert artefact: %w", err)
		}
		return insertVersion(ctx, exec, version)
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, artefactID id.ArtefactID) (*models.Artefact, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+artefactColumns+` FROM artefacts WHERE id = $1`, uuid.UUID(artefactID))
	return scanArtefact(row)
}

func (s *PostgresStore) ListVersions(ctx context.Context, artefactID id.ArtefactID) ([]*models.Version, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT `+versionColumns+` FROM artefact_versions
		WHERE artefact_id = $1 ORDER BY version_number DESC`, uuid.UUID(artefactID))
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	out := []*models.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

// List evaluates the filter in SQL. The predicate mirrors models.Filter.Matches.
func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Artefact, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + artefactColumns + ` FROM artefacts WHERE ` + where +
		` ORDER BY updated_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artefacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artefact
	for rows.Next() {
		a, err := scanArtefact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artefacts: %w", err)
	}
	return out, nil
}

func filterClause(f models.Filter) (string, []any) {
	args := []any{uuid.UUID(f.RegionID)}
	clauses := []string{"region_id = $1"}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !f.IncludeArchived {
		clauses = append(clauses, "NOT archived")
	}
	if f.VisibleTo != nil {
		clauses = append(clauses, "(owner_id = "+next(uuid.UUID(*f.VisibleTo))+
			" OR (status = 'approved' AND classification <> 'confidential'))")
	}
	if f.Status != nil {
		clauses = append(clauses, "status = "+next(string(*f.Status)))
	}
	if f.Classification != nil {
		clauses = append(clauses, "classification = "+next(string(*f.Classification)))
	}
	if f.Tag != "" {
		clauses = append(clauses, next(f.Tag)+" = ANY(tags)")
	}
	for _, term := range f.Terms {
		p := next("%" + escapeLike(term) + "%")
		clauses = append(clauses, "(title ILIKE "+p+" OR description ILIKE "+p+
			" OR EXISTS (SELECT 1 FROM unnest(tags) AS t(tag) WHERE t.tag ILIKE "+p+"))")
	}
	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Tags counts tags over non-archived artefacts. COLLATE "C" keeps the
// tie-break byte ordered like the in-memory store.
func (s *PostgresStore) Tags(ctx context.Context, regionID id.RegionID, limit int) ([]models.TagCount, error) {
	if limit <= 0 || limit > models.MaxTagResults {
		limit = models.MaxTagResults
	}
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT t.tag, count(*) AS n
		FROM artefacts, unnest(tags) AS t(tag)
		WHERE region_id = $1 AND NOT archived
		GROUP BY t.tag
		ORDER BY n DESC, t.tag COLLATE "C" ASC
		LIMIT $2`, uuid.UUID(regionID), limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate tags: %w", err)
	}
	defer rows.Close()

	out := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

// Execute loads the artefact, applies the callbacks, and commits only if the
// stored revision is unchanged. The optional version row shares the transaction.
func (s *PostgresStore) Execute(ctx context.Context, artefactID id.ArtefactID, validate ValidateFunc, mutate MutateFunc) (*models.Artefact, error) {
	current, err := s.FindByID(ctx, artefactID)
	if err != nil {
		return nil, err
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	expected := current.Revision
	version, err := mutate(current)
	if err != nil {
		return nil, err
	}
	current.Revision = expected + 1

	err = txcontext.RunInTx(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)
		res, err := exec.ExecContext(ctx,
			`UPDATE artefacts SET
				title = $3, description = $4, tags = $5, classification = $6, status = $7,
				lifecycle_status = $8, latest_version_number = $9, reviewer_id = $10,
				reviewer_decision = $11, reviewer_reason = $12, decided_at = $13,
				archived = $14, archived_at = $15, updated_at = $16, revision = $17
			WHERE id = $1 AND revision = $2`,
			uuid.UUID(current.ID), expected,
			current.Title, current.Description, pq.Array(current.Tags),
			string(current.Classification), string(current.Status), string(current.LifecycleStatus),
			current.LatestVersionNumber, reviewerID(current), reviewerDecision(current),
			reviewerReason(current), decidedAt(current),
			current.Archived, current.ArchivedAt, current.UpdatedAt, current.Revision,
		)
		if err != nil {
			return fmt.Errorf("update artefact: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update artefact: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("artefact %s at revision %d: %w", artefactID, expected, sentinel.ErrStale)
		}
		if version == nil {
			return nil
		}
		return insertVersion(ctx, exec, version)
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

func insertVersion(ctx context.Context, exec txcontext.DBTX, v *models.Version) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO artefact_versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(v.ID), uuid.UUID(v.ArtefactID), v.VersionNumber, v.URL, v.ContentID, v.Name,
		v.Size, v.ContentType, v.ChangeNote, uuid.UUID(v.UploadedBy), v.UploadedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("version %d of %s: %w", v.VersionNumber, v.ArtefactID, sentinel.ErrStale)
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func artefactArgs(a *models.Artefact) []any {
	return []any{
		uuid.UUID(a.ID), a.Title, a.Description, pq.Array(a.Tags), string(a.Classification),
		string(a.Status), string(a.LifecycleStatus), a.LatestVersionNumber,
		reviewerID(a), reviewerDecision(a), reviewerReason(a), decidedAt(a),
		uuid.UUID(a.OwnerID), uuid.UUID(a.RegionID), a.Archived, a.ArchivedAt,
		a.CreatedAt, a.UpdatedAt, a.Revision,
	}
}

func reviewerID(a *models.Artefact) uuid.NullUUID {
	if a.ReviewerDecision == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(a.ReviewerDecision.ReviewerID), Valid: true}
}

func reviewerDecision(a *models.Artefact) sql.NullString {
	if a.ReviewerDecision == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(a.ReviewerDecision.Decision), Valid: true}
}

func reviewerReason(a *models.Artefact) sql.NullString {
	if a.ReviewerDecision == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.ReviewerDecision.Reason, Valid: true}
}

func decidedAt(a *models.Artefact) sql.NullTime {
	if a.ReviewerDecision == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: a.ReviewerDecision.DecidedAt, Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtefact(row scanner) (*models.Artefact, error) {
	var (
		a              models.Artefact
		rawID          uuid.UUID
		ownerID        uuid.UUID
		regionID       uuid.UUID
		tags           pq.StringArray
		classification string
		status         string
		lifecycle      string
		revID          uuid.NullUUID
		revDecision    sql.NullString
		revReason      sql.NullString
		revAt          sql.NullTime
		archivedAt     sql.NullTime
	)
	err := row.Scan(
		&rawID, &a.Title, &a.Description, &tags, &classification, &status, &lifecycle,
		&a.LatestVersionNumber, &revID, &revDecision, &revReason, &revAt,
		&ownerID, &regionID, &a.Archived, &archivedAt, &a.CreatedAt, &a.UpdatedAt, &a.Revision,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan artefact: %w", err)
	}

	a.ID = id.ArtefactID(rawID)
	a.OwnerID = id.UserID(ownerID)
	a.RegionID = id.RegionID(regionID)
	a.Tags = []string(tags)
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.Classification = models.Classification(classification)
	a.Status = models.Status(status)
	a.LifecycleStatus = models.LifecycleStatus(lifecycle)
	if revDecision.Valid {
		a.ReviewerDecision = &models.ReviewerDecision{
			ReviewerID: id.UserID(revID.UUID),
			Decision:   models.Decision(revDecision.String),
			Reason:     revReason.String,
			DecidedAt:  revAt.Time.UTC(),
		}
	}
	if archivedAt.Valid {
		at := archivedAt.Time.UTC()
		a.ArchivedAt = &at
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanVersion(row scanner) (*models.Version, error) {
	var (
		v          models.Version
		rawID      uuid.UUID
		artefactID uuid.UUID
		uploadedBy uuid.UUID
		uploadedAt time.Time
	)
	err := row.Scan(&rawID, &artefactID, &v.VersionNumber, &v.URL, &v.ContentID, &v.Name,
		&v.Size, &v.ContentType, &v.ChangeNote, &uploadedBy, &uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	v.ID = id.VersionID(rawID)
	v.ArtefactID = id.ArtefactID(artefactID)
	v.UploadedBy = id.UserID(uploadedBy)
	v.UploadedAt = uploadedAt.UTC()
	return &v, nil
}
