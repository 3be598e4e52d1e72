package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/coursebridge/proposal-cli/internal/db"
	"github.com/coursebridge/proposal-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS generation_runs (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	course_id          TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	requested_count    INTEGER NOT NULL DEFAULT 0,
	projects_generated INTEGER NOT NULL DEFAULT 0,
	using_real_data    BOOLEAN NOT NULL DEFAULT false,
	error              TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS courses (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	title             TEXT NOT NULL,
	level             TEXT NOT NULL DEFAULT 'undergraduate',
	learning_outcomes JSONB NOT NULL DEFAULT '[]',
	artifact_types    JSONB NOT NULL DEFAULT '[]',
	duration_weeks    INTEGER NOT NULL DEFAULT 0,
	hours_per_week    INTEGER NOT NULL DEFAULT 0,
	team_size         INTEGER NOT NULL DEFAULT 1,
	location          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS partner_entities (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                TEXT NOT NULL,
	sector              TEXT NOT NULL DEFAULT '',
	size_class          TEXT NOT NULL DEFAULT 'small',
	location            TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	inferred_needs      JSONB NOT NULL DEFAULT '[]',
	intel               JSONB,
	completeness        DOUBLE PRECISION NOT NULL DEFAULT 0,
	enrichment_batch_id TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES generation_runs(id),
	course_id    TEXT NOT NULL,
	partner_name TEXT NOT NULL,
	partner_id   TEXT,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'draft',
	final_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	needs_review BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_details (
	project_id TEXT PRIMARY KEY REFERENCES projects(id),
	proposal   JSONB NOT NULL,
	pricing    JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS project_metadata (
	project_id       TEXT PRIMARY KEY REFERENCES projects(id),
	candidate_source TEXT NOT NULL,
	score            JSONB NOT NULL,
	alignment        JSONB,
	attempts         INTEGER NOT NULL DEFAULT 0,
	model_id         TEXT,
	total_tokens     BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relevance_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cache_key  TEXT NOT NULL UNIQUE,
	candidates JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generation_runs_status ON generation_runs(status);
CREATE INDEX IF NOT EXISTS idx_generation_runs_course ON generation_runs(course_id);
CREATE INDEX IF NOT EXISTS idx_partner_entities_batch ON partner_entities(enrichment_batch_id);
CREATE INDEX IF NOT EXISTS idx_partner_entities_location ON partner_entities(location);
CREATE INDEX IF NOT EXISTS idx_projects_run ON projects(run_id);
CREATE INDEX IF NOT EXISTS idx_relevance_cache_key ON relevance_cache(cache_key);
CREATE INDEX IF NOT EXISTS idx_relevance_cache_expires ON relevance_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, courseID string, requestedCount int) (*model.GenerationRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_runs (id, course_id, status, requested_count, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, courseID, string(model.RunStatusPending), requestedCount, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.GenerationRun{
		ID:             id,
		CourseID:       courseID,
		Status:         model.RunStatusPending,
		RequestedCount: requestedCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, projectsGenerated int, usingRealData bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_runs SET status = $1, projects_generated = $2, using_real_data = $3, updated_at = $4 WHERE id = $5`,
		string(model.RunStatusCompleted), projectsGenerated, usingRealData, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.GenerationRun, error) {
	var r model.GenerationRun
	var errText *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, course_id, status, requested_count, projects_generated, using_real_data, error, created_at, updated_at
		 FROM generation_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.CourseID, &r.Status, &r.RequestedCount, &r.ProjectsGenerated, &r.UsingRealData, &errText, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if errText != nil {
		r.Error = *errText
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.GenerationRun, error) {
	query := `SELECT id, course_id, status, requested_count, projects_generated, using_real_data, error, created_at, updated_at
	          FROM generation_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CourseID != "" {
		query += fmt.Sprintf(` AND course_id = $%d`, argIdx)
		args = append(args, filter.CourseID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.GenerationRun
	for rows.Next() {
		var r model.GenerationRun
		var errText *string
		if err := rows.Scan(&r.ID, &r.CourseID, &r.Status, &r.RequestedCount, &r.ProjectsGenerated, &r.UsingRealData, &errText, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errText != nil {
			r.Error = *errText
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetCourse(ctx context.Context, courseID string) (*model.Course, error) {
	var c model.Course
	var outcomesJSON, artifactsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, level, learning_outcomes, artifact_types, duration_weeks, hours_per_week, team_size, location
		 FROM courses WHERE id = $1`,
		courseID,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.Level, &outcomesJSON, &artifactsJSON, &c.DurationWeeks, &c.HoursPerWeek, &c.TeamSize, &c.Location)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get course %s", courseID)
	}

	if err := json.Unmarshal(outcomesJSON, &c.LearningOutcomes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal learning outcomes")
	}
	if err := json.Unmarshal(artifactsJSON, &c.ArtifactTypes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal artifact types")
	}
	return &c, nil
}

const entityColumns = `id, name, sector, size_class, location, website, inferred_needs, intel, completeness`

func (s *PostgresStore) ListEnrichedBatch(ctx context.Context, batchID string, limit int) ([]model.CandidateEntity, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM partner_entities
		 WHERE enrichment_batch_id = $1
		 ORDER BY completeness DESC LIMIT $2`,
		batchID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list enriched batch %s", batchID)
	}
	defer rows.Close()

	return scanEntities(rows, model.SourceEnrichedBatch)
}

func (s *PostgresStore) ListLocalEntities(ctx context.Context, filter EntityFilter) ([]model.CandidateEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM partner_entities WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Location != "" {
		query += fmt.Sprintf(` AND location ILIKE '%%' || $%d || '%%'`, argIdx)
		args = append(args, filter.Location)
		argIdx++
	}
	if len(filter.Industries) > 0 {
		query += fmt.Sprintf(` AND sector = ANY($%d)`, argIdx)
		args = append(args, filter.Industries)
		argIdx++
	}
	query += ` ORDER BY completeness DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list local entities")
	}
	defer rows.Close()

	return scanEntities(rows, model.SourceLocalStore)
}

func scanEntities(rows pgx.Rows, source model.CandidateSource) ([]model.CandidateEntity, error) {
	var entities []model.CandidateEntity
	for rows.Next() {
		var e model.CandidateEntity
		var needsJSON []byte
		var intelJSON *[]byte

		if err := rows.Scan(&e.ID, &e.Name, &e.Sector, &e.SizeClass, &e.Location, &e.Website, &needsJSON, &intelJSON, &e.Completeness); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		if err := json.Unmarshal(needsJSON, &e.InferredNeeds); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal inferred needs")
		}
		if intelJSON != nil {
			e.Intel = &model.MarketIntel{}
			if err := json.Unmarshal(*intelJSON, e.Intel); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal intel")
			}
		}
		e.Source = source
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: scan entities iterate")
}

func (s *PostgresStore) GetCachedFilter(ctx context.Context, key string) ([]model.RankedCandidate, error) {
	var candidatesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT candidates FROM relevance_cache
		 WHERE cache_key = $1 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		key,
	).Scan(&candidatesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached filter")
	}

	var ranked []model.RankedCandidate
	if err := json.Unmarshal(candidatesJSON, &ranked); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached filter")
	}
	return ranked, nil
}

func (s *PostgresStore) SetCachedFilter(ctx context.Context, key string, ranked []model.RankedCandidate, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	candidatesJSON, err := json.Marshal(ranked)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ranked candidates")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO relevance_cache (id, cache_key, candidates, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cache_key) DO UPDATE SET candidates = $3, cached_at = $4, expires_at = $5`,
		id, key, candidatesJSON, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached filter")
}

func (s *PostgresStore) DeleteExpiredFilters(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM relevance_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired filters")
	}
	return int(tag.RowsAffected()), nil
}

// PersistProject writes the parent project row, the detail-form row, and the
// metadata row in one transaction. A failure at any point rolls back all
// three; no orphan parent can exist.
func (s *PostgresStore) PersistProject(ctx context.Context, bundle ProjectBundle) (string, error) {
	projectID := uuid.New().String()
	now := time.Now().UTC()

	proposalJSON, err := json.Marshal(bundle.Proposal)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal proposal")
	}
	pricingJSON, err := json.Marshal(bundle.Pricing)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal pricing")
	}
	scoreJSON, err := json.Marshal(bundle.Score)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal score")
	}
	var alignmentJSON []byte
	if bundle.Alignment != nil {
		alignmentJSON, err = json.Marshal(bundle.Alignment)
		if err != nil {
			return "", eris.Wrap(err, "postgres: marshal alignment")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin persist tx")
	}
	defer tx.Rollback(ctx)

	var partnerID *string
	if bundle.Candidate.ID != "" {
		partnerID = &bundle.Candidate.ID
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO projects (id, run_id, course_id, partner_name, partner_id, title, status, final_score, final_price, needs_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		projectID, bundle.RunID, bundle.Course.ID, bundle.Candidate.Name, partnerID,
		bundle.Proposal.Title, "draft", bundle.Score.Final, bundle.Pricing.FinalPrice,
		bundle.Proposal.NeedsReview, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert project")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO project_details (project_id, proposal, pricing) VALUES ($1, $2, $3)`,
		projectID, proposalJSON, pricingJSON,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert project detail")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO project_metadata (project_id, candidate_source, score, alignment, attempts, model_id, total_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		projectID, string(bundle.Candidate.Source), scoreJSON, alignmentJSON,
		bundle.Proposal.Attempts, bundle.ModelID, bundle.TotalTokens,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert project metadata")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit persist tx")
	}
	return projectID, nil
}
