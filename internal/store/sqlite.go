package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/coursebridge/proposal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and single-operator deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS generation_runs (
	id                 TEXT PRIMARY KEY,
	course_id          TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	requested_count    INTEGER NOT NULL DEFAULT 0,
	projects_generated INTEGER NOT NULL DEFAULT 0,
	using_real_data    INTEGER NOT NULL DEFAULT 0,
	error              TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS courses (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	title             TEXT NOT NULL,
	level             TEXT NOT NULL DEFAULT 'undergraduate',
	learning_outcomes TEXT NOT NULL DEFAULT '[]',
	artifact_types    TEXT NOT NULL DEFAULT '[]',
	duration_weeks    INTEGER NOT NULL DEFAULT 0,
	hours_per_week    INTEGER NOT NULL DEFAULT 0,
	team_size         INTEGER NOT NULL DEFAULT 1,
	location          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS partner_entities (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	sector              TEXT NOT NULL DEFAULT '',
	size_class          TEXT NOT NULL DEFAULT 'small',
	location            TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	inferred_needs      TEXT NOT NULL DEFAULT '[]',
	intel               TEXT,
	completeness        REAL NOT NULL DEFAULT 0,
	enrichment_batch_id TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES generation_runs(id),
	course_id    TEXT NOT NULL,
	partner_name TEXT NOT NULL,
	partner_id   TEXT,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'draft',
	final_score  REAL NOT NULL DEFAULT 0,
	final_price  REAL NOT NULL DEFAULT 0,
	needs_review INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_details (
	project_id TEXT PRIMARY KEY REFERENCES projects(id),
	proposal   TEXT NOT NULL,
	pricing    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_metadata (
	project_id       TEXT PRIMARY KEY REFERENCES projects(id),
	candidate_source TEXT NOT NULL,
	score            TEXT NOT NULL,
	alignment        TEXT,
	attempts         INTEGER NOT NULL DEFAULT 0,
	model_id         TEXT,
	total_tokens     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relevance_cache (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL UNIQUE,
	candidates TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generation_runs_status ON generation_runs(status);
CREATE INDEX IF NOT EXISTS idx_generation_runs_course ON generation_runs(course_id);
CREATE INDEX IF NOT EXISTS idx_partner_entities_batch ON partner_entities(enrichment_batch_id);
CREATE INDEX IF NOT EXISTS idx_projects_run ON projects(run_id);
CREATE INDEX IF NOT EXISTS idx_relevance_cache_expires ON relevance_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, courseID string, requestedCount int) (*model.GenerationRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_runs (id, course_id, status, requested_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, courseID, string(model.RunStatusPending), requestedCount, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, projectsGenerated int, usingRealData bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_runs SET status = ?, projects_generated = ?, using_real_data = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), projectsGenerated, usingRealData, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.GenerationRun, error) {
	var r model.GenerationRun
	var errText sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, status, requested_count, projects_generated, using_real_data, error, created_at, updated_at
		 FROM generation_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.CourseID, &r.Status, &r.RequestedCount, &r.ProjectsGenerated, &r.UsingRealData, &errText, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	r.Error = errText.String
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.GenerationRun, error) {
	query := `SELECT id, course_id, status, requested_count, projects_generated, using_real_data, error, created_at, updated_at
	          FROM generation_runs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CourseID != "" {
		query += ` AND course_id = ?`
		args = append(args, filter.CourseID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.GenerationRun
	for rows.Next() {
		var r model.GenerationRun
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.CourseID, &r.Status, &r.RequestedCount, &r.ProjectsGenerated, &r.UsingRealData, &errText, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetCourse(ctx context.Context, courseID string) (*model.Course, error) {
	var c model.Course
	var outcomesJSON, artifactsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, level, learning_outcomes, artifact_types, duration_weeks, hours_per_week, team_size, location
		 FROM courses WHERE id = ?`,
		courseID,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.Level, &outcomesJSON, &artifactsJSON, &c.DurationWeeks, &c.HoursPerWeek, &c.TeamSize, &c.Location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get course %s", courseID)
	}

	if err := json.Unmarshal([]byte(outcomesJSON), &c.LearningOutcomes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal learning outcomes")
	}
	if err := json.Unmarshal([]byte(artifactsJSON), &c.ArtifactTypes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal artifact types")
	}
	return &c, nil
}

func (s *SQLiteStore) ListEnrichedBatch(ctx context.Context, batchID string, limit int) ([]model.CandidateEntity, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM partner_entities
		 WHERE enrichment_batch_id = ?
		 ORDER BY completeness DESC LIMIT ?`,
		batchID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list enriched batch %s", batchID)
	}
	defer rows.Close()

	return scanEntitiesSQL(rows, model.SourceEnrichedBatch)
}

func (s *SQLiteStore) ListLocalEntities(ctx context.Context, filter EntityFilter) ([]model.CandidateEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM partner_entities WHERE 1=1`
	args := []any{}

	if filter.Location != "" {
		query += ` AND location LIKE '%' || ? || '%'`
		args = append(args, filter.Location)
	}
	if len(filter.Industries) > 0 {
		query += ` AND sector IN (?` + strings.Repeat(", ?", len(filter.Industries)-1) + `)`
		for _, ind := range filter.Industries {
			args = append(args, ind)
		}
	}
	query += ` ORDER BY completeness DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list local entities")
	}
	defer rows.Close()

	return scanEntitiesSQL(rows, model.SourceLocalStore)
}

func scanEntitiesSQL(rows *sql.Rows, source model.CandidateSource) ([]model.CandidateEntity, error) {
	var entities []model.CandidateEntity
	for rows.Next() {
		var e model.CandidateEntity
		var needsJSON string
		var intelJSON sql.NullString

		if err := rows.Scan(&e.ID, &e.Name, &e.Sector, &e.SizeClass, &e.Location, &e.Website, &needsJSON, &intelJSON, &e.Completeness); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		if err := json.Unmarshal([]byte(needsJSON), &e.InferredNeeds); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal inferred needs")
		}
		if intelJSON.Valid {
			e.Intel = &model.MarketIntel{}
			if err := json.Unmarshal([]byte(intelJSON.String), e.Intel); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal intel")
			}
		}
		e.Source = source
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: scan entities iterate")
}

func (s *SQLiteStore) GetCachedFilter(ctx context.Context, key string) ([]model.RankedCandidate, error) {
	var candidatesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT candidates FROM relevance_cache
		 WHERE cache_key = ? AND expires_at > ?
		 ORDER BY cached_at DESC LIMIT 1`,
		key, time.Now().UTC(),
	).Scan(&candidatesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached filter")
	}

	var ranked []model.RankedCandidate
	if err := json.Unmarshal([]byte(candidatesJSON), &ranked); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached filter")
	}
	return ranked, nil
}

func (s *SQLiteStore) SetCachedFilter(ctx context.Context, key string, ranked []model.RankedCandidate, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	candidatesJSON, err := json.Marshal(ranked)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal ranked candidates")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO relevance_cache (id, cache_key, candidates, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET candidates = excluded.candidates, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		id, key, string(candidatesJSON), now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached filter")
}

func (s *SQLiteStore) DeleteExpiredFilters(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM relevance_cache WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired filters")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

// PersistProject mirrors the Postgres transaction: all three rows commit
// together or not at all.
func (s *SQLiteStore) PersistProject(ctx context.Context, bundle ProjectBundle) (string, error) {
	projectID := uuid.New().String()
	now := time.Now().UTC()

	proposalJSON, err := json.Marshal(bundle.Proposal)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal proposal")
	}
	pricingJSON, err := json.Marshal(bundle.Pricing)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal pricing")
	}
	scoreJSON, err := json.Marshal(bundle.Score)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal score")
	}
	var alignmentJSON any
	if bundle.Alignment != nil {
		raw, err := json.Marshal(bundle.Alignment)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: marshal alignment")
		}
		alignmentJSON = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin persist tx")
	}
	defer tx.Rollback()

	var partnerID any
	if bundle.Candidate.ID != "" {
		partnerID = bundle.Candidate.ID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, run_id, course_id, partner_name, partner_id, title, status, final_score, final_price, needs_review, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, bundle.RunID, bundle.Course.ID, bundle.Candidate.Name, partnerID,
		bundle.Proposal.Title, "draft", bundle.Score.Final, bundle.Pricing.FinalPrice,
		bundle.Proposal.NeedsReview, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert project")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_details (project_id, proposal, pricing) VALUES (?, ?, ?)`,
		projectID, string(proposalJSON), string(pricingJSON),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert project detail")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_metadata (project_id, candidate_source, score, alignment, attempts, model_id, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, string(bundle.Candidate.Source), string(scoreJSON), alignmentJSON,
		bundle.Proposal.Attempts, bundle.ModelID, bundle.TotalTokens,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert project metadata")
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit persist tx")
	}
	return projectID, nil
}
