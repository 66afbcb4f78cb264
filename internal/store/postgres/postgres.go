// Package postgres implements store.Store on top of PostgreSQL via sqlx,
// adapted from the connection-pool and migration pattern used throughout
// the rest of this codebase's adapters layer.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/entities"
)

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func New(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the schema if it does not already exist. Production
// deployments with history beyond the initial schema should move to
// golang-migrate; this mirrors the single-shot CreateTables pattern used
// for the rest of this repo's Phase 1 schema.
func (s *Store) Migrate() error {
	statements := []string{
		createJobsTable,
		createAssetsTable,
		createProviderConfigsTable,
		createJobsIndexes,
		createAssetsIndexes,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	s.logger.Info("schema migrated")
	return nil
}

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id                   UUID PRIMARY KEY,
    status               VARCHAR(20) NOT NULL DEFAULT 'pending',
    source_type          VARCHAR(20) NOT NULL,
    source_value         TEXT NOT NULL,
    title                TEXT,
    artist               TEXT,
    album                TEXT,
    album_art            TEXT,
    duration             INTEGER,
    isrc                 VARCHAR(12),
    spotify_id           TEXT,
    songlink_data        BYTEA,
    master_audio_path    TEXT,
    master_audio_format  TEXT,
    master_audio_service TEXT,
    progress             INTEGER NOT NULL DEFAULT 0,
    progress_message     TEXT,
    error_message        TEXT,
    preferred_provider   TEXT,
    expires_at           TIMESTAMPTZ,
    last_heartbeat       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const createAssetsTable = `
CREATE TABLE IF NOT EXISTS assets (
    id         UUID PRIMARY KEY,
    job_id     UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    type       VARCHAR(20) NOT NULL DEFAULT 'stem',
    stem_type  VARCHAR(20) NOT NULL,
    file_path  TEXT NOT NULL,
    file_size  BIGINT NOT NULL DEFAULT 0,
    mime_type  TEXT NOT NULL,
    has_midi   BOOLEAN NOT NULL DEFAULT false,
    midi_path  TEXT,
    provider   TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (job_id, stem_type)
);
`

const createProviderConfigsTable = `
CREATE TABLE IF NOT EXISTS provider_configs (
    service_name    VARCHAR(50) PRIMARY KEY,
    api_key         TEXT,
    api_secret      TEXT,
    priority        INTEGER NOT NULL DEFAULT 100,
    is_enabled      BOOLEAN NOT NULL DEFAULT true,
    rate_limit      INTEGER,
    window_seconds  INTEGER,
    current_usage   INTEGER NOT NULL DEFAULT 0,
    usage_reset_at  TIMESTAMPTZ,
    config          JSONB
);
`

const createJobsIndexes = `
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs(expires_at);
CREATE INDEX IF NOT EXISTS idx_jobs_last_heartbeat ON jobs(last_heartbeat);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const createAssetsIndexes = `
CREATE INDEX IF NOT EXISTS idx_assets_job_id ON assets(job_id);
`

func (s *Store) CreateJob(ctx context.Context, job *entities.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()
	job.CreatedAt, job.UpdatedAt, job.LastHeartbeat = now, now, now
	if job.Status == "" {
		job.Status = entities.JobPending
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, status, source_type, source_value, title, artist, album,
			progress, preferred_provider, created_at, updated_at, last_heartbeat)
		VALUES (:id, :status, :source_type, :source_value, :title, :artist, :album,
			:progress, :preferred_provider, :created_at, :updated_at, :last_heartbeat)
	`, job)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	var job entities.Job
	err := s.db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting job: %w", err)
	}
	return &job, nil
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]*entities.Job, error) {
	jobs := []*entities.Job{}
	var limitArg interface{} = limit
	if limit <= 0 {
		limitArg = nil // LIMIT NULL: every row (ResumeAll passes 0)
	}
	err := s.db.SelectContext(ctx, &jobs, `SELECT * FROM jobs ORDER BY created_at DESC LIMIT $1`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, progress int, message *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status=$1, progress=$2, progress_message=$3, updated_at=NOW(), last_heartbeat=NOW()
		WHERE id=$4
	`, status, progress, message, id)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return nil
}

func (s *Store) ApplyJobUpdate(ctx context.Context, id uuid.UUID, u *entities.PartialJobUpdate) error {
	if u == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			title                = COALESCE($1, title),
			artist               = COALESCE($2, artist),
			album                = COALESCE($3, album),
			album_art            = COALESCE($4, album_art),
			duration             = COALESCE($5, duration),
			isrc                 = COALESCE($6, isrc),
			spotify_id           = COALESCE($7, spotify_id),
			songlink_data        = COALESCE($8, songlink_data),
			master_audio_path    = COALESCE($9, master_audio_path),
			master_audio_format  = COALESCE($10, master_audio_format),
			master_audio_service = COALESCE($11, master_audio_service),
			progress_message     = COALESCE($12, progress_message),
			updated_at           = NOW(),
			last_heartbeat       = NOW()
		WHERE id = $13
	`, u.Title, u.Artist, u.Album, u.AlbumArt, u.Duration, u.ISRC, u.SpotifyID,
		nullBytes(u.SonglinkData), u.MasterAudioPath, u.MasterAudioFormat, u.MasterAudioService,
		u.ProgressMessage, id)
	if err != nil {
		return fmt.Errorf("applying job update: %w", err)
	}
	return nil
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func (s *Store) FailJob(ctx context.Context, id uuid.UUID, errMessage string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status='failed', progress=0, error_message=$1, expires_at=$2, updated_at=NOW(), last_heartbeat=NOW()
		WHERE id=$3
	`, errMessage, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return nil
}

func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status='completed', progress=100, expires_at=$1, updated_at=NOW(), last_heartbeat=NOW()
		WHERE id=$2
	`, expiresAt, id)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET last_heartbeat=NOW() WHERE id=$1`, id)
	return err
}

func (s *Store) CreateAsset(ctx context.Context, asset *entities.Asset) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	if asset.Type == "" {
		asset.Type = "stem"
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO assets (id, job_id, type, stem_type, file_path, file_size, mime_type,
			has_midi, midi_path, provider, expires_at, created_at)
		VALUES (:id, :job_id, :type, :stem_type, :file_path, :file_size, :mime_type,
			:has_midi, :midi_path, :provider, :expires_at, :created_at)
	`, asset)
	if err != nil {
		return fmt.Errorf("inserting asset: %w", err)
	}
	return nil
}

func (s *Store) GetAssetsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.Asset, error) {
	assets := []*entities.Asset{}
	err := s.db.SelectContext(ctx, &assets, `SELECT * FROM assets WHERE job_id=$1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	return assets, nil
}

func (s *Store) GetAssetByStemType(ctx context.Context, jobID uuid.UUID, stemType entities.StemType) (*entities.Asset, error) {
	var asset entities.Asset
	err := s.db.GetContext(ctx, &asset, `SELECT * FROM assets WHERE job_id=$1 AND stem_type=$2`, jobID, stemType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting asset: %w", err)
	}
	return &asset, nil
}

func (s *Store) SetAssetMidi(ctx context.Context, assetID uuid.UUID, midiPath string, fileSize int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE assets SET has_midi=true, midi_path=$1 WHERE id=$2`, midiPath, assetID)
	_ = fileSize // the assets table has no column for the MIDI file's size, so it is not stored
	return err
}

func (s *Store) DeleteAssetsByJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE job_id=$1`, jobID)
	return err
}

func (s *Store) ExpiredJobs(ctx context.Context, quietFor time.Duration) ([]*entities.Job, error) {
	jobs := []*entities.Job{}
	cutoff := time.Now().Add(-quietFor)
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs WHERE expires_at IS NOT NULL AND expires_at < NOW() AND updated_at < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("selecting expired jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	return err
}

func (s *Store) StaleNonTerminalJobs(ctx context.Context, staleAfter time.Duration) ([]*entities.Job, error) {
	jobs := []*entities.Job{}
	cutoff := time.Now().Add(-staleAfter)
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		WHERE status NOT IN ('completed', 'failed') AND last_heartbeat < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("selecting stale jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) ListProviderConfigs(ctx context.Context, serviceNames []string) ([]*entities.ProviderConfig, error) {
	configs := []*entities.ProviderConfig{}
	query, args, err := sqlx.In(`SELECT * FROM provider_configs WHERE service_name IN (?) AND is_enabled = true`, serviceNames)
	if err != nil {
		return nil, fmt.Errorf("building provider config query: %w", err)
	}
	query = s.db.Rebind(query)
	if err := s.db.SelectContext(ctx, &configs, query, args...); err != nil {
		return nil, fmt.Errorf("listing provider configs: %w", err)
	}
	return configs, nil
}

func (s *Store) IncrementProviderUsage(ctx context.Context, serviceName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provider_configs SET current_usage = current_usage + 1 WHERE service_name=$1
	`, serviceName)
	return err
}
