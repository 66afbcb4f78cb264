// Package store defines the durable-state contract for jobs, assets, and
// provider configs. internal/store/postgres provides the sqlx-backed
// implementation; step handlers and the orchestrator depend only on this
// interface.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trackforge/engine/internal/entities"
)

type Store interface {
	CreateJob(ctx context.Context, job *entities.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*entities.Job, error)

	// UpdateJobStatus advances status/progress/message and bumps
	// last_heartbeat + updated_at; used at every step boundary.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, progress int, message *string) error

	// ApplyJobUpdate merges a step's partial update into the row.
	ApplyJobUpdate(ctx context.Context, id uuid.UUID, update *entities.PartialJobUpdate) error

	// FailJob sets status=failed, progress=0, error_message, and
	// (per Open Question #1) expires_at = now + retention window.
	FailJob(ctx context.Context, id uuid.UUID, errMessage string, expiresAt time.Time) error

	// CompleteJob sets status=completed, progress=100, expires_at.
	CompleteJob(ctx context.Context, id uuid.UUID, expiresAt time.Time) error

	// Touch bumps last_heartbeat without changing status. The step handlers
	// do not call it; last_heartbeat advances only at step boundaries.
	Touch(ctx context.Context, id uuid.UUID) error

	CreateAsset(ctx context.Context, asset *entities.Asset) error
	GetAssetsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.Asset, error)
	GetAssetByStemType(ctx context.Context, jobID uuid.UUID, stemType entities.StemType) (*entities.Asset, error)
	SetAssetMidi(ctx context.Context, assetID uuid.UUID, midiPath string, fileSize int64) error
	DeleteAssetsByJob(ctx context.Context, jobID uuid.UUID) error

	// ExpiredJobs returns jobs whose expires_at has passed and whose
	// updated_at is older than quietFor, so the Reaper never races an
	// orchestrator still actively writing the row (spec.md §5).
	ExpiredJobs(ctx context.Context, quietFor time.Duration) ([]*entities.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// StaleNonTerminalJobs returns jobs stuck in a non-terminal status
	// whose last_heartbeat is older than staleAfter (Open Question #3).
	StaleNonTerminalJobs(ctx context.Context, staleAfter time.Duration) ([]*entities.Job, error)

	ListProviderConfigs(ctx context.Context, serviceNames []string) ([]*entities.ProviderConfig, error)
	IncrementProviderUsage(ctx context.Context, serviceName string) error

	Close() error
}
