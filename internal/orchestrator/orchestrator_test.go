package orchestrator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/providers"
	"github.com/trackforge/engine/internal/steps"
	"github.com/trackforge/engine/internal/store"
)

// fakeStore mirrors internal/steps's test double; the orchestrator only
// needs the subset of store.Store it actually calls.
type fakeStore struct {
	job    *entities.Job
	assets []*entities.Asset
	failed bool
	failMsg string
}

func (f *fakeStore) CreateJob(ctx context.Context, job *entities.Job) error { return nil }
func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	return f.job, nil
}
func (f *fakeStore) ListJobs(ctx context.Context, limit int) ([]*entities.Job, error) {
	return []*entities.Job{f.job}, nil
}
func (f *fakeStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, progress int, message *string) error {
	f.job.Status = status
	f.job.Progress = progress
	return nil
}
func (f *fakeStore) ApplyJobUpdate(ctx context.Context, id uuid.UUID, update *entities.PartialJobUpdate) error {
	f.job.Apply(update)
	return nil
}
func (f *fakeStore) FailJob(ctx context.Context, id uuid.UUID, errMessage string, expiresAt time.Time) error {
	f.failed = true
	f.failMsg = errMessage
	f.job.Status = entities.JobFailed
	return nil
}
func (f *fakeStore) CompleteJob(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	f.job.Status = entities.JobCompleted
	f.job.Progress = 100
	return nil
}
func (f *fakeStore) Touch(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeStore) CreateAsset(ctx context.Context, asset *entities.Asset) error {
	f.assets = append(f.assets, asset)
	return nil
}
func (f *fakeStore) GetAssetsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.Asset, error) {
	return f.assets, nil
}
func (f *fakeStore) GetAssetByStemType(ctx context.Context, jobID uuid.UUID, stemType entities.StemType) (*entities.Asset, error) {
	for _, a := range f.assets {
		if a.StemType == stemType {
			return a, nil
		}
	}
	return nil, errors.New("not found")
}
func (f *fakeStore) SetAssetMidi(ctx context.Context, assetID uuid.UUID, midiPath string, fileSize int64) error {
	return nil
}
func (f *fakeStore) DeleteAssetsByJob(ctx context.Context, jobID uuid.UUID) error { return nil }
func (f *fakeStore) ExpiredJobs(ctx context.Context, quietFor time.Duration) ([]*entities.Job, error) {
	return nil, nil
}
func (f *fakeStore) DeleteJob(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeStore) StaleNonTerminalJobs(ctx context.Context, staleAfter time.Duration) ([]*entities.Job, error) {
	return nil, nil
}
func (f *fakeStore) ListProviderConfigs(ctx context.Context, serviceNames []string) ([]*entities.ProviderConfig, error) {
	return nil, nil
}
func (f *fakeStore) IncrementProviderUsage(ctx context.Context, serviceName string) error { return nil }
func (f *fakeStore) Close() error                                                         { return nil }

var _ store.Store = (*fakeStore)(nil)

// readyJob builds a job whose every step short-circuits, so the state
// machine can be exercised without real provider credentials.
func readyJob(t *testing.T, dir string) (*entities.Job, []*entities.Asset) {
	t.Helper()
	masterPath := dir + "/master.flac"
	require.NoError(t, os.WriteFile(masterPath, []byte("data"), 0o644))

	title, artist, isrc := "Song", "Artist", "US123"
	job := &entities.Job{
		ID:              uuid.New(),
		Status:          entities.JobPending,
		SourceType:      entities.SourceSpotifyURL,
		Title:           &title,
		Artist:          &artist,
		ISRC:            &isrc,
		SonglinkData:    []byte(`{}`),
		MasterAudioPath: &masterPath,
	}

	jobID := job.ID
	assets := make([]*entities.Asset, 0, 5)
	for _, st := range []entities.StemType{entities.StemVocals, entities.StemDrums, entities.StemBass, entities.StemMelody, entities.StemInstrumental} {
		hasMidi := entities.TonalStemTypes[st]
		assets = append(assets, &entities.Asset{ID: uuid.New(), JobID: jobID, Type: "stem", StemType: st, HasMidi: hasMidi})
	}
	return job, assets
}

func newTestDispatcher(t *testing.T, fs *fakeStore) *Dispatcher {
	t.Helper()
	logger := zap.NewNop()
	deps := steps.Deps{
		Store:    fs,
		Registry: providers.NewRegistry(nil),
		Storage:  objectstorage.New(t.TempDir()),
	}
	metrics := monitoring.NewPrometheusMetrics(logger)
	return NewDispatcher(fs, deps, logger, metrics, 1, 4, time.Hour, time.Second)
}

func TestRunOneStep_DrivesJobThroughShortCircuitingPipeline(t *testing.T) {
	job, assets := readyJob(t, t.TempDir())
	fs := &fakeStore{job: job, assets: assets}
	d := newTestDispatcher(t, fs)

	expected := []entities.JobStatus{
		entities.JobIdentifying,
		entities.JobAcquiring,
		entities.JobSeparating,
		entities.JobGeneratingMidi,
		entities.JobCompleted,
	}
	for _, want := range expected {
		d.runOneStep(job.ID)
		assert.Equal(t, want, fs.job.Status)
	}
	assert.False(t, fs.failed)
	assert.Equal(t, 100, fs.job.Progress)
}

func TestRunOneStep_SeparateFailureMarksJobFailed(t *testing.T) {
	masterPath := t.TempDir() + "/master.flac"
	require.NoError(t, os.WriteFile(masterPath, []byte("data"), 0o644))

	job := &entities.Job{
		ID:              uuid.New(),
		Status:          entities.JobAcquiring,
		MasterAudioPath: &masterPath,
	}
	fs := &fakeStore{job: job}
	d := newTestDispatcher(t, fs) // no stem providers registered -> Separate fails

	d.runOneStep(job.ID)

	assert.True(t, fs.failed)
	assert.Equal(t, entities.JobFailed, fs.job.Status)
	assert.NotEmpty(t, fs.failMsg)
}

func TestRunOneStep_TerminalJobsAreNotResubmitted(t *testing.T) {
	job := &entities.Job{ID: uuid.New(), Status: entities.JobCompleted}
	fs := &fakeStore{job: job}
	d := newTestDispatcher(t, fs)

	d.runOneStep(job.ID)

	assert.Equal(t, entities.JobCompleted, fs.job.Status)
	assert.Len(t, d.queue, 0)
}
