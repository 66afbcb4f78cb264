package reaper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/store"
)

// fakeStore implements only the store.Store methods deleteExpired calls;
// the embedded nil interface panics if any other method is reached, which
// would indicate this test is exercising more of the Reaper than intended.
type fakeStore struct {
	store.Store
	expired    []*entities.Job
	deleted    []uuid.UUID
	failDelete map[uuid.UUID]bool
}

func (f *fakeStore) ExpiredJobs(ctx context.Context, quietFor time.Duration) ([]*entities.Job, error) {
	return f.expired, nil
}
func (f *fakeStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if f.failDelete[id] {
		return assert.AnError
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func TestDeleteExpired_RemovesJobDirsAndRows(t *testing.T) {
	root := t.TempDir()
	storage := objectstorage.New(root)

	job := &entities.Job{ID: uuid.New()}
	audioDir := storage.AudioDir(job.ID.String())
	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(audioDir, "master.flac"), []byte("x"), 0o644))

	fs := &fakeStore{expired: []*entities.Job{job}, failDelete: map[uuid.UUID]bool{}}
	r := &Reaper{store: fs, storage: storage, logger: zap.NewNop(), metrics: monitoring.NewPrometheusMetrics(zap.NewNop())}

	deleted := r.deleteExpired(context.Background())

	assert.Equal(t, 1, deleted)
	assert.Contains(t, fs.deleted, job.ID)
	_, err := os.Stat(audioDir)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteExpired_SkipsJobOnDeleteFailure(t *testing.T) {
	storage := objectstorage.New(t.TempDir())
	job := &entities.Job{ID: uuid.New()}

	fs := &fakeStore{expired: []*entities.Job{job}, failDelete: map[uuid.UUID]bool{job.ID: true}}
	r := &Reaper{store: fs, storage: storage, logger: zap.NewNop(), metrics: monitoring.NewPrometheusMetrics(zap.NewNop())}

	deleted := r.deleteExpired(context.Background())

	assert.Equal(t, 0, deleted)
	assert.Empty(t, fs.deleted)
}
