package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/orchestrator"
	"github.com/trackforge/engine/internal/steps"
	"github.com/trackforge/engine/internal/store"
)

// fakeStore implements only the store.Store methods the handlers under test
// reach; any other call panics via the embedded nil interface.
type fakeStore struct {
	store.Store
	jobs   map[uuid.UUID]*entities.Job
	assets map[uuid.UUID][]*entities.Asset
	created []*entities.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uuid.UUID]*entities.Job{}, assets: map[uuid.UUID][]*entities.Asset{}}
}

func (f *fakeStore) CreateJob(ctx context.Context, job *entities.Job) error {
	job.CreatedAt = time.Now()
	f.jobs[job.ID] = job
	f.created = append(f.created, job)
	return nil
}

func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	// Mirrors internal/store/postgres's contract: an unknown ID is
	// (nil, nil), not an error.
	return f.jobs[id], nil
}

func (f *fakeStore) ListJobs(ctx context.Context, limit int) ([]*entities.Job, error) {
	out := make([]*entities.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeStore) GetAssetsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.Asset, error) {
	return f.assets[jobID], nil
}

func (f *fakeStore) GetAssetByStemType(ctx context.Context, jobID uuid.UUID, stemType entities.StemType) (*entities.Asset, error) {
	for _, a := range f.assets[jobID] {
		if a.StemType == stemType {
			return a, nil
		}
	}
	return nil, nil
}

func newTestDispatcher(t *testing.T, fs *fakeStore) *orchestrator.Dispatcher {
	t.Helper()
	deps := steps.Deps{Store: fs}
	return orchestrator.NewDispatcher(fs, deps, zap.NewNop(), monitoring.NewPrometheusMetrics(zap.NewNop()), 1, 4, time.Hour, time.Second)
}

func newTestServer(t *testing.T, fs *fakeStore) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	storage := objectstorage.New(t.TempDir())
	storageCfg := config.StorageConfig{
		MaxUploadBytes:    100 * 1024 * 1024,
		AllowedExtensions: []string{".wav", ".mp3"},
	}
	s, r := New(fs, storage, storageCfg, newTestDispatcher(t, fs), nil, nil, nil, nil, nil, zap.NewNop())
	return s, r
}

func TestCreateJob_PersistsAndReturns201(t *testing.T) {
	fs := newFakeStore()
	_, r := newTestServer(t, fs)

	body, _ := json.Marshal(map[string]string{
		"source_type":  "spotify_url",
		"source_value": "https://open.spotify.com/track/abc",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp createJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entities.JobPending, resp.Status)
	assert.Len(t, fs.created, 1)
}

func TestCreateJob_RejectsEmptySourceValue(t *testing.T) {
	fs := newFakeStore()
	_, r := newTestServer(t, fs)

	body, _ := json.Marshal(map[string]string{"source_type": "spotify_url", "source_value": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fs.created)
}

func TestListJobs_ReturnsCreatedJobs(t *testing.T) {
	fs := newFakeStore()
	job := &entities.Job{ID: uuid.New(), Status: entities.JobPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	fs.jobs[job.ID] = job
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp jobListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, job.ID, resp.Jobs[0].ID)
}

func TestGetJob_UnknownIDReturns404(t *testing.T) {
	fs := newFakeStore()
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJob_ReturnsDetailPayload(t *testing.T) {
	fs := newFakeStore()
	title := "Clair de Lune"
	job := &entities.Job{ID: uuid.New(), Status: entities.JobCompleted, Title: &title, Progress: 100, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	fs.jobs[job.ID] = job
	asset := &entities.Asset{ID: uuid.New(), JobID: job.ID, StemType: entities.StemVocals, FileSize: 1024}
	fs.assets[job.ID] = []*entities.Asset{asset}
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp jobDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Stems, 1)
	assert.Equal(t, entities.StemVocals, resp.Stems[0].Type)
	require.NotNil(t, resp.Metadata.Title)
	assert.Equal(t, title, *resp.Metadata.Title)
}

func TestGetStem_RejectsIncompleteJob(t *testing.T) {
	fs := newFakeStore()
	job := &entities.Job{ID: uuid.New(), Status: entities.JobSeparating}
	fs.jobs[job.ID] = job
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String()+"/stems/vocals", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStem_RejectsUnknownStemType(t *testing.T) {
	fs := newFakeStore()
	job := &entities.Job{ID: uuid.New(), Status: entities.JobCompleted}
	fs.jobs[job.ID] = job
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String()+"/stems/not-a-stem", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDownload_ListsAssetFiles(t *testing.T) {
	fs := newFakeStore()
	job := &entities.Job{ID: uuid.New(), Status: entities.JobCompleted}
	fs.jobs[job.ID] = job
	fs.assets[job.ID] = []*entities.Asset{
		{ID: uuid.New(), JobID: job.ID, StemType: entities.StemDrums, FilePath: "/data/stems/drums.wav"},
	}
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String()+"/download", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp downloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "/data/stems/drums.wav", resp.Files[0].AudioPath)
}

func TestSearchMusicBrainz_RequiresQuery(t *testing.T) {
	fs := newFakeStore()
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/api/search/musicbrainz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchText_ValidatesBody(t *testing.T) {
	fs := newFakeStore()
	_, r := newTestServer(t, fs)

	req := httptest.NewRequest(http.MethodPost, "/api/search/text", bytes.NewBufferString(`{"query":""}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
