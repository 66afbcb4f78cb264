package steps

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/providers"
	"github.com/trackforge/engine/internal/store"
)

// fakeStore is an in-memory store.Store for exercising step handlers
// without a database.
type fakeStore struct {
	jobs   map[uuid.UUID]*entities.Job
	assets map[uuid.UUID][]*entities.Asset
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uuid.UUID]*entities.Job{}, assets: map[uuid.UUID][]*entities.Asset{}}
}

func (f *fakeStore) CreateJob(ctx context.Context, job *entities.Job) error {
	f.jobs[job.ID] = job
	return nil
}
func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return j, nil
}
func (f *fakeStore) ListJobs(ctx context.Context, limit int) ([]*entities.Job, error) { return nil, nil }
func (f *fakeStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, progress int, message *string) error {
	return nil
}
func (f *fakeStore) ApplyJobUpdate(ctx context.Context, id uuid.UUID, update *entities.PartialJobUpdate) error {
	return nil
}
func (f *fakeStore) FailJob(ctx context.Context, id uuid.UUID, errMessage string, expiresAt time.Time) error {
	return nil
}
func (f *fakeStore) CompleteJob(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	return nil
}
func (f *fakeStore) Touch(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeStore) CreateAsset(ctx context.Context, asset *entities.Asset) error {
	f.assets[asset.JobID] = append(f.assets[asset.JobID], asset)
	return nil
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
	return nil, errors.New("not found")
}
func (f *fakeStore) SetAssetMidi(ctx context.Context, assetID uuid.UUID, midiPath string, fileSize int64) error {
	for _, list := range f.assets {
		for _, a := range list {
			if a.ID == assetID {
				a.HasMidi = true
				a.MidiPath = &midiPath
			}
		}
	}
	return nil
}
func (f *fakeStore) DeleteAssetsByJob(ctx context.Context, jobID uuid.UUID) error {
	delete(f.assets, jobID)
	return nil
}
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

type fakeMidiProvider struct {
	name    string
	failFor entities.StemType
}

func (p *fakeMidiProvider) Name() string       { return p.name }
func (p *fakeMidiProvider) IsConfigured() bool { return true }
func (p *fakeMidiProvider) Generate(ctx context.Context, audioPath, outputDir string, stemType entities.StemType) (*providers.MidiResult, error) {
	if stemType == p.failFor {
		return nil, errors.New("transcription failed for " + string(stemType))
	}
	return &providers.MidiResult{MidiPath: outputDir + "/" + string(stemType) + ".mid", FileSize: 42}, nil
}

func TestIdentify_ShortCircuitsWhenAlreadyIdentified(t *testing.T) {
	title, artist, isrc := "Song", "Artist", "US123"
	job := &entities.Job{
		ID:           uuid.New(),
		SourceType:   entities.SourceSpotifyURL,
		Title:        &title,
		Artist:       &artist,
		ISRC:         &isrc,
		SonglinkData: []byte(`{"tidal":"1"}`),
	}
	reg := providers.NewRegistry(nil)
	d := Deps{Store: newFakeStore(), Registry: reg, Storage: objectstorage.New(t.TempDir())}

	update, err := Identify(context.Background(), d, job)
	require.NoError(t, err)
	assert.Nil(t, update.Title)
	assert.Nil(t, update.SonglinkData)
}

func TestIdentify_FileUploadSkipsIdentification(t *testing.T) {
	job := &entities.Job{ID: uuid.New(), SourceType: entities.SourceFileUpload, SourceValue: "uploads/song.mp3"}
	reg := providers.NewRegistry(nil)
	d := Deps{Store: newFakeStore(), Registry: reg, Storage: objectstorage.New(t.TempDir())}

	update, err := Identify(context.Background(), d, job)
	require.NoError(t, err)
	require.NotNil(t, update.ProgressMessage)
	assert.Contains(t, *update.ProgressMessage, "uploaded file")
}

func TestAcquire_FileUploadUsesUploadedBytes(t *testing.T) {
	job := &entities.Job{ID: uuid.New(), SourceType: entities.SourceFileUpload, SourceValue: "uploads/song.flac"}
	reg := providers.NewRegistry(nil)
	d := Deps{Store: newFakeStore(), Registry: reg, Storage: objectstorage.New(t.TempDir())}

	update, err := Acquire(context.Background(), d, job)
	require.NoError(t, err)
	require.NotNil(t, update.MasterAudioPath)
	assert.Equal(t, "uploads/song.flac", *update.MasterAudioPath)
	assert.Equal(t, "FLAC", *update.MasterAudioFormat)
	assert.Equal(t, "upload", *update.MasterAudioService)
}

func TestAcquire_ShortCircuitsWhenMasterAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	masterPath := dir + "/master.flac"
	require.NoError(t, os.WriteFile(masterPath, []byte("data"), 0o644))

	job := &entities.Job{ID: uuid.New(), SourceType: entities.SourceISRC, MasterAudioPath: &masterPath}
	reg := providers.NewRegistry(nil)
	d := Deps{Store: newFakeStore(), Registry: reg, Storage: objectstorage.New(dir)}

	update, err := Acquire(context.Background(), d, job)
	require.NoError(t, err)
	assert.Nil(t, update.MasterAudioPath)
}

func TestSeparate_SkipsStemsAlreadyPersisted(t *testing.T) {
	jobID := uuid.New()
	masterPath := t.TempDir() + "/master.flac"
	require.NoError(t, os.WriteFile(masterPath, []byte("data"), 0o644))
	job := &entities.Job{ID: jobID, MasterAudioPath: &masterPath}

	fs := newFakeStore()
	for _, st := range []entities.StemType{entities.StemVocals, entities.StemDrums, entities.StemBass, entities.StemMelody, entities.StemInstrumental} {
		fs.assets[jobID] = append(fs.assets[jobID], &entities.Asset{ID: uuid.New(), JobID: jobID, Type: "stem", StemType: st})
	}

	reg := providers.NewRegistry(nil)
	d := Deps{Store: fs, Registry: reg, Storage: objectstorage.New(t.TempDir())}

	update, err := Separate(context.Background(), d, job)
	require.NoError(t, err)
	require.NotNil(t, update.ProgressMessage)
	assert.Contains(t, *update.ProgressMessage, "already separated")
}

func TestSeparate_RequiresMasterAudioPath(t *testing.T) {
	job := &entities.Job{ID: uuid.New()}
	reg := providers.NewRegistry(nil)
	d := Deps{Store: newFakeStore(), Registry: reg, Storage: objectstorage.New(t.TempDir())}

	_, err := Separate(context.Background(), d, job)
	assert.Error(t, err)
}

func TestGenerateMidi_ContinuesPastPerStemFailure(t *testing.T) {
	jobID := uuid.New()
	job := &entities.Job{ID: jobID}

	fs := newFakeStore()
	vocals := &entities.Asset{ID: uuid.New(), JobID: jobID, Type: "stem", StemType: entities.StemVocals, FilePath: "vocals.wav"}
	bass := &entities.Asset{ID: uuid.New(), JobID: jobID, Type: "stem", StemType: entities.StemBass, FilePath: "bass.wav"}
	drums := &entities.Asset{ID: uuid.New(), JobID: jobID, Type: "stem", StemType: entities.StemDrums, FilePath: "drums.wav"}
	fs.assets[jobID] = []*entities.Asset{vocals, bass, drums}

	reg := providers.NewRegistry(nil)
	reg.RegisterMidi(&fakeMidiProvider{name: "fake_midi", failFor: entities.StemBass})

	d := Deps{Store: fs, Registry: reg, Storage: objectstorage.New(t.TempDir())}

	update, err := GenerateMidi(context.Background(), d, job)
	require.NoError(t, err)
	require.NotNil(t, update.ProgressMessage)

	assert.True(t, vocals.HasMidi)
	assert.False(t, bass.HasMidi)
	assert.False(t, drums.HasMidi) // drums is not tonal, never attempted
}

func TestGenerateMidi_FailsWhenNoStemsExist(t *testing.T) {
	job := &entities.Job{ID: uuid.New()}
	reg := providers.NewRegistry(nil)
	d := Deps{Store: newFakeStore(), Registry: reg, Storage: objectstorage.New(t.TempDir())}

	_, err := GenerateMidi(context.Background(), d, job)
	assert.Error(t, err)
}
