// Package steps implements the four pipeline step handlers: identify,
// acquire, separate, generate_midi. Each is a function consuming a Job
// snapshot and yielding a partial update; the Orchestrator applies the
// update and persists it (spec.md §4.2).
package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trackforge/engine/internal/apperr"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/providers"
	"github.com/trackforge/engine/internal/store"
)

type Deps struct {
	Store    store.Store
	Registry *providers.Registry
	Storage  *objectstorage.Storage
}

// Identify resolves canonical track metadata. Short-circuits when title,
// artist, isrc, and songlink_data are already present.
func Identify(ctx context.Context, d Deps, job *entities.Job) (*entities.PartialJobUpdate, error) {
	if job.Identified() {
		return &entities.PartialJobUpdate{}, nil
	}

	if job.SourceType == entities.SourceFileUpload {
		// An uploaded file has no canonical identity yet; acquisition will
		// reuse the uploaded bytes directly.
		msg := "uploaded file, skipping identification"
		return &entities.PartialJobUpdate{ProgressMessage: &msg}, nil
	}

	result, err := d.Registry.Identify(ctx, job.SourceType, job.SourceValue)
	if err != nil {
		return nil, err
	}

	update := &entities.PartialJobUpdate{
		Title:        strPtr(result.Title),
		Artist:       strPtr(result.Artist),
		Album:        strPtr(result.Album),
		AlbumArt:     strPtr(result.AlbumArt),
		ISRC:         strPtr(result.ISRC),
		SonglinkData: entities.EncodeCrossPlatformIDs(result.CrossPlatformIDs),
	}
	if result.SpotifyID != "" {
		update.SpotifyID = strPtr(result.SpotifyID)
	}
	msg := "identified " + result.Artist + " - " + result.Title
	update.ProgressMessage = &msg
	return update, nil
}

// Acquire obtains a lossless master. Short-circuits when master_audio_path
// is already set and the file exists.
func Acquire(ctx context.Context, d Deps, job *entities.Job) (*entities.PartialJobUpdate, error) {
	if job.MasterAudioPath != nil && d.Storage.Exists(*job.MasterAudioPath) {
		return &entities.PartialJobUpdate{}, nil
	}

	if job.SourceType == entities.SourceFileUpload {
		format := strings.ToUpper(strings.TrimPrefix(filepath.Ext(job.SourceValue), "."))
		service := "upload"
		msg := "using uploaded file as master"
		return &entities.PartialJobUpdate{
			MasterAudioPath:    &job.SourceValue,
			MasterAudioFormat:  &format,
			MasterAudioService: &service,
			ProgressMessage:    &msg,
		}, nil
	}

	outputPath := d.Storage.MasterAudioPath(job.ID.String())
	if err := d.Storage.EnsureDir(d.Storage.AudioDir(job.ID.String())); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "creating audio directory", err)
	}

	result, serviceName, err := d.Registry.Acquire(ctx, job, outputPath)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("acquired master from %s", serviceName)
	return &entities.PartialJobUpdate{
		MasterAudioPath:    &result.Path,
		MasterAudioFormat:  &result.Format,
		MasterAudioService: &serviceName,
		ProgressMessage:    &msg,
	}, nil
}

// Separate splits the master into stems, persisting each as an Asset.
// Idempotence policy (Open Question #2): short-circuit rather than
// delete-and-recreate. When the job already has assets for five or more
// stem types the step is a no-op; otherwise the provider runs again and
// only stem types without an existing (job_id, stem_type) row are persisted.
func Separate(ctx context.Context, d Deps, job *entities.Job) (*entities.PartialJobUpdate, error) {
	if job.MasterAudioPath == nil {
		return nil, apperr.New(apperr.CodeSeparationFailed, "separate step requires master_audio_path")
	}

	existing, err := d.Store.GetAssetsByJob(ctx, job.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "loading existing assets", err)
	}
	haveStems := map[entities.StemType]bool{}
	for _, a := range existing {
		if a.Type == "stem" {
			haveStems[a.StemType] = true
		}
	}
	if len(haveStems) >= 5 {
		msg := "stems already separated"
		return &entities.PartialJobUpdate{ProgressMessage: &msg}, nil
	}

	outputDir := d.Storage.StemsDir(job.ID.String())
	if err := d.Storage.EnsureDir(outputDir); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "creating stems directory", err)
	}

	results, providerName, err := d.Registry.Separate(ctx, job.PreferredProvider, *job.MasterAudioPath, outputDir)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(retentionFallback)
	for _, r := range results {
		if haveStems[r.StemType] {
			continue
		}
		asset := &entities.Asset{
			ID:        uuid.New(),
			JobID:     job.ID,
			Type:      "stem",
			StemType:  r.StemType,
			FilePath:  r.FilePath,
			FileSize:  r.FileSize,
			MimeType:  "audio/wav",
			Provider:  providerName,
			ExpiresAt: expiresAt,
		}
		if err := d.Store.CreateAsset(ctx, asset); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "persisting stem asset", err)
		}
	}

	msg := fmt.Sprintf("separated %d stems via %s", len(results), providerName)
	return &entities.PartialJobUpdate{ProgressMessage: &msg}, nil
}

// retentionFallback is the fixed lifetime written to every stem Asset's
// expires_at. It does not follow the configured RETENTION_WINDOW, which
// governs only the job's own expires_at; the Reaper deletes by the job's
// expires_at, and asset rows go with their job.
const retentionFallback = 24 * time.Hour

// GenerateMidi transcribes each tonal stem. Succeeds even if individual
// stems fail; fails only if the job has no stems at all.
func GenerateMidi(ctx context.Context, d Deps, job *entities.Job) (*entities.PartialJobUpdate, error) {
	assets, err := d.Store.GetAssetsByJob(ctx, job.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "loading stem assets", err)
	}
	if len(assets) == 0 {
		return nil, apperr.New(apperr.CodeTranscriptionFailed, "no stems exist for midi generation")
	}

	outputDir := d.Storage.MidiDir(job.ID.String())
	if err := d.Storage.EnsureDir(outputDir); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "creating midi directory", err)
	}

	transcribed := 0
	for _, asset := range assets {
		if asset.Type != "stem" || !entities.TonalStemTypes[asset.StemType] {
			continue
		}
		if asset.HasMidi {
			transcribed++
			continue
		}

		result, _, err := d.Registry.GenerateMidi(ctx, job.PreferredProvider, asset.FilePath, outputDir, asset.StemType)
		if err != nil {
			// Partial transcription failure is not terminal (spec.md §7).
			continue
		}
		if err := d.Store.SetAssetMidi(ctx, asset.ID, result.MidiPath, result.FileSize); err != nil {
			continue
		}
		transcribed++
	}

	msg := fmt.Sprintf("transcribed %d/%d stems to midi", transcribed, len(assets))
	return &entities.PartialJobUpdate{ProgressMessage: &msg}, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
