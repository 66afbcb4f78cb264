package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/trackforge/engine/internal/entities"
)

// createJobRequest is the body of POST /jobs (spec.md §6). Upload jobs go
// through the separate multipart endpoint below.
type createJobRequest struct {
	SourceType  string  `json:"source_type" validate:"required,oneof=spotify_url audio_url isrc"`
	SourceValue string  `json:"source_value" validate:"required"`
	Title       *string `json:"title"`
	Artist      *string `json:"artist"`
	Album       *string `json:"album"`
}

type createJobResponse struct {
	ID        uuid.UUID        `json:"id"`
	Status    entities.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

type jobListItem struct {
	ID              uuid.UUID          `json:"id"`
	Status          entities.JobStatus `json:"status"`
	Title           *string            `json:"title,omitempty"`
	Artist          *string            `json:"artist,omitempty"`
	Album           *string            `json:"album,omitempty"`
	AlbumArt        *string            `json:"album_art,omitempty"`
	Progress        int                `json:"progress"`
	ProgressMessage *string            `json:"progress_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type jobListResponse struct {
	Jobs []jobListItem `json:"jobs"`
}

type jobMetadata struct {
	Title     *string `json:"title,omitempty"`
	Artist    *string `json:"artist,omitempty"`
	Album     *string `json:"album,omitempty"`
	AlbumArt  *string `json:"album_art,omitempty"`
	Duration  *int    `json:"duration,omitempty"`
	ISRC      *string `json:"isrc,omitempty"`
	SpotifyID *string `json:"spotify_id,omitempty"`
}

type audioSource struct {
	Format  *string `json:"format,omitempty"`
	Service *string `json:"service,omitempty"`
}

type stemSummary struct {
	ID       uuid.UUID        `json:"id"`
	Type     entities.StemType `json:"type"`
	HasMidi  bool             `json:"has_midi"`
	FileSize int64            `json:"file_size"`
}

type jobDetailResponse struct {
	ID              uuid.UUID          `json:"id"`
	Status          entities.JobStatus `json:"status"`
	Progress        int                `json:"progress"`
	ProgressMessage *string            `json:"progress_message,omitempty"`
	Metadata        jobMetadata        `json:"metadata"`
	AudioSource     audioSource        `json:"audio_source"`
	Stems           []stemSummary      `json:"stems"`
	Error           *string            `json:"error,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func newJobDetailResponse(job *entities.Job, assets []*entities.Asset) jobDetailResponse {
	stems := make([]stemSummary, 0, len(assets))
	for _, a := range assets {
		stems = append(stems, stemSummary{ID: a.ID, Type: a.StemType, HasMidi: a.HasMidi, FileSize: a.FileSize})
	}
	return jobDetailResponse{
		ID:              job.ID,
		Status:          job.Status,
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		Metadata: jobMetadata{
			Title:     job.Title,
			Artist:    job.Artist,
			Album:     job.Album,
			AlbumArt:  job.AlbumArt,
			Duration:  job.Duration,
			ISRC:      job.ISRC,
			SpotifyID: job.SpotifyID,
		},
		AudioSource: audioSource{Format: job.MasterAudioFormat, Service: job.MasterAudioService},
		Stems:       stems,
		Error:       job.ErrorMessage,
		ExpiresAt:   job.ExpiresAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

type downloadFile struct {
	Type      entities.StemType `json:"type"`
	AudioPath string            `json:"audio_path"`
	MidiPath  *string           `json:"midi_path,omitempty"`
}

type downloadResponse struct {
	Title  *string        `json:"title,omitempty"`
	Artist *string        `json:"artist,omitempty"`
	Files  []downloadFile `json:"files"`
}

type textSearchRequest struct {
	Query string `json:"query" validate:"required"`
	Type  string `json:"type" validate:"required,oneof=title lyrics description"`
}

type hummingSearchRequest struct {
	AudioPath   string    `json:"audio_path"`
	AudioBuffer []float64 `json:"audio_buffer"`
}

type suggestionsResponse struct {
	Suggestions []entities.SongSuggestion `json:"suggestions"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
