// Package entities holds the durable record types shared by the store,
// the step handlers, and the orchestrator.
package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobIdentifying    JobStatus = "identifying"
	JobAcquiring      JobStatus = "acquiring"
	JobSeparating     JobStatus = "separating"
	JobGeneratingMidi JobStatus = "generating_midi"
	JobCompleted      JobStatus = "completed"
	JobFailed         JobStatus = "failed"
)

type SourceType string

const (
	SourceSpotifyURL   SourceType = "spotify_url"
	SourceAudioURL     SourceType = "audio_url"
	SourceFileUpload   SourceType = "file_upload"
	SourceISRC         SourceType = "isrc"
	SourceSpotifyID    SourceType = "spotify_id"
	SourceAppleMusicID SourceType = "apple_music_id"
)

// StemType enumerates the instrument/voice classes a StemProvider can
// isolate. TonalStemTypes is the subset eligible for MIDI transcription.
type StemType string

const (
	StemVocals       StemType = "vocals"
	StemDrums        StemType = "drums"
	StemBass         StemType = "bass"
	StemMelody       StemType = "melody"
	StemInstrumental StemType = "instrumental"
	StemOther        StemType = "other"
)

var TonalStemTypes = map[StemType]bool{
	StemVocals: true,
	StemMelody: true,
	StemBass:   true,
}

// ProgressBreakpoints gives the fixed progress value written at the entry
// of each pipeline step, in step order.
var ProgressBreakpoints = map[JobStatus]int{
	JobIdentifying:    10,
	JobAcquiring:      30,
	JobSeparating:     60,
	JobGeneratingMidi: 90,
	JobCompleted:      100,
}

// Job is one unit of requested work advancing through the fixed pipeline
// identify -> acquire -> separate -> generate_midi -> complete.
type Job struct {
	ID     uuid.UUID  `db:"id" json:"id"`
	Status JobStatus  `db:"status" json:"status"`

	SourceType  SourceType `db:"source_type" json:"source_type"`
	SourceValue string     `db:"source_value" json:"source_value"`

	Title     *string `db:"title" json:"title,omitempty"`
	Artist    *string `db:"artist" json:"artist,omitempty"`
	Album     *string `db:"album" json:"album,omitempty"`
	AlbumArt  *string `db:"album_art" json:"album_art,omitempty"`
	Duration  *int    `db:"duration" json:"duration,omitempty"`
	ISRC      *string `db:"isrc" json:"isrc,omitempty"`
	SpotifyID *string `db:"spotify_id" json:"spotify_id,omitempty"`

	// SonglinkData caches cross-platform IDs discovered during
	// identification, opaque to everything but the identify step.
	SonglinkData []byte `db:"songlink_data" json:"-"`

	MasterAudioPath    *string `db:"master_audio_path" json:"master_audio_path,omitempty"`
	MasterAudioFormat  *string `db:"master_audio_format" json:"master_audio_format,omitempty"`
	MasterAudioService *string `db:"master_audio_service" json:"master_audio_service,omitempty"`

	Progress        int     `db:"progress" json:"progress"`
	ProgressMessage *string `db:"progress_message" json:"progress_message,omitempty"`
	ErrorMessage    *string `db:"error_message" json:"error_message,omitempty"`

	PreferredProvider *string `db:"preferred_provider" json:"preferred_provider,omitempty"`

	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`

	// LastHeartbeat is touched by the orchestrator at every step boundary
	// so the Reclaim sweep can tell a slow job from an abandoned one.
	LastHeartbeat time.Time `db:"last_heartbeat" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Identified reports whether enough metadata is present for the identify
// step to short-circuit (spec.md §4.2).
func (j *Job) Identified() bool {
	return j.Title != nil && j.Artist != nil && j.ISRC != nil && j.SonglinkData != nil
}

// EncodeCrossPlatformIDs marshals the cross-platform IDs discovered during
// identification into the opaque songlink_data blob.
func EncodeCrossPlatformIDs(ids map[string]string) []byte {
	data, err := json.Marshal(ids)
	if err != nil {
		return nil
	}
	return data
}

// ParseCrossPlatformIDs unmarshals a songlink_data blob into the given map,
// merging rather than replacing so callers can pass a pre-seeded map.
func ParseCrossPlatformIDs(blob []byte, into map[string]string) map[string]string {
	if into == nil {
		into = map[string]string{}
	}
	if blob == nil {
		return into
	}
	var parsed map[string]string
	if err := json.Unmarshal(blob, &parsed); err != nil {
		return into
	}
	for k, v := range parsed {
		into[k] = v
	}
	return into
}

// Asset is a file produced by the pipeline, owned by exactly one Job.
type Asset struct {
	ID       uuid.UUID `db:"id" json:"id"`
	JobID    uuid.UUID `db:"job_id" json:"job_id"`
	Type     string    `db:"type" json:"type"`
	StemType StemType  `db:"stem_type" json:"stem_type"`

	FilePath string `db:"file_path" json:"file_path"`
	FileSize int64  `db:"file_size" json:"file_size"`
	MimeType string `db:"mime_type" json:"mime_type"`

	HasMidi  bool    `db:"has_midi" json:"has_midi"`
	MidiPath *string `db:"midi_path" json:"midi_path,omitempty"`

	Provider string `db:"provider" json:"provider"`

	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProviderConfig is the persisted credential and quota descriptor for one
// external service, read by the Provider Registry at request time.
type ProviderConfig struct {
	ServiceName string `db:"service_name" json:"service_name"`
	APIKey      *string `db:"api_key" json:"-"`
	APISecret   *string `db:"api_secret" json:"-"`
	Priority    int    `db:"priority" json:"priority"`
	IsEnabled   bool   `db:"is_enabled" json:"is_enabled"`

	RateLimit     *int       `db:"rate_limit" json:"rate_limit,omitempty"`
	Window        *int       `db:"window_seconds" json:"window_seconds,omitempty"`
	CurrentUsage  int        `db:"current_usage" json:"current_usage"`
	UsageResetAt  *time.Time `db:"usage_reset_at" json:"usage_reset_at,omitempty"`

	Config []byte `db:"config" json:"-"`
}

// SongSuggestion is the shape returned by the search adapters.
type SongSuggestion struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Artist        string   `json:"artist"`
	Album         *string  `json:"album,omitempty"`
	AlbumArt      *string  `json:"album_art,omitempty"`
	ISRC          *string  `json:"isrc,omitempty"`
	Confidence    float64  `json:"confidence"`
	Source        string   `json:"source"` // llm | humming | musicbrainz
	SpotifyID     *string  `json:"spotify_id,omitempty"`
	AppleMusicID  *string  `json:"apple_music_id,omitempty"`
}

// PartialJobUpdate is what a step handler returns: the fields it wants
// merged into the Job row, one nullable pointer per mutable field so a nil
// means "leave unchanged" rather than "clear". The Orchestrator applies it
// after a successful step (spec.md §9: explicit struct over a free-form map).
type PartialJobUpdate struct {
	Title     *string
	Artist    *string
	Album     *string
	AlbumArt  *string
	Duration  *int
	ISRC      *string
	SpotifyID *string

	SonglinkData []byte

	MasterAudioPath    *string
	MasterAudioFormat  *string
	MasterAudioService *string

	ProgressMessage *string
}

// Apply merges a non-nil PartialJobUpdate into the job in place.
func (j *Job) Apply(u *PartialJobUpdate) {
	if u == nil {
		return
	}
	if u.Title != nil {
		j.Title = u.Title
	}
	if u.Artist != nil {
		j.Artist = u.Artist
	}
	if u.Album != nil {
		j.Album = u.Album
	}
	if u.AlbumArt != nil {
		j.AlbumArt = u.AlbumArt
	}
	if u.Duration != nil {
		j.Duration = u.Duration
	}
	if u.ISRC != nil {
		j.ISRC = u.ISRC
	}
	if u.SpotifyID != nil {
		j.SpotifyID = u.SpotifyID
	}
	if u.SonglinkData != nil {
		j.SonglinkData = u.SonglinkData
	}
	if u.MasterAudioPath != nil {
		j.MasterAudioPath = u.MasterAudioPath
	}
	if u.MasterAudioFormat != nil {
		j.MasterAudioFormat = u.MasterAudioFormat
	}
	if u.MasterAudioService != nil {
		j.MasterAudioService = u.MasterAudioService
	}
	if u.ProgressMessage != nil {
		j.ProgressMessage = u.ProgressMessage
	}
}
