// Package providers implements the capability interfaces and selection
// algorithms of the Provider Registry: identification, acquisition, stem
// separation, and MIDI generation, each with multiple interchangeable
// vendor implementations.
package providers

import (
	"context"

	"github.com/trackforge/engine/internal/entities"
)

// IdentifyResult is what an Identifier resolves a source into.
type IdentifyResult struct {
	ISRC             string
	Title            string
	Artist           string
	Album            string
	AlbumArt         string
	SpotifyID        string
	CrossPlatformIDs map[string]string
}

// Identifier resolves a source_type/source_value pair into canonical
// metadata. The registry tries only the implementation whose capability
// matches the input's source_type (spec.md §4.1).
type Identifier interface {
	Name() string
	IsConfigured() bool
	// Handles reports whether this Identifier resolves the given source type.
	Handles(sourceType entities.SourceType) bool
	Identify(ctx context.Context, sourceType entities.SourceType, sourceValue string) (*IdentifyResult, error)
}

type TrackInfo struct {
	TrackID  string
	Title    string
	Artist   string
	Duration int
}

type DownloadResult struct {
	Path    string
	Format  string
	Quality string
}

// StreamingProvider is a high-quality acquisition source (Tidal, Deezer,
// Qobuz). Each declares a static Priority and an IsConfigured gate.
type StreamingProvider interface {
	Name() string
	Priority() int
	IsConfigured() bool
	SearchByISRC(ctx context.Context, isrc string) (trackID string, err error)
	GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error)
	DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error)
}

type StemResult struct {
	StemType entities.StemType
	FilePath string
	FileSize int64
}

// StemProvider separates a master audio file into instrument stems.
type StemProvider interface {
	Name() string
	IsConfigured() bool
	Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error)
}

type MidiResult struct {
	MidiPath string
	FileSize int64
}

// MidiProvider transcribes a tonal stem into MIDI.
type MidiProvider interface {
	Name() string
	IsConfigured() bool
	Generate(ctx context.Context, audioPath, outputDir string, stemType entities.StemType) (*MidiResult, error)
}
