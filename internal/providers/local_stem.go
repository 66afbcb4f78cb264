package providers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/trackforge/engine/internal/entities"
)

// LocalStemSeparator is the no-credential fallback StemProvider: each stem
// is a sox high/low-pass filtering of the full mix, a much coarser split than
// the vendor ML separators but requiring no external service.
type LocalStemSeparator struct{}

func NewLocalStemSeparator() *LocalStemSeparator { return &LocalStemSeparator{} }

func (l *LocalStemSeparator) Name() string       { return "local" }
func (l *LocalStemSeparator) IsConfigured() bool { return true }

func (l *LocalStemSeparator) Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	vocalsPath := filepath.Join(outputDir, "vocals.wav")
	drumsPath := filepath.Join(outputDir, "drums.wav")
	bassPath := filepath.Join(outputDir, "bass.wav")
	melodyPath := filepath.Join(outputDir, "melody.wav")
	instrumentalPath := filepath.Join(outputDir, "instrumental.wav")

	// Vocals: mid-range band-pass isolates the vocal formants.
	if err := runSox(ctx, audioPath, vocalsPath, "highpass", "200", "lowpass", "8000"); err != nil {
		return nil, fmt.Errorf("vocals separation: %w", err)
	}
	// Drums: low-pass keeps kick/snare transient energy.
	if err := runSox(ctx, audioPath, drumsPath, "lowpass", "200"); err != nil {
		return nil, fmt.Errorf("drums separation: %w", err)
	}
	// Bass: narrow low band.
	if err := runSox(ctx, audioPath, bassPath, "lowpass", "250", "highpass", "40"); err != nil {
		return nil, fmt.Errorf("bass separation: %w", err)
	}
	// Melody: everything above 500 Hz, a rough proxy for lead instrument
	// content; the vocal range is not removed.
	if err := runSox(ctx, audioPath, melodyPath, "highpass", "500"); err != nil {
		return nil, fmt.Errorf("melody separation: %w", err)
	}
	// Instrumental: everything above the bass band, vocals not excluded
	// (sox alone can't do center-channel cancellation losslessly here).
	if err := runSox(ctx, audioPath, instrumentalPath, "highpass", "250"); err != nil {
		return nil, fmt.Errorf("instrumental separation: %w", err)
	}

	results := []StemResult{
		{StemType: entities.StemVocals, FilePath: vocalsPath, FileSize: fileSize(vocalsPath)},
		{StemType: entities.StemDrums, FilePath: drumsPath, FileSize: fileSize(drumsPath)},
		{StemType: entities.StemBass, FilePath: bassPath, FileSize: fileSize(bassPath)},
		{StemType: entities.StemMelody, FilePath: melodyPath, FileSize: fileSize(melodyPath)},
		{StemType: entities.StemInstrumental, FilePath: instrumentalPath, FileSize: fileSize(instrumentalPath)},
	}
	return results, nil
}

func runSox(ctx context.Context, inputPath, outputPath string, soxArgs ...string) error {
	args := append([]string{inputPath, outputPath}, soxArgs...)
	cmd := exec.CommandContext(ctx, "sox", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w", string(output), err)
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
