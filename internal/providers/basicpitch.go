package providers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/trackforge/engine/internal/entities"
)

// BasicPitch is the local MidiProvider, shelling out to Spotify's
// basic-pitch CLI (installed separately; this process never vendors Python).
type BasicPitch struct{}

func NewBasicPitch() *BasicPitch { return &BasicPitch{} }

func (b *BasicPitch) Name() string       { return "basic_pitch" }
func (b *BasicPitch) IsConfigured() bool { return true }

func (b *BasicPitch) Generate(ctx context.Context, audioPath, outputDir string, stemType entities.StemType) (*MidiResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "basic-pitch", outputDir, audioPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("basic-pitch failed: %s: %w", string(output), err)
	}

	// basic-pitch names its output after the input file's basename with a
	// _basic_pitch.mid suffix; rename to our stem-type-keyed convention.
	base := filepath.Base(audioPath)
	ext := filepath.Ext(base)
	generated := filepath.Join(outputDir, base[:len(base)-len(ext)]+"_basic_pitch.mid")
	target := filepath.Join(outputDir, string(stemType)+".mid")

	if generated != target {
		if err := os.Rename(generated, target); err != nil {
			return nil, fmt.Errorf("renaming basic-pitch output: %w", err)
		}
	}

	return &MidiResult{MidiPath: target, FileSize: fileSize(target)}, nil
}
