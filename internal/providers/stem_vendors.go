package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/httpx"
)

// pollDelay is the fixed inter-poll interval for vendor job polling
// (spec.md §5: 2-3 seconds, no backoff).
const pollDelay = 3 * time.Second

// Lalal wraps LALAL.AI's upload -> poll -> download stem separation API.
type Lalal struct {
	apiKey string
}

func NewLalal(cfg config.ProvidersConfig) *Lalal {
	return &Lalal{apiKey: cfg.LalalAPIKey}
}

func (l *Lalal) Name() string       { return "lalal" }
func (l *Lalal) IsConfigured() bool { return l.apiKey != "" }

type lalalUploadResponse struct {
	ID string `json:"id"`
}

type lalalStatusResponse struct {
	Status string `json:"status"`
	Stems  []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"stems"`
}

func (l *Lalal) Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error) {
	if !l.IsConfigured() {
		return nil, fmt.Errorf("lalal api key not configured")
	}

	headers := map[string]string{"Authorization": "license " + l.apiKey}

	var upload lalalUploadResponse
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := httpx.PostJSON(ctx, "https://www.lalal.ai/api/upload/", headers, map[string]string{"path": audioPath}, &upload); err != nil {
		return nil, err
	}

	for {
		var status lalalStatusResponse
		if _, err := httpx.GetJSON(ctx, "https://www.lalal.ai/api/check/?id="+upload.ID, headers, &status); err != nil {
			return nil, err
		}
		if status.Status == "success" {
			return l.downloadStems(ctx, status, outputDir, headers)
		}
		if status.Status == "error" {
			return nil, fmt.Errorf("lalal separation failed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollDelay):
		}
	}
}

func (l *Lalal) downloadStems(ctx context.Context, status lalalStatusResponse, outputDir string, headers map[string]string) ([]StemResult, error) {
	results := make([]StemResult, 0, len(status.Stems))
	for _, stem := range status.Stems {
		stemType := mapLalalStemName(stem.Name)
		path := filepath.Join(outputDir, string(stemType)+".wav")
		if err := httpx.DownloadFile(ctx, stem.URL, path, headers, saveStream); err != nil {
			continue
		}
		info, _ := os.Stat(path)
		var size int64
		if info != nil {
			size = info.Size()
		}
		results = append(results, StemResult{StemType: stemType, FilePath: path, FileSize: size})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("lalal returned no downloadable stems")
	}
	return results, nil
}

func mapLalalStemName(name string) entities.StemType {
	switch name {
	case "vocals":
		return entities.StemVocals
	case "drum":
		return entities.StemDrums
	case "bass":
		return entities.StemBass
	case "melody", "other":
		return entities.StemMelody
	default:
		return entities.StemInstrumental
	}
}

// Fadr wraps Fadr's stem separation API with the same upload/poll/download
// shape as Lalal, behind its own protocol.
type Fadr struct {
	apiKey string
}

func NewFadr(cfg config.ProvidersConfig) *Fadr {
	return &Fadr{apiKey: cfg.FadrAPIKey}
}

func (f *Fadr) Name() string       { return "fadr" }
func (f *Fadr) IsConfigured() bool { return f.apiKey != "" }

type fadrJobResponse struct {
	JobID string `json:"job_id"`
}

type fadrStatusResponse struct {
	Status string `json:"status"`
	Stems  map[string]string `json:"stems"` // stem name -> download URL
}

func (f *Fadr) Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error) {
	if !f.IsConfigured() {
		return nil, fmt.Errorf("fadr api key not configured")
	}

	headers := map[string]string{"Authorization": "Bearer " + f.apiKey}

	var job fadrJobResponse
	if _, err := httpx.PostJSON(ctx, "https://api.fadr.com/v1/stems", headers, map[string]string{"file": audioPath}, &job); err != nil {
		return nil, err
	}

	for {
		var status fadrStatusResponse
		if _, err := httpx.GetJSON(ctx, "https://api.fadr.com/v1/stems/"+job.JobID, headers, &status); err != nil {
			return nil, err
		}
		if status.Status == "completed" {
			return f.downloadStems(ctx, status, outputDir, headers)
		}
		if status.Status == "failed" {
			return nil, fmt.Errorf("fadr separation failed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollDelay):
		}
	}
}

func (f *Fadr) downloadStems(ctx context.Context, status fadrStatusResponse, outputDir string, headers map[string]string) ([]StemResult, error) {
	results := make([]StemResult, 0, len(status.Stems))
	for name, stemURL := range status.Stems {
		stemType := mapLalalStemName(name)
		path := filepath.Join(outputDir, string(stemType)+".wav")
		if err := httpx.DownloadFile(ctx, stemURL, path, headers, saveStream); err != nil {
			continue
		}
		info, _ := os.Stat(path)
		var size int64
		if info != nil {
			size = info.Size()
		}
		results = append(results, StemResult{StemType: stemType, FilePath: path, FileSize: size})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("fadr returned no downloadable stems")
	}
	return results, nil
}

// FadrMidi is the Fadr MIDI provider, reusing the same upload/poll protocol.
type FadrMidi struct {
	apiKey string
}

func NewFadrMidi(cfg config.ProvidersConfig) *FadrMidi {
	return &FadrMidi{apiKey: cfg.FadrAPIKey}
}

func (f *FadrMidi) Name() string       { return "fadr_midi" }
func (f *FadrMidi) IsConfigured() bool { return f.apiKey != "" }

type fadrMidiStatusResponse struct {
	Status   string `json:"status"`
	MidiURL  string `json:"midi_url"`
}

func (f *FadrMidi) Generate(ctx context.Context, audioPath, outputDir string, stemType entities.StemType) (*MidiResult, error) {
	if !f.IsConfigured() {
		return nil, fmt.Errorf("fadr api key not configured")
	}

	headers := map[string]string{"Authorization": "Bearer " + f.apiKey}

	var job fadrJobResponse
	if _, err := httpx.PostJSON(ctx, "https://api.fadr.com/v1/midi", headers, map[string]string{"file": audioPath}, &job); err != nil {
		return nil, err
	}

	for {
		var status fadrMidiStatusResponse
		if _, err := httpx.GetJSON(ctx, "https://api.fadr.com/v1/midi/"+job.JobID, headers, &status); err != nil {
			return nil, err
		}
		if status.Status == "completed" {
			path := filepath.Join(outputDir, string(stemType)+".mid")
			if err := httpx.DownloadFile(ctx, status.MidiURL, path, headers, saveStream); err != nil {
				return nil, err
			}
			info, _ := os.Stat(path)
			var size int64
			if info != nil {
				size = info.Size()
			}
			return &MidiResult{MidiPath: path, FileSize: size}, nil
		}
		if status.Status == "failed" {
			return nil, fmt.Errorf("fadr midi transcription failed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollDelay):
		}
	}
}
