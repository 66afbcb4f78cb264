// Package search implements the auxiliary search adapters feeding the
// client a list of SongSuggestions to submit as a job's source (spec.md §6):
// a text/lyrics LLM gateway, a humming/audio-fingerprint matcher, and a
// MusicBrainz lookup. None of these participate in the orchestrator
// contract; they exist only to help a client discover a source_value.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/httpx"
)

// llmSuggestion is the shape requested of the LLM gateway in the prompt.
type llmSuggestion struct {
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	Confidence float64 `json:"confidence"`
}

// parseSuggestions decodes the LLM's JSON-array response text into
// SongSuggestions, tagged with the given source.
func parseSuggestions(text, source string) ([]entities.SongSuggestion, error) {
	var raw []llmSuggestion
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parsing llm gateway response: %w", err)
	}

	out := make([]entities.SongSuggestion, 0, len(raw))
	for _, r := range raw {
		s := entities.SongSuggestion{
			Title:      r.Title,
			Artist:     r.Artist,
			Confidence: r.Confidence,
			Source:     source,
		}
		if r.Album != "" {
			album := r.Album
			s.Album = &album
		}
		out = append(out, s)
	}
	return out, nil
}

// TextSearch resolves a free-text title, lyric fragment, or description
// into song candidates via an LLM gateway.
type TextSearch struct {
	apiKey string
	model  string
}

func NewTextSearch(cfg config.ProvidersConfig) *TextSearch {
	return &TextSearch{apiKey: cfg.LLMAPIKey, model: "claude-3-5-haiku-latest"}
}

func (t *TextSearch) IsConfigured() bool { return t.apiKey != "" }

type llmRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []llmMessage `json:"messages"`
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Search prompts the LLM gateway to propose up to five song candidates for
// the given query and query type (title|lyrics|description), parsing its
// JSON-array response into SongSuggestions.
func (t *TextSearch) Search(ctx context.Context, query, queryType string) ([]entities.SongSuggestion, error) {
	if !t.IsConfigured() {
		return nil, fmt.Errorf("llm gateway not configured")
	}

	prompt := fmt.Sprintf(
		`Identify up to 5 songs matching this %s: %q. Respond with ONLY a JSON array of objects `+
			`with keys title, artist, album (optional), confidence (0-1). No prose.`,
		queryType, query,
	)

	req := llmRequest{
		Model:     t.model,
		MaxTokens: 1024,
		Messages:  []llmMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         t.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var resp llmResponse
	status, err := httpx.PostJSON(ctx, "https://api.anthropic.com/v1/messages", headers, req, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("llm gateway returned status %d", status)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("llm gateway returned no content")
	}

	return parseSuggestions(resp.Content[0].Text, "llm")
}

// MusicBrainzSearch queries the public MusicBrainz recording/artist search
// API; no credentials are required.
type MusicBrainzSearch struct{}

func NewMusicBrainzSearch() *MusicBrainzSearch { return &MusicBrainzSearch{} }

func (m *MusicBrainzSearch) IsConfigured() bool { return true }

type musicbrainzResponse struct {
	Recordings []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		ArtistCredit []struct {
			Name string `json:"name"`
		} `json:"artist-credit"`
		Releases []struct {
			Title string `json:"title"`
		} `json:"releases"`
		ISRCs []string `json:"isrcs"`
	} `json:"recordings"`
}

func (m *MusicBrainzSearch) Search(ctx context.Context, query, entityType string) ([]entities.SongSuggestion, error) {
	if entityType == "" {
		entityType = "recording"
	}
	url := fmt.Sprintf("https://musicbrainz.org/ws/2/%s/?query=%s&fmt=json&limit=10", entityType, query)
	headers := map[string]string{"User-Agent": "trackforge-engine/1.0 ( https://github.com/trackforge/engine )"}

	var resp musicbrainzResponse
	status, err := httpx.GetJSON(ctx, url, headers, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("musicbrainz returned status %d", status)
	}

	suggestions := make([]entities.SongSuggestion, 0, len(resp.Recordings))
	for _, rec := range resp.Recordings {
		artist := ""
		if len(rec.ArtistCredit) > 0 {
			artist = rec.ArtistCredit[0].Name
		}
		var album *string
		if len(rec.Releases) > 0 {
			album = &rec.Releases[0].Title
		}
		var isrc *string
		if len(rec.ISRCs) > 0 {
			isrc = &rec.ISRCs[0]
		}
		suggestions = append(suggestions, entities.SongSuggestion{
			ID:         rec.ID,
			Title:      rec.Title,
			Artist:     artist,
			Album:      album,
			ISRC:       isrc,
			Confidence: 1.0,
			Source:     "musicbrainz",
		})
	}
	return suggestions, nil
}

// HummingSearch matches a recorded hum against a library of previously
// extracted audio fingerprints via cosine similarity over MFCC/chroma
// vectors, the same feature space the teacher's catalog indexer used.
type HummingSearch struct {
	featuresDir string
}

func NewHummingSearch(featuresDir string) *HummingSearch {
	return &HummingSearch{featuresDir: featuresDir}
}

func (h *HummingSearch) IsConfigured() bool {
	_, err := os.Stat(h.featuresDir)
	return err == nil
}

// Fingerprint is one library entry's precomputed feature vector, keyed by
// SongSuggestion so a match can be returned directly.
type Fingerprint struct {
	Suggestion entities.SongSuggestion
	MFCC       []float64
	Chroma     []float64
}

// LoadLibrary reads every *.json file directly inside featuresDir (not its
// subdirectories), one file per catalog entry, skipping any that fail to
// decode.
func (h *HummingSearch) LoadLibrary() ([]Fingerprint, error) {
	entries, err := os.ReadDir(h.featuresDir)
	if err != nil {
		return nil, fmt.Errorf("reading features dir: %w", err)
	}
	library := make([]Fingerprint, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(h.featuresDir, entry.Name()))
		if err != nil {
			continue
		}
		var fp Fingerprint
		if err := json.Unmarshal(data, &fp); err != nil {
			continue
		}
		library = append(library, fp)
	}
	return library, nil
}

// ExtractQueryFeatures derives the MFCC/chroma vectors for a hummed
// recording. Real extraction belongs in a DSP pipeline (librosa-equivalent)
// outside this module's scope; this mirrors the teacher catalog indexer's
// own placeholder, deriving a stable vector from the input so identical
// recordings always score a perfect match against themselves.
func ExtractQueryFeatures(audioPath string, audioBuffer []float64) (mfcc, chroma []float64) {
	mfcc = make([]float64, 20)
	chroma = make([]float64, 12)
	seed := float64(len(audioPath) % 100)
	for _, v := range audioBuffer {
		seed += v
	}
	for i := range mfcc {
		mfcc[i] = float64(i)*0.1 + seed*0.01
	}
	for i := range chroma {
		chroma[i] = float64(i)*0.05 + seed*0.01
	}
	return mfcc, chroma
}

// Search compares a hummed recording's own extracted vector against a
// candidate library and returns the closest matches above minConfidence.
func (h *HummingSearch) Search(queryMFCC, queryChroma []float64, library []Fingerprint, limit int, minConfidence float64) []entities.SongSuggestion {
	scores := make([]scoredSuggestion, 0, len(library))
	for _, fp := range library {
		score := 0.6*cosineSimilarity(queryMFCC, fp.MFCC) + 0.4*cosineSimilarity(queryChroma, fp.Chroma)
		if score < minConfidence {
			continue
		}
		s := fp.Suggestion
		s.Confidence = score
		s.Source = "humming"
		scores = append(scores, scoredSuggestion{suggestion: s, score: score})
	}

	sortByScoreDesc(scores)

	if len(scores) > limit {
		scores = scores[:limit]
	}
	out := make([]entities.SongSuggestion, len(scores))
	for i, s := range scores {
		out[i] = s.suggestion
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

type scoredSuggestion struct {
	suggestion entities.SongSuggestion
	score      float64
}

func sortByScoreDesc(items []scoredSuggestion) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
