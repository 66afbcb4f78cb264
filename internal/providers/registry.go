package providers

import (
	"context"
	"sort"
	"time"

	"github.com/trackforge/engine/internal/apperr"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/store"
)

// Registry holds every known provider, one typed slice per capability, and
// implements the selection algorithms of spec.md §4.1.
type Registry struct {
	identifiers []Identifier
	streaming   []StreamingProvider
	stems       []StemProvider
	midi        []MidiProvider
	quota       *QuotaChecker
	store       store.Store
}

func NewRegistry(quota *QuotaChecker) *Registry {
	return &Registry{quota: quota}
}

// SetStore attaches the durable store so checkQuota can consult each
// provider's persisted ProviderConfig (rate_limit/window_seconds) instead of
// a hard-coded limit. Nil keeps quota checking permissive, matching
// QuotaChecker's own nil-safe default.
func (r *Registry) SetStore(st store.Store) { r.store = st }

func (r *Registry) RegisterIdentifier(p Identifier)       { r.identifiers = append(r.identifiers, p) }
func (r *Registry) RegisterStreaming(p StreamingProvider)  { r.streaming = append(r.streaming, p) }
func (r *Registry) RegisterStem(p StemProvider)            { r.stems = append(r.stems, p) }
func (r *Registry) RegisterMidi(p MidiProvider)            { r.midi = append(r.midi, p) }

// Identify dispatches to the one Identifier implementation whose Handles
// matches sourceType.
func (r *Registry) Identify(ctx context.Context, sourceType entities.SourceType, sourceValue string) (*IdentifyResult, error) {
	for _, id := range r.identifiers {
		if !id.Handles(sourceType) {
			continue
		}
		result, err := id.Identify(ctx, sourceType, sourceValue)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeIdentificationFailed, "identifier "+id.Name()+" failed", err)
		}
		if result == nil {
			return nil, apperr.New(apperr.CodeIdentificationFailed, "no match found for "+string(sourceType))
		}
		return result, nil
	}
	return nil, apperr.New(apperr.CodeIdentificationFailed, "no identifier registered for "+string(sourceType))
}

// nativeIDsFor extracts platform-native track IDs the job already carries
// (discovered during identification), in the declared try order
// tidal -> deezer -> qobuz.
func nativeIDsFor(job *entities.Job) map[string]string {
	ids := map[string]string{}
	if job.SonglinkData == nil {
		return ids
	}
	// SonglinkData is an opaque cache; the identify step encodes the
	// cross-platform IDs into the job's songlink blob and they are re-read
	// here under the platform-name keys tidal/deezer/qobuz (see
	// entities.EncodeCrossPlatformIDs / entities.ParseCrossPlatformIDs).
	return entities.ParseCrossPlatformIDs(job.SonglinkData, ids)
}

// Acquire implements the acquisition selection algorithm of spec.md §4.1.
func (r *Registry) Acquire(ctx context.Context, job *entities.Job, outputPath string) (*DownloadResult, string, error) {
	order := []string{"tidal", "deezer", "qobuz"}
	native := nativeIDsFor(job)

	byName := map[string]StreamingProvider{}
	for _, p := range r.streaming {
		byName[p.Name()] = p
	}

	// 1. Native platform IDs, tried in declared order.
	for _, name := range order {
		trackID, ok := native[name]
		if !ok || trackID == "" {
			continue
		}
		p, ok := byName[name]
		if !ok || !p.IsConfigured() {
			continue
		}
		if !r.checkQuota(ctx, p.Name()) {
			continue
		}
		result, err := p.DownloadTrack(ctx, trackID, outputPath)
		if err == nil {
			return result, p.Name(), nil
		}
	}

	// 2. ISRC known: iterate configured-first, priority ascending.
	if job.ISRC != nil && *job.ISRC != "" {
		candidates := r.orderedStreaming(true)
		for _, p := range candidates {
			if !r.checkQuota(ctx, p.Name()) {
				continue
			}
			trackID, err := p.SearchByISRC(ctx, *job.ISRC)
			if err != nil || trackID == "" {
				continue
			}
			result, err := p.DownloadTrack(ctx, trackID, outputPath)
			if err == nil {
				return result, p.Name(), nil
			}
		}

		// 3. Fall through to unconfigured providers with public search paths,
		// still only to resolve an ID, never to download without credentials.
		for _, p := range r.orderedStreaming(false) {
			if p.IsConfigured() {
				continue
			}
			trackID, err := p.SearchByISRC(ctx, *job.ISRC)
			if err != nil || trackID == "" {
				continue
			}
			return nil, "", apperr.New(apperr.CodeAcquisitionUnavailable,
				"track found on "+p.Name()+" but it has no credentials; configure Tidal, Deezer, or Qobuz credentials")
		}
	}

	return nil, "", apperr.New(apperr.CodeAcquisitionUnavailable,
		"no streaming provider yielded a master; configure Tidal, Deezer, or Qobuz credentials")
}

// orderedStreaming sorts by (is_configured desc, priority asc); tie-breaks
// resolve in registration order via a stable sort.
func (r *Registry) orderedStreaming(configuredOnly bool) []StreamingProvider {
	out := make([]StreamingProvider, 0, len(r.streaming))
	for _, p := range r.streaming {
		if configuredOnly && !p.IsConfigured() {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].IsConfigured(), out[j].IsConfigured()
		if ci != cj {
			return ci
		}
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

// checkQuota loads the provider's persisted ProviderConfig and consults the
// Redis counter with its real rate_limit/window_seconds (spec.md §5,
// ProviderConfig.CurrentUsage/RateLimit/Window). A provider with no config
// row, or no rate_limit set, has no cap. On success it also bumps the
// persisted current_usage so it stays visible outside the Redis window.
func (r *Registry) checkQuota(ctx context.Context, name string) bool {
	if r.quota == nil {
		return true
	}

	limit, window := 0, time.Minute
	if r.store != nil {
		configs, err := r.store.ListProviderConfigs(ctx, []string{name})
		if err == nil && len(configs) > 0 && configs[0].RateLimit != nil {
			limit = *configs[0].RateLimit
			if configs[0].Window != nil && *configs[0].Window > 0 {
				window = time.Duration(*configs[0].Window) * time.Second
			}
		}
	}
	if limit <= 0 {
		return true
	}

	allowed, _ := r.quota.Allow(ctx, name, limit, window)
	if allowed && r.store != nil {
		_ = r.store.IncrementProviderUsage(ctx, name)
	}
	return allowed
}

// Separate implements the stem-provider selection of spec.md §4.1:
// preferred_provider first if configured, else registration order; stop on
// the first success.
func (r *Registry) Separate(ctx context.Context, preferred *string, audioPath, outputDir string) ([]StemResult, string, error) {
	ordered := r.orderStems(preferred)
	var lastErr error
	for _, p := range ordered {
		if !p.IsConfigured() {
			continue
		}
		results, err := p.Separate(ctx, audioPath, outputDir)
		if err == nil {
			return results, p.Name(), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apperr.New(apperr.CodeSeparationFailed, "no stem provider is configured")
	}
	return nil, "", apperr.Wrap(apperr.CodeSeparationFailed, "all stem providers failed", lastErr)
}

func (r *Registry) orderStems(preferred *string) []StemProvider {
	if preferred == nil || *preferred == "" {
		return r.stems
	}
	out := make([]StemProvider, 0, len(r.stems))
	var rest []StemProvider
	for _, p := range r.stems {
		if p.Name() == *preferred {
			out = append(out, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(out, rest...)
}

// GenerateMidi applies the same preferred-first-then-registration-order
// policy as stem selection.
func (r *Registry) GenerateMidi(ctx context.Context, preferred *string, audioPath, outputDir string, stemType entities.StemType) (*MidiResult, string, error) {
	ordered := r.midi
	if preferred != nil && *preferred != "" {
		reordered := make([]MidiProvider, 0, len(r.midi))
		var rest []MidiProvider
		for _, p := range r.midi {
			if p.Name() == *preferred {
				reordered = append(reordered, p)
			} else {
				rest = append(rest, p)
			}
		}
		ordered = append(reordered, rest...)
	}

	var lastErr error
	for _, p := range ordered {
		if !p.IsConfigured() {
			continue
		}
		result, err := p.Generate(ctx, audioPath, outputDir, stemType)
		if err == nil {
			return result, p.Name(), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apperr.New(apperr.CodeTranscriptionFailed, "no MIDI provider is configured")
	}
	return nil, "", apperr.Wrap(apperr.CodeTranscriptionFailed, "all MIDI providers failed", lastErr)
}
