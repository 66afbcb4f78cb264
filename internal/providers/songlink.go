package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/httpx"
)

// Songlink is the cross-platform resolver Identifier: given a streaming URL,
// an ISRC, or an audio URL, it looks up canonical metadata and every
// cross-platform ID it can find (odesli's song.link API shape).
type Songlink struct {
	baseURL string
}

func NewSonglink() *Songlink {
	return &Songlink{baseURL: "https://api.song.link/v1-alpha.1/links"}
}

func (s *Songlink) Name() string        { return "songlink" }
func (s *Songlink) IsConfigured() bool  { return true } // no-auth public API

func (s *Songlink) Handles(sourceType entities.SourceType) bool {
	switch sourceType {
	case entities.SourceSpotifyURL, entities.SourceAudioURL, entities.SourceISRC:
		return true
	default:
		return false
	}
}

type songlinkEntity struct {
	Title                string `json:"title"`
	ArtistName           string `json:"artistName"`
	AlbumName            string `json:"albumName"`
	ThumbnailURL         string `json:"thumbnailUrl"`
	ISRC                 string `json:"isrc"`
	APIProvider          string `json:"apiProvider"`
	PlatformNativeID     string `json:"platformNativeId"`
}

type songlinkResponse struct {
	EntityUniqueID    string                    `json:"entityUniqueId"`
	EntitiesByUniqueID map[string]songlinkEntity `json:"entitiesByUniqueId"`
}

func (s *Songlink) Identify(ctx context.Context, sourceType entities.SourceType, sourceValue string) (*IdentifyResult, error) {
	query := url.Values{}
	if sourceType == entities.SourceISRC {
		query.Set("isrc", sourceValue)
	} else {
		query.Set("url", sourceValue)
	}

	var resp songlinkResponse
	status, err := httpx.GetJSON(ctx, s.baseURL+"?"+query.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 || resp.EntityUniqueID == "" {
		return nil, nil
	}

	main, ok := resp.EntitiesByUniqueID[resp.EntityUniqueID]
	if !ok {
		for _, e := range resp.EntitiesByUniqueID {
			main = e
			break
		}
	}

	crossPlatformIDs := map[string]string{}
	var spotifyID string
	for uniqueID, e := range resp.EntitiesByUniqueID {
		platform := strings.ToLower(e.APIProvider)
		crossPlatformIDs[platform] = e.PlatformNativeID
		if platform == "spotify" {
			spotifyID = e.PlatformNativeID
		}
		_ = uniqueID
	}

	return &IdentifyResult{
		ISRC:             main.ISRC,
		Title:            main.Title,
		Artist:           main.ArtistName,
		Album:            main.AlbumName,
		AlbumArt:         main.ThumbnailURL,
		SpotifyID:        spotifyID,
		CrossPlatformIDs: crossPlatformIDs,
	}, nil
}
