package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/httpx"
)

// SpotifyIdentifier resolves a raw Spotify track ID via the Client
// Credentials flow's /tracks endpoint.
type SpotifyIdentifier struct {
	clientID     string
	clientSecret string
}

func NewSpotifyIdentifier(cfg config.ProvidersConfig) *SpotifyIdentifier {
	return &SpotifyIdentifier{clientID: cfg.SpotifyClientID, clientSecret: cfg.SpotifyClientSecret}
}

func (s *SpotifyIdentifier) Name() string       { return "spotify" }
func (s *SpotifyIdentifier) IsConfigured() bool { return s.clientID != "" && s.clientSecret != "" }
func (s *SpotifyIdentifier) Handles(sourceType entities.SourceType) bool {
	return sourceType == entities.SourceSpotifyID
}

type spotifyTrack struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
}

func (s *SpotifyIdentifier) Identify(ctx context.Context, sourceType entities.SourceType, sourceValue string) (*IdentifyResult, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("spotify credentials not configured")
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var track spotifyTrack
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := httpx.GetJSON(ctx, "https://api.spotify.com/v1/tracks/"+sourceValue, headers, &track)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, nil
	}

	artist := ""
	if len(track.Artists) > 0 {
		artist = track.Artists[0].Name
	}
	albumArt := ""
	if len(track.Album.Images) > 0 {
		albumArt = track.Album.Images[0].URL
	}

	return &IdentifyResult{
		ISRC:      track.ExternalIDs.ISRC,
		Title:     track.Name,
		Artist:    artist,
		Album:     track.Album.Name,
		AlbumArt:  albumArt,
		SpotifyID: sourceValue,
		CrossPlatformIDs: map[string]string{"spotify": sourceValue},
	}, nil
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *SpotifyIdentifier) accessToken(ctx context.Context) (string, error) {
	var resp spotifyTokenResponse
	headers := map[string]string{"Authorization": "Basic " + basicAuth(s.clientID, s.clientSecret)}
	_, err := httpx.PostJSON(ctx, "https://accounts.spotify.com/api/token?grant_type=client_credentials", headers, nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// AppleMusicIdentifier resolves a raw Apple Music catalog track ID.
type AppleMusicIdentifier struct {
	developerToken string
}

func NewAppleMusicIdentifier(cfg config.ProvidersConfig) *AppleMusicIdentifier {
	return &AppleMusicIdentifier{developerToken: cfg.AppleMusicToken}
}

func (a *AppleMusicIdentifier) Name() string       { return "apple_music" }
func (a *AppleMusicIdentifier) IsConfigured() bool { return a.developerToken != "" }
func (a *AppleMusicIdentifier) Handles(sourceType entities.SourceType) bool {
	return sourceType == entities.SourceAppleMusicID
}

type appleMusicResponse struct {
	Data []struct {
		Attributes struct {
			Name      string `json:"name"`
			ArtistName string `json:"artistName"`
			AlbumName string `json:"albumName"`
			ISRC      string `json:"isrc"`
			Artwork   struct {
				URL string `json:"url"`
			} `json:"artwork"`
		} `json:"attributes"`
	} `json:"data"`
}

func (a *AppleMusicIdentifier) Identify(ctx context.Context, sourceType entities.SourceType, sourceValue string) (*IdentifyResult, error) {
	if !a.IsConfigured() {
		return nil, fmt.Errorf("apple music token not configured")
	}

	var resp appleMusicResponse
	headers := map[string]string{"Authorization": "Bearer " + a.developerToken}
	status, err := httpx.GetJSON(ctx, "https://api.music.apple.com/v1/catalog/us/songs/"+sourceValue, headers, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 || len(resp.Data) == 0 {
		return nil, nil
	}

	attrs := resp.Data[0].Attributes
	return &IdentifyResult{
		ISRC:             attrs.ISRC,
		Title:            attrs.Name,
		Artist:           attrs.ArtistName,
		Album:            attrs.AlbumName,
		AlbumArt:         attrs.Artwork.URL,
		CrossPlatformIDs: map[string]string{"apple_music": sourceValue},
	}, nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
