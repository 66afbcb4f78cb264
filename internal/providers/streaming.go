package providers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/trackforge/engine/internal/config"
	"github.com/trackforge/engine/internal/httpx"
)

func saveStream(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// Tidal is a StreamingProvider with priority 1 (spec.md §4.1).
type Tidal struct {
	clientID     string
	clientSecret string
}

func NewTidal(cfg config.ProvidersConfig) *Tidal {
	return &Tidal{clientID: cfg.TidalClientID, clientSecret: cfg.TidalClientSecret}
}

func (t *Tidal) Name() string       { return "tidal" }
func (t *Tidal) Priority() int      { return 1 }
func (t *Tidal) IsConfigured() bool { return t.clientID != "" && t.clientSecret != "" }

type tidalSearchResponse struct {
	Tracks struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	} `json:"tracks"`
}

func (t *Tidal) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	var resp tidalSearchResponse
	headers := map[string]string{"Authorization": "Bearer " + t.clientSecret}
	status, err := httpx.GetJSON(ctx, "https://openapi.tidal.com/v2/searchresults?query=isrc:"+isrc, headers, &resp)
	if err != nil || status >= 300 || len(resp.Tracks.Items) == 0 {
		return "", err
	}
	return resp.Tracks.Items[0].ID, nil
}

func (t *Tidal) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	return &TrackInfo{TrackID: trackID}, nil
}

func (t *Tidal) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	streamURL := fmt.Sprintf("https://openapi.tidal.com/v2/tracks/%s/playbackinfo", trackID)
	headers := map[string]string{"Authorization": "Bearer " + t.clientSecret}
	if err := httpx.DownloadFile(ctx, streamURL, outputPath, headers, saveStream); err != nil {
		return nil, err
	}
	return &DownloadResult{Path: outputPath, Format: "FLAC", Quality: "lossless"}, nil
}

// Deezer is a StreamingProvider with priority 2. Deezer's "arl" cookie
// stands in for OAuth credentials.
type Deezer struct {
	arl string
}

func NewDeezer(cfg config.ProvidersConfig) *Deezer {
	return &Deezer{arl: cfg.DeezerARL}
}

func (d *Deezer) Name() string       { return "deezer" }
func (d *Deezer) Priority() int      { return 2 }
func (d *Deezer) IsConfigured() bool { return d.arl != "" }

type deezerSearchResponse struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

func (d *Deezer) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	var resp deezerSearchResponse
	status, err := httpx.GetJSON(ctx, "https://api.deezer.com/track/isrc:"+isrc, nil, &resp)
	if err != nil || status >= 300 || len(resp.Data) == 0 {
		return "", err
	}
	return fmt.Sprintf("%d", resp.Data[0].ID), nil
}

func (d *Deezer) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	return &TrackInfo{TrackID: trackID}, nil
}

func (d *Deezer) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	streamURL := "https://api.deezer.com/track/" + trackID + "/download"
	headers := map[string]string{"Cookie": "arl=" + d.arl}
	if err := httpx.DownloadFile(ctx, streamURL, outputPath, headers, saveStream); err != nil {
		return nil, err
	}
	return &DownloadResult{Path: outputPath, Format: "FLAC", Quality: "lossless"}, nil
}

// Qobuz is a StreamingProvider with priority 3.
type Qobuz struct {
	appID         string
	appSecret     string
	userAuthToken string
}

func NewQobuz(cfg config.ProvidersConfig) *Qobuz {
	return &Qobuz{appID: cfg.QobuzAppID, appSecret: cfg.QobuzAppSecret, userAuthToken: cfg.QobuzUserAuthToken}
}

func (q *Qobuz) Name() string       { return "qobuz" }
func (q *Qobuz) Priority() int      { return 3 }
func (q *Qobuz) IsConfigured() bool { return q.appID != "" && q.userAuthToken != "" }

type qobuzSearchResponse struct {
	Tracks struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	} `json:"tracks"`
}

func (q *Qobuz) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	var resp qobuzSearchResponse
	headers := map[string]string{"X-App-Id": q.appID, "X-User-Auth-Token": q.userAuthToken}
	status, err := httpx.GetJSON(ctx, "https://www.qobuz.com/api.json/0.2/track/search?query="+isrc, headers, &resp)
	if err != nil || status >= 300 || len(resp.Tracks.Items) == 0 {
		return "", err
	}
	return fmt.Sprintf("%d", resp.Tracks.Items[0].ID), nil
}

func (q *Qobuz) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	return &TrackInfo{TrackID: trackID}, nil
}

func (q *Qobuz) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	streamURL := "https://www.qobuz.com/api.json/0.2/track/getFileUrl?track_id=" + trackID + "&format_id=27"
	headers := map[string]string{"X-App-Id": q.appID, "X-User-Auth-Token": q.userAuthToken}
	if err := httpx.DownloadFile(ctx, streamURL, outputPath, headers, saveStream); err != nil {
		return nil, err
	}
	return &DownloadResult{Path: outputPath, Format: "FLAC", Quality: "lossless"}, nil
}
