package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trackforge/engine/internal/api/response"
	"github.com/trackforge/engine/internal/apperr"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/search"
)

// searchText handles POST /search/text: an LLM-gateway lookup by title,
// lyric fragment, or description. Auxiliary to the orchestrator contract
// (spec.md §6).
func (s *Server) searchText(c *gin.Context) {
	var req textSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if err := s.validate.Validate(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if s.textSearch == nil || !s.textSearch.IsConfigured() {
		response.JSON(c, http.StatusOK, suggestionsResponse{Suggestions: []entities.SongSuggestion{}})
		return
	}

	suggestions, err := s.textSearch.Search(c.Request.Context(), req.Query, req.Type)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeTransportError, "llm gateway search failed", err))
		return
	}
	response.JSON(c, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}

// searchHumming handles POST /search/humming: matches a recorded hum
// against the precomputed fingerprint library via cosine similarity.
func (s *Server) searchHumming(c *gin.Context) {
	var req hummingSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if req.AudioPath == "" && len(req.AudioBuffer) == 0 {
		response.Error(c, apperr.New(apperr.CodeValidation, "audio_path or audio_buffer is required"))
		return
	}
	if s.hummingSearch == nil || !s.hummingSearch.IsConfigured() {
		response.JSON(c, http.StatusOK, suggestionsResponse{Suggestions: []entities.SongSuggestion{}})
		return
	}

	library, err := s.hummingSearch.LoadLibrary()
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "loading fingerprint library", err))
		return
	}

	mfcc, chroma := search.ExtractQueryFeatures(req.AudioPath, req.AudioBuffer)
	suggestions := s.hummingSearch.Search(mfcc, chroma, library, 10, 0.5)
	response.JSON(c, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}

// searchMusicBrainz handles GET /search/musicbrainz?query=...&type=....
func (s *Server) searchMusicBrainz(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		response.Error(c, apperr.New(apperr.CodeValidation, "query is required"))
		return
	}
	entityType := c.DefaultQuery("type", "recording")

	suggestions, err := s.musicBrainz.Search(c.Request.Context(), query, entityType)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeTransportError, "musicbrainz search failed", err))
		return
	}
	response.JSON(c, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}
