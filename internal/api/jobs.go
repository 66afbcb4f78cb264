package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/api/response"
	"github.com/trackforge/engine/internal/apperr"
	"github.com/trackforge/engine/internal/entities"
)

var validStemTypes = map[entities.StemType]bool{
	entities.StemVocals:       true,
	entities.StemDrums:        true,
	entities.StemBass:         true,
	entities.StemMelody:       true,
	entities.StemInstrumental: true,
	entities.StemOther:        true,
}

// listJobs handles GET /jobs?limit=N (spec.md §6), default limit 20.
func (s *Server) listJobs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := s.store.ListJobs(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "listing jobs", err))
		return
	}

	items := make([]jobListItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobListItem{
			ID:              j.ID,
			Status:          j.Status,
			Title:           j.Title,
			Artist:          j.Artist,
			Album:           j.Album,
			AlbumArt:        j.AlbumArt,
			Progress:        j.Progress,
			ProgressMessage: j.ProgressMessage,
			CreatedAt:       j.CreatedAt,
			UpdatedAt:       j.UpdatedAt,
		})
	}
	response.JSON(c, http.StatusOK, jobListResponse{Jobs: items})
}

// createJob handles POST /jobs. The created row is handed to the
// dispatcher non-blockingly before the response returns (spec.md §4.5).
func (s *Server) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if err := s.validate.Validate(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	job := &entities.Job{
		ID:          uuid.New(),
		Status:      entities.JobPending,
		SourceType:  entities.SourceType(req.SourceType),
		SourceValue: req.SourceValue,
		Title:       req.Title,
		Artist:      req.Artist,
		Album:       req.Album,
	}

	if err := s.store.CreateJob(c.Request.Context(), job); err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "creating job", err))
		return
	}

	s.dispatcher.Submit(job.ID)

	response.JSON(c, http.StatusCreated, createJobResponse{ID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt})
}

// uploadJob handles POST /jobs/upload: a multipart form with an "audio"
// file field and optional title/artist/album. The identify step
// short-circuits entirely for file_upload sources (spec.md §4.2).
func (s *Server) uploadJob(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		response.Error(c, apperr.New(apperr.CodeValidation, "missing audio file field"))
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	allowed := false
	for _, a := range s.storageCfg.AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		response.Error(c, apperr.New(apperr.CodeValidation, "unsupported file extension "+ext))
		return
	}
	if fileHeader.Size > s.storageCfg.MaxUploadBytes {
		response.Error(c, apperr.New(apperr.CodeValidation, "file exceeds maximum upload size"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "opening uploaded file", err))
		return
	}
	defer src.Close()

	jobID := uuid.New()
	uploadName := jobID.String() + ext
	path, err := s.storage.SaveUpload(uploadName, src)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "saving uploaded file", err))
		return
	}

	var title, artist, album *string
	if v := c.PostForm("title"); v != "" {
		title = &v
	}
	if v := c.PostForm("artist"); v != "" {
		artist = &v
	}
	if v := c.PostForm("album"); v != "" {
		album = &v
	}

	job := &entities.Job{
		ID:          jobID,
		Status:      entities.JobPending,
		SourceType:  entities.SourceFileUpload,
		SourceValue: path,
		Title:       title,
		Artist:      artist,
		Album:       album,
	}

	if err := s.store.CreateJob(c.Request.Context(), job); err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "creating job", err))
		return
	}

	s.dispatcher.Submit(job.ID)

	response.JSON(c, http.StatusCreated, createJobResponse{ID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt})
}

func (s *Server) loadJob(c *gin.Context) (*entities.Job, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.New(apperr.CodeValidation, "invalid job id"))
		return nil, false
	}
	job, err := s.store.GetJob(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "loading job", err))
		return nil, false
	}
	if job == nil {
		response.Error(c, apperr.New(apperr.CodeNotFound, "job not found"))
		return nil, false
	}
	return job, true
}

// getJob handles GET /jobs/{id} (spec.md §6). The job row is always loaded
// from the store; when a Redis cache is configured, a cached detail payload
// replaces the asset query and response assembly until its short TTL runs out.
func (s *Server) getJob(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}

	if s.jobCache != nil {
		if cached, err := s.jobCache.Get(c.Request.Context(), job.ID.String()); err == nil && cached != nil {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
	}

	assets, err := s.store.GetAssetsByJob(c.Request.Context(), job.ID)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "loading job assets", err))
		return
	}

	detail := newJobDetailResponse(job, assets)
	if s.jobCache != nil {
		if err := s.jobCache.Set(c.Request.Context(), job.ID.String(), detail); err != nil {
			s.logger.Warn("caching job detail", zap.Error(err))
		}
	}
	response.JSON(c, http.StatusOK, detail)
}

// getStem handles GET /jobs/{id}/stems/{stem_type}?format=audio|midi,
// streaming the binary file with the naming convention of spec.md §6.
func (s *Server) getStem(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	if job.Status != entities.JobCompleted {
		response.Error(c, apperr.New(apperr.CodeValidation, "job is not completed"))
		return
	}

	stemType := entities.StemType(c.Param("stem_type"))
	if !validStemTypes[stemType] {
		response.Error(c, apperr.New(apperr.CodeValidation, "unknown stem type"))
		return
	}

	format := c.DefaultQuery("format", "audio")
	if format != "audio" && format != "midi" {
		response.Error(c, apperr.New(apperr.CodeValidation, "format must be audio or midi"))
		return
	}

	asset, err := s.store.GetAssetByStemType(c.Request.Context(), job.ID, stemType)
	if err != nil || asset == nil {
		response.Error(c, apperr.New(apperr.CodeNotFound, "stem not found"))
		return
	}

	name := "track"
	if job.Title != nil && *job.Title != "" {
		name = *job.Title
	}

	var path, contentType, ext string
	if format == "midi" {
		if !asset.HasMidi || asset.MidiPath == nil {
			response.Error(c, apperr.New(apperr.CodeNotFound, "midi not available for this stem"))
			return
		}
		path, contentType, ext = *asset.MidiPath, "audio/midi", "mid"
	} else {
		path, contentType, ext = asset.FilePath, "audio/wav", "wav"
	}

	if !s.storage.Exists(path) {
		response.Error(c, apperr.New(apperr.CodeNotFound, "stem file missing on disk"))
		return
	}

	filename := fmt.Sprintf("%s_%s.%s", name, stemType, ext)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", contentType)
	c.File(path)
}

// getDownload handles GET /jobs/{id}/download: bulk-download metadata for
// a client to fetch every asset itself (spec.md §6).
func (s *Server) getDownload(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	assets, err := s.store.GetAssetsByJob(c.Request.Context(), job.ID)
	if err != nil {
		response.Error(c, apperr.Wrap(apperr.CodeInternal, "loading job assets", err))
		return
	}

	files := make([]downloadFile, 0, len(assets))
	for _, a := range assets {
		files = append(files, downloadFile{Type: a.StemType, AudioPath: a.FilePath, MidiPath: a.MidiPath})
	}
	response.JSON(c, http.StatusOK, downloadResponse{Title: job.Title, Artist: job.Artist, Files: files})
}
