package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"homecare-ai/internal/app"
	"homecare-ai/internal/model"
	"homecare-ai/internal/stage"
	"homecare-ai/internal/transport/http/middleware"
	"homecare-ai/internal/transport/http/response"
)

type CareLogHandler struct {
	careLogService *app.CareLogService
	maxUploadBytes int64
}

type EmailRequest struct {
	To string `json:"to" binding:"required,email,max=254"`
}

type careLogView struct {
	ID               uint   `json:"id"`
	OriginalFilename string `json:"original_filename"`
	Transcript       string `json:"transcript,omitempty"`
	Summary          string `json:"summary"`
	TxtPath          string `json:"txt_path"`
	PdfPath          string `json:"pdf_path"`
	CreatedAt        string `json:"created_at"`
}

func NewCareLogHandler(careLogService *app.CareLogService, maxUploadMB int) *CareLogHandler {
	return &CareLogHandler{
		careLogService: careLogService,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

func (h *CareLogHandler) Create(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in session")
		return
	}

	// Allow headroom for the multipart envelope around the file itself.
	limit := h.maxUploadBytes + 1<<20
	if c.Request.ContentLength > limit {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "upload is too large")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "upload is too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "multipart field \"file\" is required")
		return
	}
	if header.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge,
			fmt.Sprintf("upload exceeds %d MB", h.maxUploadBytes>>20))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}
	defer file.Close()

	result, err := h.careLogService.Process(c.Request.Context(), session, app.Upload{
		Filename: header.Filename,
		Content:  file,
	})
	if err != nil {
		writeServiceError(c, err, result)
		return
	}

	response.OK(c, toView(result.Record, true))
}

func (h *CareLogHandler) List(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in session")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
		return
	}

	logs, err := h.careLogService.List(c.Request.Context(), session, limit)
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	views := make([]careLogView, 0, len(logs))
	for i := range logs {
		views = append(views, toView(&logs[i], false))
	}
	response.OK(c, gin.H{"care_logs": views})
}

func (h *CareLogHandler) Get(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	response.OK(c, toView(record, true))
}

func (h *CareLogHandler) DownloadTxt(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	serveArtifact(c, record.TxtPath)
}

func (h *CareLogHandler) DownloadPDF(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	serveArtifact(c, record.PdfPath)
}

func (h *CareLogHandler) Email(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in session")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "a valid recipient address is required")
		return
	}

	if err := h.careLogService.SendEmail(c.Request.Context(), session, id, req.To); err != nil {
		writeServiceError(c, err, nil)
		return
	}
	response.OK(c, gin.H{"id": id, "to": req.To, "sent": true})
}

func (h *CareLogHandler) lookup(c *gin.Context) (*model.CareLog, bool) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in session")
		return nil, false
	}
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	record, err := h.careLogService.Get(c.Request.Context(), session, id)
	if err != nil {
		writeServiceError(c, err, nil)
		return nil, false
	}
	return record, true
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid care log id")
		return 0, false
	}
	return uint(id), true
}

func serveArtifact(c *gin.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		response.Error(c, http.StatusNotFound, response.CodeFileNotFound, "file is no longer available")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func toView(record *model.CareLog, withTranscript bool) careLogView {
	v := careLogView{
		ID:               record.ID,
		OriginalFilename: record.OriginalFilename,
		Summary:          record.Summary,
		TxtPath:          record.TxtPath,
		PdfPath:          record.PdfPath,
		CreatedAt:        record.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if withTranscript {
		v.Transcript = record.Transcript
	}
	return v
}

// writeServiceError maps pipeline and lookup failures onto HTTP responses.
// Stage failures carry the stage and kind so clients can tell them apart.
func writeServiceError(c *gin.Context, err error, result *app.ProcessResult) {
	var se *stage.Error
	if errors.As(err, &se) {
		status, code := statusForKind(se.Kind)
		data := gin.H{"stage": se.Stage, "kind": se.Kind}
		if result != nil {
			data["saved"] = result.Saved
			data["txt_path"] = result.TxtPath
			data["pdf_path"] = result.PdfPath
		}
		response.ErrorWithData(c, status, code, se.Error(), data)
		return
	}

	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrCareLogNotFound):
		response.Error(c, http.StatusNotFound, response.CodeCareLogNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "request failed")
	}
}

func statusForKind(kind stage.Kind) (int, int) {
	switch kind {
	case stage.KindUnsupportedFormat:
		return http.StatusBadRequest, response.CodeUnsupportedFormat
	case stage.KindConfiguration:
		return http.StatusServiceUnavailable, response.CodeNotConfigured
	case stage.KindSummarizationTransport, stage.KindNotification:
		return http.StatusBadGateway, response.CodeUpstreamFailed
	default:
		return http.StatusInternalServerError, response.CodePipelineFailed
	}
}
