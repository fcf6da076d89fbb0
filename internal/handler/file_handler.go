package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/usecase"
)

// FileHandler アップロードファイルに関するHTTPハンドラー
type FileHandler struct {
	uploadUseCase usecase.UploadUseCase
	fileUseCase   usecase.FileUseCase
	exportUseCase usecase.ExportUseCase
	// maxUploadBytes アップロードの上限バイト数。0 以下なら無制限
	maxUploadBytes int64
}

// NewFileHandler FileHandlerの新しいインスタンスを作成
func NewFileHandler(
	uploadUseCase usecase.UploadUseCase,
	fileUseCase usecase.FileUseCase,
	exportUseCase usecase.ExportUseCase,
	maxUploadBytes int64,
) *FileHandler {
	return &FileHandler{
		uploadUseCase:  uploadUseCase,
		fileUseCase:    fileUseCase,
		exportUseCase:  exportUseCase,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload POST /files/upload - GISファイルのアップロード
func (h *FileHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_parameter",
			"details": "file is required",
		})
		return
	}

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		respondError(c, "Failed to upload file", h.tooLarge(header.Size))
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, "Failed to read uploaded file", err)
		return
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxUploadBytes > 0 {
		r = io.LimitReader(f, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		respondError(c, "Failed to read uploaded file", err)
		return
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		respondError(c, "Failed to upload file", h.tooLarge(int64(len(data))))
		return
	}

	log.Info().
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Msg("📥 アップロードを受信")

	resp, err := h.uploadUseCase.Upload(c.Request.Context(), &usecase.UploadRequest{
		Data:     data,
		Filename: header.Filename,
		State:    c.PostForm("state"),
		District: c.PostForm("district"),
		Policy:   c.PostForm("policy"),
	})
	if err != nil {
		respondError(c, "Failed to upload file", err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *FileHandler) tooLarge(size int64) error {
	return model.NewValidationError(fmt.Sprintf("file size %d bytes exceeds the limit of %d bytes", size, h.maxUploadBytes))
}

// ListFiles GET /files - ファイル一覧
func (h *FileHandler) ListFiles(c *gin.Context) {
	files, err := h.fileUseCase.ListFiles(c.Request.Context(), model.FileFilter{
		State:    c.Query("state"),
		District: c.Query("district"),
	})
	if err != nil {
		respondError(c, "Failed to list files", err)
		return
	}
	if files == nil {
		files = []model.FileRecord{}
	}
	c.JSON(http.StatusOK, files)
}

// ListStates GET /files/states - ファイルの州一覧
func (h *FileHandler) ListStates(c *gin.Context) {
	states, err := h.fileUseCase.ListStates(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list states", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(states))
}

// ListDistricts GET /files/districts - ファイルの地区一覧
func (h *FileHandler) ListDistricts(c *gin.Context) {
	districts, err := h.fileUseCase.ListDistricts(c.Request.Context(), c.Query("state"))
	if err != nil {
		respondError(c, "Failed to list districts", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(districts))
}

// GetFile GET /files/:id - ファイル詳細
func (h *FileHandler) GetFile(c *gin.Context) {
	file, err := h.fileUseCase.GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get file", err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// GetFileFeatures GET /files/:id/features - ファイルに含まれる地物
// include_geometry の既定値は false
func (h *FileHandler) GetFileFeatures(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	includeGeometry, ok := queryBool(c, "include_geometry", false)
	if !ok {
		return
	}

	features, err := h.fileUseCase.GetFileFeatures(c.Request.Context(), c.Param("id"), skip, limit)
	if err != nil {
		respondError(c, "Failed to get file features", err)
		return
	}
	c.JSON(http.StatusOK, toFeatureResponses(features, includeGeometry))
}

// GetReport GET /files/:id/report - 取り込みレポート
func (h *FileHandler) GetReport(c *gin.Context) {
	report, err := h.fileUseCase.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get upload report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeleteFile DELETE /files/:id - ファイルと地物の削除
func (h *FileHandler) DeleteFile(c *gin.Context) {
	if err := h.fileUseCase.DeleteFile(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "Failed to delete file", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadFile GET /files/:id/download - 1ファイルを指定形式で出力
func (h *FileHandler) DownloadFile(c *gin.Context) {
	result, err := h.exportUseCase.DownloadFile(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "geojson"))
	if err != nil {
		respondError(c, "Failed to download file", err)
		return
	}
	attachment(c, result)
}

// Download POST /files/download - 複数ファイル・地物をまとめて出力
func (h *FileHandler) Download(c *gin.Context) {
	var sel model.ExportSelection
	if err := c.ShouldBindJSON(&sel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	result, err := h.exportUseCase.Download(c.Request.Context(), &sel)
	if err != nil {
		respondError(c, "Failed to download files", err)
		return
	}
	attachment(c, result)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
