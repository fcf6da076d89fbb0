package handler

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/helper"
	"GISData-App/internal/domain/model"
)

// respondError ドメインエラーの種類から HTTP ステータスを決める
// NotFound は 404、その他のクライアント起因のエラーは 400、それ以外は 500
func respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case model.IsClientError(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("❌ " + message)
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_parameter",
		"details": message,
	})
}

// FeatureResponse 地物のレスポンス
type FeatureResponse struct {
	ID         string                 `json:"id"`
	FileID     string                 `json:"file_id"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   interface{}            `json:"geometry"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// geometrySummary include_geometry=false の場合に返す型名だけのジオメトリ
type geometrySummary struct {
	Type        string        `json:"type"`
	Coordinates []interface{} `json:"coordinates"`
}

func toFeatureResponse(f model.Feature, includeGeometry bool) FeatureResponse {
	props := f.Properties
	if props == nil {
		props = map[string]interface{}{}
	}

	resp := FeatureResponse{
		ID:         f.ID,
		FileID:     f.FileID,
		Name:       f.Name,
		Properties: props,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
	switch {
	case f.Geometry == nil:
		resp.Geometry = nil
	case includeGeometry:
		resp.Geometry = helper.GeometryToGeoJSON(f.Geometry)
	default:
		resp.Geometry = geometrySummary{Type: geojson.NewGeometry(f.Geometry).Type, Coordinates: []interface{}{}}
	}
	return resp
}

func toFeatureResponses(features []model.Feature, includeGeometry bool) []FeatureResponse {
	out := make([]FeatureResponse, 0, len(features))
	for _, f := range features {
		out = append(out, toFeatureResponse(f, includeGeometry))
	}
	return out
}

// queryInt 未指定の場合は def を返す
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		badRequest(c, "Invalid "+key+" value")
		return 0, false
	}
	return v, true
}

func queryBool(c *gin.Context, key string, def bool) (bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, "Invalid "+key+" value")
		return false, false
	}
	return v, true
}

// parseBBox "min_lng,min_lat,max_lng,max_lat" 形式の bbox を解析する
func parseBBox(raw string) (*model.BoundingBox, error) {
	coords := strings.Split(raw, ",")
	if len(coords) != 4 {
		return nil, errors.New("bbox must contain 4 coordinates: min_lng,min_lat,max_lng,max_lat")
	}

	var bbox model.BoundingBox
	names := [4]string{"min_lng", "min_lat", "max_lng", "max_lat"}
	for i, s := range coords {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, errors.New("Invalid " + names[i] + " value")
		}
		bbox[i] = v
	}
	return &bbox, nil
}

// attachment ダウンロード用のヘッダーを付けて返す
func attachment(c *gin.Context, result *model.ExportResult) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename()})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, result.MimeType, result.Content)
}
