package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/usecase"
)

// FeatureHandler 地物に関するHTTPハンドラー
type FeatureHandler struct {
	featureUseCase usecase.FeatureUseCase
}

// NewFeatureHandler FeatureHandlerの新しいインスタンスを作成
func NewFeatureHandler(featureUseCase usecase.FeatureUseCase) *FeatureHandler {
	return &FeatureHandler{
		featureUseCase: featureUseCase,
	}
}

// updateFeatureRequest PUT /features/:id のリクエストボディ
type updateFeatureRequest struct {
	Name       *string                `json:"name"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   interface{}            `json:"geometry"`
}

// ListFeatures GET /features - 地物一覧（行政区分・bboxで絞り込み）
func (h *FeatureHandler) ListFeatures(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	includeGeometry, ok := queryBool(c, "include_geometry", true)
	if !ok {
		return
	}

	filter := model.FeatureFilter{
		State:           c.Query("state"),
		District:        c.Query("district"),
		Taluk:           c.Query("taluk"),
		Village:         c.Query("village"),
		Skip:            skip,
		Limit:           limit,
		IncludeGeometry: includeGeometry,
	}
	if raw := c.Query("bbox"); raw != "" {
		bbox, err := parseBBox(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.BBox = bbox
	}

	features, err := h.featureUseCase.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list features", err)
		return
	}
	c.JSON(http.StatusOK, toFeatureResponses(features, includeGeometry))
}

// ListStates GET /features/states
func (h *FeatureHandler) ListStates(c *gin.Context) {
	h.respondValues(c, "states", func() ([]string, error) {
		return h.featureUseCase.ListStates(c.Request.Context())
	})
}

// ListDistricts GET /features/districts?state=
func (h *FeatureHandler) ListDistricts(c *gin.Context) {
	h.respondValues(c, "districts", func() ([]string, error) {
		return h.featureUseCase.ListDistricts(c.Request.Context(), c.Query("state"))
	})
}

// ListTaluks GET /features/taluks?district=
func (h *FeatureHandler) ListTaluks(c *gin.Context) {
	h.respondValues(c, "taluks", func() ([]string, error) {
		return h.featureUseCase.ListTaluks(c.Request.Context(), c.Query("district"))
	})
}

// ListVillages GET /features/villages?district=&taluk=
func (h *FeatureHandler) ListVillages(c *gin.Context) {
	h.respondValues(c, "villages", func() ([]string, error) {
		return h.featureUseCase.ListVillages(c.Request.Context(), c.Query("district"), c.Query("taluk"))
	})
}

func (h *FeatureHandler) respondValues(c *gin.Context, what string, fetch func() ([]string, error)) {
	values, err := fetch()
	if err != nil {
		respondError(c, "Failed to list "+what, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(values))
}

// GetFeature GET /features/:id - 地物の詳細
func (h *FeatureHandler) GetFeature(c *gin.Context) {
	feature, err := h.featureUseCase.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get feature", err)
		return
	}
	c.JSON(http.StatusOK, toFeatureResponse(*feature, true))
}

// UpdateFeature PUT /features/:id - 地物の名前・属性・ジオメトリを更新
func (h *FeatureHandler) UpdateFeature(c *gin.Context) {
	var req updateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	feature, err := h.featureUseCase.Update(c.Request.Context(), c.Param("id"), &model.FeatureUpdate{
		Name:       req.Name,
		Properties: req.Properties,
		Geometry:   req.Geometry,
	})
	if err != nil {
		respondError(c, "Failed to update feature", err)
		return
	}
	c.JSON(http.StatusOK, toFeatureResponse(*feature, true))
}

// DeleteFeature DELETE /features/:id
func (h *FeatureHandler) DeleteFeature(c *gin.Context) {
	if err := h.featureUseCase.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "Failed to delete feature", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Spatial POST /features/spatial/:operation - 空間検索（intersects / within / contains / distance）
func (h *FeatureHandler) Spatial(c *gin.Context) {
	var req usecase.SpatialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	op := model.SpatialOperation(c.Param("operation"))
	features, err := h.featureUseCase.Spatial(c.Request.Context(), op, &req)
	if err != nil {
		respondError(c, "Error in spatial query", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operation": op,
		"count":     len(features),
		"results":   toFeatureResponses(features, true),
	})
}
