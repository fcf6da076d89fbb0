package usecase

import (
	"context"
	"fmt"

	"GISData-App/internal/domain/coordinate"
	"GISData-App/internal/domain/helper"
	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
)

// SpatialRequest 空間検索の入力（Geometry は GeoJSON の geometry オブジェクト）
type SpatialRequest struct {
	Geometry interface{} `json:"geometry"`
	Distance *float64    `json:"distance"`
	Limit    int         `json:"limit"`
}

type FeatureUseCase interface {
	List(ctx context.Context, filter model.FeatureFilter) ([]model.Feature, error)
	Get(ctx context.Context, id string) (*model.Feature, error)
	ListStates(ctx context.Context) ([]string, error)
	ListDistricts(ctx context.Context, state string) ([]string, error)
	ListTaluks(ctx context.Context, district string) ([]string, error)
	ListVillages(ctx context.Context, district, taluk string) ([]string, error)
	// Update は geometry が指定された場合、座標パイプラインで正規化してから保存する
	Update(ctx context.Context, id string, update *model.FeatureUpdate) (*model.Feature, error)
	Delete(ctx context.Context, id string) error
	Spatial(ctx context.Context, op model.SpatialOperation, req *SpatialRequest) ([]model.Feature, error)
}

type featureUseCaseImpl struct {
	features repository.FeatureRepository
	pipeline *coordinate.Pipeline
}

// NewFeatureUseCase は新しいFeatureUseCaseインスタンスを作成
func NewFeatureUseCase(features repository.FeatureRepository, pipeline *coordinate.Pipeline) FeatureUseCase {
	return &featureUseCaseImpl{
		features: features,
		pipeline: pipeline,
	}
}

func (u *featureUseCaseImpl) List(ctx context.Context, filter model.FeatureFilter) ([]model.Feature, error) {
	if filter.BBox != nil {
		b := filter.BBox
		if b[0] > b[2] || b[1] > b[3] {
			return nil, model.NewValidationError("bbox must be minLon,minLat,maxLon,maxLat")
		}
	}
	return u.features.List(ctx, filter)
}

func (u *featureUseCaseImpl) Get(ctx context.Context, id string) (*model.Feature, error) {
	return u.features.GetByID(ctx, id)
}

func (u *featureUseCaseImpl) ListStates(ctx context.Context) ([]string, error) {
	return u.features.ListStates(ctx)
}

func (u *featureUseCaseImpl) ListDistricts(ctx context.Context, state string) ([]string, error) {
	return u.features.ListDistricts(ctx, state)
}

func (u *featureUseCaseImpl) ListTaluks(ctx context.Context, district string) ([]string, error) {
	return u.features.ListTaluks(ctx, district)
}

func (u *featureUseCaseImpl) ListVillages(ctx context.Context, district, taluk string) ([]string, error) {
	return u.features.ListVillages(ctx, district, taluk)
}

func (u *featureUseCaseImpl) Update(ctx context.Context, id string, update *model.FeatureUpdate) (*model.Feature, error) {
	values := repository.FeatureGeometryUpdate{
		Name:       update.Name,
		Properties: update.Properties,
	}

	if update.Geometry != nil {
		g, err := helper.GeometryFromGeoJSON(update.Geometry)
		if err != nil {
			return nil, model.NewValidationError(fmt.Sprintf("Invalid geometry: %v", err))
		}
		res, err := u.pipeline.Normalize(g)
		if err != nil {
			return nil, err
		}
		values.Geometry = res.Geometry
	}

	return u.features.Update(ctx, id, values)
}

func (u *featureUseCaseImpl) Delete(ctx context.Context, id string) error {
	return u.features.Delete(ctx, id)
}

func (u *featureUseCaseImpl) Spatial(ctx context.Context, op model.SpatialOperation, req *SpatialRequest) ([]model.Feature, error) {
	if !op.IsValid() {
		return nil, model.NewValidationError(fmt.Sprintf("unsupported spatial operation %q; use intersects, within, contains or distance", op))
	}

	g, err := helper.GeometryFromGeoJSON(req.Geometry)
	if err != nil {
		return nil, model.NewValidationError(fmt.Sprintf("Invalid geometry: %v", err))
	}
	if _, ok := coordinate.Validate(g); !ok {
		return nil, model.NewValidationError("query geometry must be in WGS84 longitude/latitude")
	}

	query := repository.SpatialQuery{Operation: op, Geometry: g, Limit: req.Limit}
	if op == model.SpatialDistance {
		if req.Distance == nil || *req.Distance <= 0 {
			return nil, model.NewValidationError("Distance parameter is required")
		}
		query.Distance = *req.Distance
	}
	return u.features.Spatial(ctx, query)
}
