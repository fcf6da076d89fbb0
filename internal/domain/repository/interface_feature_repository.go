package repository

import (
	"context"

	"github.com/paulmach/orb"

	"GISData-App/internal/domain/model"
)

// FeatureGeometryUpdate 地物更新時の値（Geometry は正規化済みの WGS84）
type FeatureGeometryUpdate struct {
	Name       *string
	Properties map[string]interface{}
	Geometry   orb.Geometry
}

// SpatialQuery 空間検索の条件。Distance は SpatialDistance のときのみ使う（度）
type SpatialQuery struct {
	Operation model.SpatialOperation
	Geometry  orb.Geometry
	Distance  float64
	Limit     int
}

type FeatureRepository interface {
	GetByID(ctx context.Context, id string) (*model.Feature, error)
	ListByFile(ctx context.Context, fileID string, skip, limit int) ([]model.Feature, error)
	// ListByFileIDs はエクスポート用に複数ファイルの全地物を返す（ファイル順・登録順）
	ListByFileIDs(ctx context.Context, fileIDs []string) ([]model.Feature, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Feature, error)
	// List は属性の州・地区・タルク・村（キー表記ゆれを含む）と外接矩形で絞り込む
	List(ctx context.Context, filter model.FeatureFilter) ([]model.Feature, error)

	ListStates(ctx context.Context) ([]string, error)
	ListDistricts(ctx context.Context, state string) ([]string, error)
	ListTaluks(ctx context.Context, district string) ([]string, error)
	ListVillages(ctx context.Context, district, taluk string) ([]string, error)

	Update(ctx context.Context, id string, update FeatureGeometryUpdate) (*model.Feature, error)
	Delete(ctx context.Context, id string) error
	Spatial(ctx context.Context, query SpatialQuery) ([]model.Feature, error)
}
