package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkb"

	"GISData-App/internal/domain/helper"
	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
	"GISData-App/internal/infrastructure/database"
)

type PostgresFeatureRepository struct {
	client *database.PostgreSQLClient
}

func NewPostgresFeatureRepository(client *database.PostgreSQLClient) repository.FeatureRepository {
	return &PostgresFeatureRepository{
		client: client,
	}
}

// featureColumns geometry は WKB で受け取る
const (
	featureColumns      = `f.id, f.file_id, COALESCE(f.name, ''), f.properties, ST_AsBinary(f.geometry), f.created_at, f.updated_at`
	defaultFeatureLimit = 100
	maxFeatureLimit     = 10000
	defaultSpatialLimit = 1000
	propertiesColumn    = "f.properties"
)

func scanFeature(row rowScanner) (*model.Feature, error) {
	var f model.Feature
	var props []byte
	geom := wkb.Scanner(nil)
	if err := row.Scan(&f.ID, &f.FileID, &f.Name, &props, geom, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}

	if len(props) > 0 {
		if err := json.Unmarshal(props, &f.Properties); err != nil {
			return nil, fmt.Errorf("properties JSONBパースエラー: %w", err)
		}
	}
	if f.Properties == nil {
		f.Properties = map[string]interface{}{}
	}
	if geom.Valid {
		f.Geometry = geom.Geometry
	}
	return &f, nil
}

func (r *PostgresFeatureRepository) queryFeatures(ctx context.Context, query string, args ...interface{}) ([]model.Feature, error) {
	rows, err := r.client.DB.QueryContext(ctx, query, args...)
	if err != nil {
		if isInvalidID(err) {
			return []model.Feature{}, nil
		}
		return nil, fmt.Errorf("地物データ取得失敗: %w", err)
	}
	defer rows.Close()

	features := []model.Feature{}
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("地物データスキャンエラー: %w", err)
		}
		features = append(features, *f)
	}
	return features, rows.Err()
}

func (r *PostgresFeatureRepository) GetByID(ctx context.Context, id string) (*model.Feature, error) {
	row := r.client.DB.QueryRowContext(ctx, `SELECT `+featureColumns+` FROM features f WHERE f.id = $1`, id)
	f, err := scanFeature(row)
	if err != nil {
		if err == sql.ErrNoRows || isInvalidID(err) {
			return nil, model.NewNotFoundError(fmt.Sprintf("Feature %s not found", id))
		}
		return nil, fmt.Errorf("地物データの取得失敗: %w", err)
	}
	return f, nil
}

func (r *PostgresFeatureRepository) ListByFile(ctx context.Context, fileID string, skip, limit int) ([]model.Feature, error) {
	skip, limit = normalizePage(skip, limit)
	return r.queryFeatures(ctx,
		`SELECT `+featureColumns+` FROM features f WHERE f.file_id = $1 ORDER BY f.seq OFFSET $2 LIMIT $3`,
		fileID, skip, limit)
}

func (r *PostgresFeatureRepository) ListByFileIDs(ctx context.Context, fileIDs []string) ([]model.Feature, error) {
	if len(fileIDs) == 0 {
		return []model.Feature{}, nil
	}
	return r.queryFeatures(ctx, `
		SELECT `+featureColumns+` FROM features f
		WHERE f.file_id = ANY($1::uuid[])
		ORDER BY array_position($1::uuid[], f.file_id), f.seq`,
		pq.Array(fileIDs))
}

func (r *PostgresFeatureRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Feature, error) {
	if len(ids) == 0 {
		return []model.Feature{}, nil
	}
	return r.queryFeatures(ctx, `
		SELECT `+featureColumns+` FROM features f
		WHERE f.id = ANY($1::uuid[])
		ORDER BY array_position($1::uuid[], f.id)`,
		pq.Array(ids))
}

// List 属性の行政区分はキーの表記ゆれのいずれかが部分一致すればよい
func (r *PostgresFeatureRepository) List(ctx context.Context, filter model.FeatureFilter) ([]model.Feature, error) {
	var b sqlBuilder
	b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.StateKeys), filter.State)
	b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.DistrictKeys), filter.District)
	b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.TalukKeys), filter.Taluk)
	b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.VillageKeys), filter.Village)
	if filter.BBox != nil {
		b.where(fmt.Sprintf("ST_Intersects(f.geometry, ST_MakeEnvelope(%s, %s, %s, %s, 4326))",
			b.arg(filter.BBox[0]), b.arg(filter.BBox[1]), b.arg(filter.BBox[2]), b.arg(filter.BBox[3])))
	}

	skip, limit := normalizePage(filter.Skip, filter.Limit)
	query := `SELECT ` + featureColumns + ` FROM features f` + b.whereSQL() +
		fmt.Sprintf(` ORDER BY f.created_at, f.seq OFFSET %s LIMIT %s`, b.arg(skip), b.arg(limit))
	return r.queryFeatures(ctx, query, b.args...)
}

func (r *PostgresFeatureRepository) ListStates(ctx context.Context) ([]string, error) {
	return r.distinctProperty(ctx, helper.StateKeys, nil)
}

func (r *PostgresFeatureRepository) ListDistricts(ctx context.Context, state string) ([]string, error) {
	return r.distinctProperty(ctx, helper.DistrictKeys, func(b *sqlBuilder) {
		b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.StateKeys), state)
	})
}

func (r *PostgresFeatureRepository) ListTaluks(ctx context.Context, district string) ([]string, error) {
	return r.distinctProperty(ctx, helper.TalukKeys, func(b *sqlBuilder) {
		b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.DistrictKeys), district)
	})
}

func (r *PostgresFeatureRepository) ListVillages(ctx context.Context, district, taluk string) ([]string, error) {
	return r.distinctProperty(ctx, helper.VillageKeys, func(b *sqlBuilder) {
		b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.DistrictKeys), district)
		b.whereAnyILike(propertyTextExprs(propertiesColumn, helper.TalukKeys), taluk)
	})
}

// distinctProperty keys の表記ゆれを1つの値にまとめ、重複なく昇順で返す
func (r *PostgresFeatureRepository) distinctProperty(ctx context.Context, keys []string, filter func(b *sqlBuilder)) ([]string, error) {
	var b sqlBuilder
	if filter != nil {
		filter(&b)
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT v FROM (
			SELECT %s AS v FROM features f%s
		) s
		WHERE v IS NOT NULL
		ORDER BY v`, propertyCoalesceExpr(propertiesColumn, keys), b.whereSQL())
	return queryStrings(ctx, r.client.DB, query, b.args...)
}

// Update nil でない項目のみ更新する。Properties は全置換
func (r *PostgresFeatureRepository) Update(ctx context.Context, id string, update repository.FeatureGeometryUpdate) (*model.Feature, error) {
	var b sqlBuilder
	sets := []string{"updated_at = now()"}
	if update.Name != nil {
		sets = append(sets, "name = "+b.arg(*update.Name))
	}
	if update.Properties != nil {
		props, err := json.Marshal(model.SanitizeProperties(update.Properties))
		if err != nil {
			return nil, fmt.Errorf("属性のJSON変換失敗: %w", err)
		}
		sets = append(sets, "properties = "+b.arg(props))
	}
	if update.Geometry != nil {
		sets = append(sets, fmt.Sprintf("geometry = ST_SetSRID(ST_GeomFromWKB(%s), 4326)", b.arg(wkb.Value(update.Geometry))))
	}

	query := fmt.Sprintf(`UPDATE features f SET %s WHERE f.id = %s RETURNING %s`,
		strings.Join(sets, ", "), b.arg(id), featureColumns)
	f, err := scanFeature(r.client.DB.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if err == sql.ErrNoRows || isInvalidID(err) {
			return nil, model.NewNotFoundError(fmt.Sprintf("Feature %s not found", id))
		}
		return nil, fmt.Errorf("地物の更新失敗: %w", err)
	}
	return f, nil
}

// Delete ファイルの地物数も合わせて減らす
func (r *PostgresFeatureRepository) Delete(ctx context.Context, id string) error {
	return r.client.WithTx(ctx, func(tx *sql.Tx) error {
		var fileID string
		err := tx.QueryRowContext(ctx, `DELETE FROM features WHERE id = $1 RETURNING file_id`, id).Scan(&fileID)
		if err != nil {
			if err == sql.ErrNoRows || isInvalidID(err) {
				return model.NewNotFoundError(fmt.Sprintf("Feature %s not found", id))
			}
			return fmt.Errorf("地物の削除失敗: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE geo_files SET total_features = GREATEST(total_features - 1, 0), updated_at = now() WHERE id = $1`, fileID); err != nil {
			return fmt.Errorf("地物数の更新失敗: %w", err)
		}
		return nil
	})
}

// Spatial PostGISの空間関数で検索する。distance は度単位（SRID 4326）
func (r *PostgresFeatureRepository) Spatial(ctx context.Context, q repository.SpatialQuery) ([]model.Feature, error) {
	var b sqlBuilder
	target := fmt.Sprintf("ST_SetSRID(ST_GeomFromWKB(%s), 4326)", b.arg(wkb.Value(q.Geometry)))

	switch q.Operation {
	case model.SpatialIntersects:
		b.where("ST_Intersects(f.geometry, " + target + ")")
	case model.SpatialWithin:
		b.where("ST_Within(f.geometry, " + target + ")")
	case model.SpatialContains:
		b.where("ST_Contains(f.geometry, " + target + ")")
	case model.SpatialDistance:
		b.where(fmt.Sprintf("ST_DWithin(f.geometry, %s, %s)", target, b.arg(q.Distance)))
	default:
		return nil, model.NewValidationError(fmt.Sprintf("unsupported spatial operation: %s", q.Operation))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSpatialLimit
	}
	query := `SELECT ` + featureColumns + ` FROM features f` + b.whereSQL() +
		fmt.Sprintf(` ORDER BY f.created_at, f.seq LIMIT %s`, b.arg(limit))
	return r.queryFeatures(ctx, query, b.args...)
}

// normalizePage skip は0以上、limit は 1〜maxFeatureLimit（0以下は既定値）
func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultFeatureLimit
	}
	if limit > maxFeatureLimit {
		limit = maxFeatureLimit
	}
	return skip, limit
}
