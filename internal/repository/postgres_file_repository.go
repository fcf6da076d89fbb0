package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
	"GISData-App/internal/infrastructure/database"
)

type PostgresFileRepository struct {
	client *database.PostgreSQLClient
}

func NewPostgresFileRepository(client *database.PostgreSQLClient) repository.FileRepository {
	return &PostgresFileRepository{
		client: client,
	}
}

const fileColumns = `id, filename, original_filename, file_type, state, COALESCE(district, ''),
	COALESCE(storage_path, ''), total_features, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*model.FileRecord, error) {
	var f model.FileRecord
	var fileType string
	err := row.Scan(&f.ID, &f.Filename, &f.OriginalFilename, &fileType, &f.State, &f.District,
		&f.StoragePath, &f.TotalFeatures, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.FileType = model.FileType(fileType)
	return &f, nil
}

// CreateWithFeatures ファイル・全地物・地物数の更新を1トランザクションで行う
func (r *PostgresFileRepository) CreateWithFeatures(ctx context.Context, file *model.FileRecord, features []model.Feature) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	file.CreatedAt, file.UpdatedAt = now, now

	err := r.client.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO geo_files (id, filename, original_filename, file_type, state, district, storage_path, total_features, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), 0, $8, $8)`,
			file.ID, file.Filename, file.OriginalFilename, string(file.FileType), file.State, file.District, file.StoragePath, now)
		if err != nil {
			return fmt.Errorf("ファイルの登録失敗: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO features (id, file_id, name, properties, geometry, seq, created_at, updated_at)
			VALUES ($1, $2, $3, $4, ST_SetSRID(ST_GeomFromWKB($5), 4326), $6, $7, $7)`)
		if err != nil {
			return fmt.Errorf("地物登録の準備失敗: %w", err)
		}
		defer stmt.Close()

		for i := range features {
			f := &features[i]
			if f.ID == "" {
				f.ID = uuid.New().String()
			}
			f.FileID = file.ID
			f.CreatedAt, f.UpdatedAt = now, now

			props, err := json.Marshal(model.SanitizeProperties(f.Properties))
			if err != nil {
				return fmt.Errorf("地物%d の属性のJSON変換失敗: %w", i, err)
			}
			if _, err := stmt.ExecContext(ctx, f.ID, f.FileID, f.Name, props, wkb.Value(f.Geometry), i, now); err != nil {
				return fmt.Errorf("地物%d の登録失敗: %w", i, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE geo_files SET total_features = $2 WHERE id = $1`, file.ID, len(features)); err != nil {
			return fmt.Errorf("地物数の更新失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	file.TotalFeatures = len(features)
	log.Info().Str("file_id", file.ID).Int("features", len(features)).Msg("✅ ファイルを保存しました")
	return nil
}

func (r *PostgresFileRepository) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	row := r.client.DB.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM geo_files WHERE id = $1`, id)
	f, err := scanFile(row)
	if err != nil {
		if err == sql.ErrNoRows || isInvalidID(err) {
			return nil, model.NewNotFoundError(fmt.Sprintf("File %s not found", id))
		}
		return nil, fmt.Errorf("ファイルの取得失敗: %w", err)
	}
	return f, nil
}

// ListFiles 新しい順に返す
func (r *PostgresFileRepository) ListFiles(ctx context.Context, filter model.FileFilter) ([]model.FileRecord, error) {
	var b sqlBuilder
	b.whereAnyILike([]string{"state"}, filter.State)
	b.whereAnyILike([]string{"district"}, filter.District)

	rows, err := r.client.DB.QueryContext(ctx, `SELECT `+fileColumns+` FROM geo_files`+b.whereSQL()+` ORDER BY created_at DESC`, b.args...)
	if err != nil {
		return nil, fmt.Errorf("ファイル一覧の取得失敗: %w", err)
	}
	defer rows.Close()

	files := []model.FileRecord{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ファイルデータスキャンエラー: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (r *PostgresFileRepository) ListStates(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.client.DB,
		`SELECT DISTINCT state FROM geo_files WHERE state IS NOT NULL AND state <> '' ORDER BY state`)
}

func (r *PostgresFileRepository) ListDistricts(ctx context.Context, state string) ([]string, error) {
	b := sqlBuilder{clauses: []string{"district IS NOT NULL", "district <> ''"}}
	b.whereAnyILike([]string{"state"}, state)
	return queryStrings(ctx, r.client.DB,
		`SELECT DISTINCT district FROM geo_files`+b.whereSQL()+` ORDER BY district`, b.args...)
}

// Delete 地物は外部キーの ON DELETE CASCADE で削除される
func (r *PostgresFileRepository) Delete(ctx context.Context, id string) error {
	res, err := r.client.DB.ExecContext(ctx, `DELETE FROM geo_files WHERE id = $1`, id)
	if err != nil {
		if isInvalidID(err) {
			return model.NewNotFoundError(fmt.Sprintf("File %s not found", id))
		}
		return fmt.Errorf("ファイルの削除失敗: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NewNotFoundError(fmt.Sprintf("File %s not found", id))
	}
	return nil
}

// queryStrings 1列の文字列を返すクエリを実行する
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("一覧の取得失敗: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("一覧のスキャンエラー: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
