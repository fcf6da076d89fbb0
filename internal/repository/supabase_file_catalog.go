package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
	"GISData-App/internal/infrastructure/database"
)

// SupabaseFileCatalog PostgREST経由でファイル一覧を参照する（読み取り専用）
type SupabaseFileCatalog struct {
	client *database.SupabaseClient
}

func NewSupabaseFileCatalog(client *database.SupabaseClient) repository.FileCatalog {
	return &SupabaseFileCatalog{
		client: client,
	}
}

type fileRow struct {
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	OriginalFilename string  `json:"original_filename"`
	FileType         string  `json:"file_type"`
	State            *string `json:"state"`
	District         *string `json:"district"`
	StoragePath      *string `json:"storage_path"`
	TotalFeatures    int     `json:"total_features"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

func (r *SupabaseFileCatalog) fetch(columns string, filter model.FileFilter) ([]fileRow, error) {
	query := r.client.GetClient().From("geo_files").Select(columns, "", false)
	if filter.State != "" {
		query = query.Filter("state", "ilike", ilikePattern(filter.State))
	}
	if filter.District != "" {
		query = query.Filter("district", "ilike", ilikePattern(filter.District))
	}

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("ファイル一覧の取得失敗: %w", err)
	}

	var rows []fileRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("ファイル一覧のJSONアンマーシャル失敗: %w", err)
	}
	return rows, nil
}

// ListFiles 新しい順に返す
func (r *SupabaseFileCatalog) ListFiles(ctx context.Context, filter model.FileFilter) ([]model.FileRecord, error) {
	rows, err := r.fetch("*", filter)
	if err != nil {
		return nil, err
	}

	files := make([]model.FileRecord, 0, len(rows))
	for _, row := range rows {
		f, err := row.toFileRecord()
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (r *SupabaseFileCatalog) ListStates(ctx context.Context) ([]string, error) {
	rows, err := r.fetch("state", model.FileFilter{})
	if err != nil {
		return nil, err
	}
	return distinctSorted(rows, func(row fileRow) *string { return row.State }), nil
}

func (r *SupabaseFileCatalog) ListDistricts(ctx context.Context, state string) ([]string, error) {
	rows, err := r.fetch("district", model.FileFilter{State: state})
	if err != nil {
		return nil, err
	}
	return distinctSorted(rows, func(row fileRow) *string { return row.District }), nil
}

func (row fileRow) toFileRecord() (model.FileRecord, error) {
	f := model.FileRecord{
		ID:               row.ID,
		Filename:         row.Filename,
		OriginalFilename: row.OriginalFilename,
		FileType:         model.FileType(row.FileType),
		State:            deref(row.State),
		District:         deref(row.District),
		StoragePath:      deref(row.StoragePath),
		TotalFeatures:    row.TotalFeatures,
	}

	var err error
	if f.CreatedAt, err = parseTimestamp(row.CreatedAt); err != nil {
		return f, fmt.Errorf("created_at のパース失敗: %w", err)
	}
	if f.UpdatedAt, err = parseTimestamp(row.UpdatedAt); err != nil {
		return f, fmt.Errorf("updated_at のパース失敗: %w", err)
	}
	return f, nil
}

func distinctSorted(rows []fileRow, field func(fileRow) *string) []string {
	seen := make(map[string]bool)
	values := []string{}
	for _, row := range rows {
		v := deref(field(row))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// postgrestTimeLayouts PostgRESTが返す timestamptz の表記
var postgrestTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var err error
	for _, layout := range postgrestTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
