package model

import "time"

// FileType アップロードファイルの判定結果
type FileType string

const (
	FileTypeGeoJSON   FileType = "geojson"
	FileTypeShapefile FileType = "shapefile"
	FileTypeKML       FileType = "kml"
	FileTypeKMZ       FileType = "kmz"
	FileTypeGPX       FileType = "gpx"
	FileTypeCSV       FileType = "csv"
	FileTypeUnknown   FileType = "unknown"
)

// FileRecord アップロードされた1ファイル分のメタデータ
type FileRecord struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FileType         FileType  `json:"file_type"`
	State            string    `json:"state"`
	District         string    `json:"district,omitempty"`
	StoragePath      string    `json:"storage_path,omitempty"`
	TotalFeatures    int       `json:"total_features"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FileFilter ファイル一覧の絞り込み条件（部分一致・大文字小文字無視）
type FileFilter struct {
	State    string
	District string
}

// FeatureFilter 地物一覧の絞り込み条件
type FeatureFilter struct {
	State           string
	District        string
	Taluk           string
	Village         string
	BBox            *BoundingBox
	Skip            int
	Limit           int
	IncludeGeometry bool // false の場合も型名はレスポンスに残すため取得自体は行う
}

// FeatureUpdate 地物の部分更新（nilのフィールドは変更しない）
type FeatureUpdate struct {
	Name       *string
	Properties map[string]interface{}
	Geometry   interface{} // GeoJSON geometry オブジェクト
}

// SpatialOperation 空間検索の種類
type SpatialOperation string

const (
	SpatialIntersects SpatialOperation = "intersects"
	SpatialWithin     SpatialOperation = "within"
	SpatialContains   SpatialOperation = "contains"
	SpatialDistance   SpatialOperation = "distance"
)

// IsValid 対応している空間検索かどうか
func (op SpatialOperation) IsValid() bool {
	switch op {
	case SpatialIntersects, SpatialWithin, SpatialContains, SpatialDistance:
		return true
	}
	return false
}

// ExportSelection ダウンロード対象の選択条件
type ExportSelection struct {
	FileIDs    []string `json:"file_ids"`
	State      string   `json:"state"`
	District   string   `json:"district"`
	FeatureIDs []string `json:"feature_ids"`
	Format     string   `json:"format"`
	Merge      bool     `json:"merge"`
}

// ExportResult 変換済みファイル
type ExportResult struct {
	Content   []byte
	MimeType  string
	Extension string
	BaseName  string
}

// Filename Content-Disposition 用のファイル名
func (r *ExportResult) Filename() string {
	return r.BaseName + r.Extension
}
