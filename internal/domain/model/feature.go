package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// CanonicalFeature パーサーが出力するフォーマット非依存の地物表現
type CanonicalFeature struct {
	Name       string                 // 地物名（空の場合は "{stem}_{index}" を生成）
	Geometry   orb.Geometry           // 経度・緯度の座標列
	Properties map[string]interface{} // 属性（スカラー値またはnull）
	KeyOrder   []string               // 元ファイルでの属性列の順序（CSV/DBFなど）
}

// OrderedKeys 属性キーを元ファイルの順序で返す。順序情報がないキーは名前順で末尾に追加する
func (f *CanonicalFeature) OrderedKeys() []string {
	return orderedKeys(f.KeyOrder, f.Properties)
}

// Feature 永続化された地物（FileRecordに属する）
type Feature struct {
	ID         string                 `json:"id"`
	FileID     string                 `json:"file_id"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   orb.Geometry           `json:"-"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// BoundingBox [minLon, minLat, maxLon, maxLat]
type BoundingBox [4]float64

// NewBoundingBox orb.Bound から BoundingBox を作成
func NewBoundingBox(b orb.Bound) BoundingBox {
	return BoundingBox{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// Bound orb.Bound に変換
func (bb BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{bb[0], bb[1]},
		Max: orb.Point{bb[2], bb[3]},
	}
}

func (bb BoundingBox) String() string {
	return fmt.Sprintf("longitude [%.6f, %.6f], latitude [%.6f, %.6f]", bb[0], bb[2], bb[1], bb[3])
}

// SanitizeValue 属性値をJSONへ保存できる形に変換する
// NaN/Inf は null、time.Time は RFC3339 文字列、それ以外の非プリミティブ値は文字列化する
func SanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64, json.Number:
		return val
	case float32:
		return SanitizeValue(float64(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return SanitizeValue(*val)
	case map[string]interface{}, []interface{}:
		// GeoJSONのネストした属性はJSONとしてそのまま保存可能
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// SanitizeProperties 全属性値に SanitizeValue を適用した新しいマップを返す
func SanitizeProperties(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = SanitizeValue(v)
	}
	return out
}

// StringValue 属性値を表示用文字列に変換（nilは空文字列）
func StringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func orderedKeys(order []string, props map[string]interface{}) []string {
	keys := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, k := range order {
		if _, ok := props[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	return append(keys, rest...)
}
