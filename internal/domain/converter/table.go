package converter

import (
	"github.com/paulmach/orb"

	"GISData-App/internal/domain/model"
)

// row 表形式の1行（ジオメトリ + name を含む属性）
type row struct {
	geometry orb.Geometry
	values   map[string]interface{}
}

func (r row) name() string {
	return model.StringValue(r.values[nameColumn])
}

// table 全フォーマット共通の中間表現
// columns は全行の属性キーの和集合で、最初に現れた順に並ぶ
type table struct {
	columns []string
	rows    []row
}

const nameColumn = "name"

// newTable 地物リストを表に変換する。各行の name 列は地物名で上書きし、欠けている列は nil で埋める
func newTable(features []model.CanonicalFeature) *table {
	t := &table{rows: make([]row, 0, len(features))}
	seen := make(map[string]bool)

	for _, f := range features {
		for _, k := range f.OrderedKeys() {
			if !seen[k] {
				seen[k] = true
				t.columns = append(t.columns, k)
			}
		}
	}
	if !seen[nameColumn] {
		t.columns = append(t.columns, nameColumn)
	}

	for _, f := range features {
		values := make(map[string]interface{}, len(t.columns))
		for _, c := range t.columns {
			values[c] = f.Properties[c]
		}
		values[nameColumn] = f.Name
		t.rows = append(t.rows, row{geometry: f.Geometry, values: values})
	}

	return t
}
