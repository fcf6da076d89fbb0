package converter

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"

	"GISData-App/internal/domain/model"
)

const geometryColumn = "geometry"

// encodeCSV 属性列の後に geometry 列（WKT）を出力する
func encodeCSV(_ *Converter, t *table, _ string) ([]byte, error) {
	header := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		if c != geometryColumn {
			header = append(header, c)
		}
	}
	header = append(header, geometryColumn)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("CSVヘッダーの書き込みに失敗: %w", err)
	}

	record := make([]string, len(header))
	for i, r := range t.rows {
		for j, c := range header[:len(header)-1] {
			record[j] = model.StringValue(r.values[c])
		}
		if r.geometry == nil {
			return nil, fmt.Errorf("行%d にジオメトリがありません", i)
		}
		record[len(header)-1] = wkt.MarshalString(r.geometry)

		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("CSVの書き込みに失敗: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSVの書き込みに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
