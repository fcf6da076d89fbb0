package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"GISData-App/internal/domain/model"
)

// FormatParser 1フォーマット分のデコーダ
type FormatParser interface {
	// FileType このパーサーが扱うファイル種別
	FileType() model.FileType

	// Parse ファイル内容を正規化前の地物リストに変換する
	// stem は拡張子を除いたファイル名で、名前がない地物の名前生成に使う
	Parse(data []byte, stem string) ([]model.CanonicalFeature, error)
}

// FileStem 拡張子を除いたファイル名
func FileStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FileExt 小文字の拡張子（ドット付き）
func FileExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// fallbackName "{stem}_{index}"
func fallbackName(stem string, index int) string {
	return fmt.Sprintf("%s_%d", stem, index)
}

// nameFromProperties properties.name が空でなければその値、なければ fallback
func nameFromProperties(props map[string]interface{}, fallback string) string {
	if v, ok := props["name"]; ok {
		if s := strings.TrimSpace(model.StringValue(v)); s != "" {
			return s
		}
	}
	return fallback
}
