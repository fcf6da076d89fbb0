package coordinate

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"GISData-App/internal/domain/model"
)

//go:embed default_crs_rules.yaml
var defaultRulesYAML []byte

// CRS 検出された投影座標系（WGS84系UTM）
type CRS struct {
	EPSG  int
	Zone  int
	North bool
}

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.EPSG)
}

// NewUTMCRS EPSGコードから UTM の CRS を作成（326xx=北半球、327xx=南半球）
func NewUTMCRS(epsg int) (CRS, error) {
	switch {
	case epsg >= 32601 && epsg <= 32660:
		return CRS{EPSG: epsg, Zone: epsg - 32600, North: true}, nil
	case epsg >= 32701 && epsg <= 32760:
		return CRS{EPSG: epsg, Zone: epsg - 32700, North: false}, nil
	}
	return CRS{}, fmt.Errorf("EPSG:%d はWGS84系UTMではありません", epsg)
}

// Interval 閉区間 [Min, Max]
type Interval struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains v が区間内かどうか
func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v <= i.Max
}

// Rule 判定表の1行。nilでない条件がすべて成り立つとき一致する（条件なしは常に一致）
type Rule struct {
	EPSG         int       `yaml:"epsg"`
	Easting      *Interval `yaml:"easting,omitempty"`
	Northing     *Interval `yaml:"northing,omitempty"`
	EastingBelow *float64  `yaml:"easting_below,omitempty"`
}

// Matches 中心点が規則に一致するか
func (r Rule) Matches(center orb.Point) bool {
	if r.Easting != nil && !r.Easting.Contains(center.X()) {
		return false
	}
	if r.Northing != nil && !r.Northing.Contains(center.Y()) {
		return false
	}
	if r.EastingBelow != nil && !(center.X() < *r.EastingBelow) {
		return false
	}
	return true
}

// RuleTable CRS判定表
type RuleTable struct {
	Outer struct {
		Easting  Interval `yaml:"easting"`
		Northing Interval `yaml:"northing"`
	} `yaml:"outer"`
	Rules []Rule `yaml:"rules"`
}

// DefaultRuleTable 組み込みの判定表（UTM 43N/44N）
func DefaultRuleTable() *RuleTable {
	table, err := ParseRuleTable(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("組み込みCRS判定表が不正です: %v", err))
	}
	return table
}

// LoadRuleTable YAMLファイルから判定表を読み込む。パスが空の場合は組み込みの判定表を返す
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("CRS判定表の読み込みに失敗: %w", err)
	}
	return ParseRuleTable(data)
}

// ParseRuleTable YAMLを判定表として解釈し、各規則のEPSGを検証する
func ParseRuleTable(data []byte) (*RuleTable, error) {
	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("CRS判定表のYAML解析に失敗: %w", err)
	}
	if len(table.Rules) == 0 {
		return nil, errors.New("CRS判定表に規則がありません")
	}
	for i, r := range table.Rules {
		if _, err := NewUTMCRS(r.EPSG); err != nil {
			return nil, fmt.Errorf("規則%d: %w", i, err)
		}
	}
	return &table, nil
}

// Detector 外接矩形から元の投影座標系を推定する
type Detector struct {
	table *RuleTable
}

// NewDetector Detector を作成（table が nil の場合は組み込みの判定表）
func NewDetector(table *RuleTable) *Detector {
	if table == nil {
		table = DefaultRuleTable()
	}
	return &Detector{table: table}
}

// Detect WGS84範囲外の外接矩形の中心点を判定表に当て、CRSを返す
func (d *Detector) Detect(envelope orb.Bound) (CRS, error) {
	center := envelope.Center()
	bb := model.NewBoundingBox(envelope)

	if !d.table.Outer.Easting.Contains(center.X()) || !d.table.Outer.Northing.Contains(center.Y()) {
		return CRS{}, &model.GeoError{
			Kind: model.ErrUnknownProjection,
			Message: "coordinates are outside WGS84 bounds and do not match any supported projected CRS; " +
				"re-export the file in EPSG:4326 (longitude/latitude)",
			Envelope: &bb,
		}
	}

	for _, rule := range d.table.Rules {
		if rule.Matches(center) {
			// ParseRuleTable で検証済み
			crs, _ := NewUTMCRS(rule.EPSG)
			return crs, nil
		}
	}

	return CRS{}, &model.GeoError{
		Kind:     model.ErrUnknownProjection,
		Message:  "coordinates look projected but no detection rule matched; re-export the file in EPSG:4326",
		Envelope: &bb,
	}
}
