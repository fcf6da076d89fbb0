package coordinate

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
)

// Repairer 位相的に不正なジオメトリを修復する（ゼロ距離バッファ）
type Repairer interface {
	// Repair 修復後のジオメトリと、修復を行ったかどうかを返す
	Repair(g orb.Geometry) (orb.Geometry, bool, error)
}

// Result 1ジオメトリの正規化結果
type Result struct {
	Geometry         orb.Geometry
	OriginalEnvelope model.BoundingBox
	FinalEnvelope    model.BoundingBox
	DetectedCRS      *CRS
	Repaired         bool
}

// Pipeline 検証 → CRS検出 → 変換 → 修復 → 最終範囲チェック
type Pipeline struct {
	detector    *Detector
	transformer Transformer // nil の場合は変換機能なし
	repairer    Repairer    // nil の場合は修復しない
}

// NewPipeline Pipeline を作成
func NewPipeline(detector *Detector, transformer Transformer, repairer Repairer) *Pipeline {
	if detector == nil {
		detector = NewDetector(nil)
	}
	return &Pipeline{
		detector:    detector,
		transformer: transformer,
		repairer:    repairer,
	}
}

// Normalize ジオメトリをWGS84の範囲内に正規化する
func (p *Pipeline) Normalize(g orb.Geometry) (*Result, error) {
	original, ok := Envelope(g)
	if !ok {
		return nil, model.NewParseError("geometry has no coordinates", nil)
	}

	result := &Result{
		Geometry:         g,
		OriginalEnvelope: model.NewBoundingBox(original),
	}

	if !WithinWGS84(original) {
		crs, err := p.detector.Detect(original)
		if err != nil {
			return nil, err
		}
		result.DetectedCRS = &crs

		if p.transformer == nil {
			return nil, &model.GeoError{
				Kind: model.ErrMissingCapability,
				Message: "coordinates appear to be projected but coordinate transformation is disabled; " +
					"enable it or re-export the file in EPSG:4326",
				Envelope: &result.OriginalEnvelope,
				CRS:      crs.String(),
			}
		}

		transformed, err := p.transformer.ToWGS84(g, crs)
		if err != nil {
			return nil, err
		}

		bb, valid := Validate(transformed)
		if !valid {
			return nil, &model.GeoError{
				Kind:     model.ErrTransformFailed,
				Message:  "reprojected coordinates are still outside WGS84 bounds",
				Envelope: &bb,
				CRS:      crs.String(),
			}
		}
		result.Geometry = transformed

		log.Debug().
			Str("crs", crs.String()).
			Stringer("before", result.OriginalEnvelope).
			Stringer("after", bb).
			Msg("🔄 投影座標をWGS84に変換しました")
	}

	if p.repairer != nil && needsRepair(result.Geometry) {
		repaired, changed, err := p.repairer.Repair(result.Geometry)
		if err != nil {
			return nil, model.NewParseError("geometry repair failed", err)
		}
		if repaired == nil {
			return nil, model.NewParseError("geometry is empty after repair", nil)
		}
		result.Geometry = repaired
		result.Repaired = changed
	}

	final, valid := Validate(result.Geometry)
	if !valid {
		ge := &model.GeoError{
			Kind:     model.ErrParse,
			Message:  "geometry is outside WGS84 bounds after normalization",
			Envelope: &final,
		}
		if result.DetectedCRS != nil {
			ge.CRS = result.DetectedCRS.String()
		}
		return nil, ge
	}
	result.FinalEnvelope = final

	return result, nil
}

// needsRepair 面のみ修復対象
func needsRepair(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// FeatureError 地物単位の正規化エラー
type FeatureError struct {
	Index int
	Name  string
	Err   error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

// NormalizeFeatures 全地物を正規化する。失敗した地物は policy に従いスキップまたは中断する
// 戻り値の decisions には全地物の判定が入力順で入る
func (p *Pipeline) NormalizeFeatures(features []model.CanonicalFeature, policy model.FeatureErrorPolicy) ([]model.CanonicalFeature, []model.FeatureDecision, error) {
	survivors := make([]model.CanonicalFeature, 0, len(features))
	decisions := make([]model.FeatureDecision, 0, len(features))

	for i, f := range features {
		decision := model.FeatureDecision{Index: i, Name: f.Name}

		res, err := p.Normalize(f.Geometry)
		if err != nil {
			decision.Skipped = true
			decision.Error = err.Error()
			var ge *model.GeoError
			if errors.As(err, &ge) {
				decision.OriginalEnvelope = ge.Envelope
				decision.DetectedCRS = ge.CRS
			}
			decisions = append(decisions, decision)

			if policy == model.AbortOnFirstError {
				return nil, decisions, &FeatureError{Index: i, Name: f.Name, Err: err}
			}
			log.Warn().Err(err).Int("index", i).Str("name", f.Name).Msg("⚠️ 地物をスキップしました")
			continue
		}

		original := res.OriginalEnvelope
		final := res.FinalEnvelope
		decision.OriginalEnvelope = &original
		decision.FinalEnvelope = &final
		decision.Repaired = res.Repaired
		if res.DetectedCRS != nil {
			decision.DetectedCRS = res.DetectedCRS.String()
		}
		decisions = append(decisions, decision)

		f.Geometry = res.Geometry
		survivors = append(survivors, f)
	}

	return survivors, decisions, nil
}
