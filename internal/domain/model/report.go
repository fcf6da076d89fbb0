package model

import "time"

// FeatureErrorPolicy 1地物の正規化失敗時の扱い
type FeatureErrorPolicy string

const (
	ContinueOnFeatureError FeatureErrorPolicy = "continue"
	AbortOnFirstError      FeatureErrorPolicy = "abort"
)

// ParseFeatureErrorPolicy 文字列からポリシーを取得（空文字列はContinue）
func ParseFeatureErrorPolicy(s string) (FeatureErrorPolicy, bool) {
	switch FeatureErrorPolicy(s) {
	case "", ContinueOnFeatureError:
		return ContinueOnFeatureError, true
	case AbortOnFirstError:
		return AbortOnFirstError, true
	}
	return "", false
}

// FeatureDecision 1地物に対する座標パイプラインの判定記録
type FeatureDecision struct {
	Index            int          `json:"index" firestore:"index"`
	Name             string       `json:"name" firestore:"name"`
	OriginalEnvelope *BoundingBox `json:"original_envelope,omitempty" firestore:"-"`
	DetectedCRS      string       `json:"detected_crs,omitempty" firestore:"detected_crs"`
	FinalEnvelope    *BoundingBox `json:"final_envelope,omitempty" firestore:"-"`
	Repaired         bool         `json:"repaired" firestore:"repaired"`
	Skipped          bool         `json:"skipped" firestore:"skipped"`
	Error            string       `json:"error,omitempty" firestore:"error"`
}

// UploadReport アップロード1回分の取り込み結果
type UploadReport struct {
	FileID         string            `json:"file_id"`
	Filename       string            `json:"filename"`
	FileType       FileType          `json:"file_type"`
	Policy         string            `json:"policy"`
	ParsedCount    int               `json:"parsed_count"`
	StoredCount    int               `json:"stored_count"`
	SkippedCount   int               `json:"skipped_count"`
	TransformedCRS map[string]int    `json:"transformed_crs,omitempty"`
	Decisions      []FeatureDecision `json:"decisions"`
	CreatedAt      time.Time         `json:"created_at"`
}

// FirestoreUploadReport Firestore 保存用の構造体
type FirestoreUploadReport struct {
	Filename       string              `firestore:"filename"`
	FileType       string              `firestore:"file_type"`
	Policy         string              `firestore:"policy"`
	ParsedCount    int                 `firestore:"parsed_count"`
	StoredCount    int                 `firestore:"stored_count"`
	SkippedCount   int                 `firestore:"skipped_count"`
	TransformedCRS map[string]int      `firestore:"transformed_crs"`
	Decisions      []FirestoreDecision `firestore:"decisions"`
	CreatedAt      time.Time           `firestore:"created_at"`
	ExpireAt       time.Time           `firestore:"expireAt"`
}

// FirestoreDecision Firestore は固定長配列を保存できないため外接矩形をスライスで持つ
type FirestoreDecision struct {
	FeatureDecision
	OriginalBounds []float64 `firestore:"original_envelope"`
	FinalBounds    []float64 `firestore:"final_envelope"`
}

// ToFirestoreUploadReport UploadReport を Firestore 保存用に変換
func (r *UploadReport) ToFirestoreUploadReport(ttlHours int) *FirestoreUploadReport {
	decisions := make([]FirestoreDecision, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		fd := FirestoreDecision{FeatureDecision: d}
		if d.OriginalEnvelope != nil {
			fd.OriginalBounds = d.OriginalEnvelope[:]
		}
		if d.FinalEnvelope != nil {
			fd.FinalBounds = d.FinalEnvelope[:]
		}
		decisions = append(decisions, fd)
	}

	return &FirestoreUploadReport{
		Filename:       r.Filename,
		FileType:       string(r.FileType),
		Policy:         r.Policy,
		ParsedCount:    r.ParsedCount,
		StoredCount:    r.StoredCount,
		SkippedCount:   r.SkippedCount,
		TransformedCRS: r.TransformedCRS,
		Decisions:      decisions,
		CreatedAt:      r.CreatedAt,
		ExpireAt:       time.Now().Add(time.Duration(ttlHours) * time.Hour),
	}
}

// ToUploadReport Firestore から読み込んだデータを UploadReport に戻す
func (fr *FirestoreUploadReport) ToUploadReport(fileID string) *UploadReport {
	decisions := make([]FeatureDecision, 0, len(fr.Decisions))
	for _, fd := range fr.Decisions {
		d := fd.FeatureDecision
		d.OriginalEnvelope = boundsFromSlice(fd.OriginalBounds)
		d.FinalEnvelope = boundsFromSlice(fd.FinalBounds)
		decisions = append(decisions, d)
	}

	return &UploadReport{
		FileID:         fileID,
		Filename:       fr.Filename,
		FileType:       FileType(fr.FileType),
		Policy:         fr.Policy,
		ParsedCount:    fr.ParsedCount,
		StoredCount:    fr.StoredCount,
		SkippedCount:   fr.SkippedCount,
		TransformedCRS: fr.TransformedCRS,
		Decisions:      decisions,
		CreatedAt:      fr.CreatedAt,
	}
}

func boundsFromSlice(s []float64) *BoundingBox {
	if len(s) != 4 {
		return nil
	}
	bb := BoundingBox{s[0], s[1], s[2], s[3]}
	return &bb
}
