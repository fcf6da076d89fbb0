package usecase

// MetricsRecorder 取り込み・変換結果の記録先（nil の場合は記録しない）
type MetricsRecorder interface {
	RecordUpload(fileType, result string, stored, skipped int, transformed map[string]int)
	RecordConversion(format, result string)
}

const (
	resultSuccess = "success"
	resultError   = "error"
)

type noopMetrics struct{}

func (noopMetrics) RecordUpload(string, string, int, int, map[string]int) {}
func (noopMetrics) RecordConversion(string, string)                       {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
