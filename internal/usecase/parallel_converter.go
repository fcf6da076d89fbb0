package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/converter"
	"GISData-App/internal/domain/model"
)

// maxParallelConversions 同時に変換するファイル数の上限
const maxParallelConversions = 4

// conversionResult groups と同じ順序で格納する変換結果
type conversionResult struct {
	result *model.ExportResult
	err    error
}

// convertParallel グループごとの変換を並行で実行する
// 結果は入力順に返し、1件でも失敗した場合は最初のエラーを返す
func convertParallel(ctx context.Context, conv *converter.Converter, groups []exportGroup, format string) ([]*model.ExportResult, error) {
	start := time.Now()

	semaphore := make(chan struct{}, maxParallelConversions)
	results := make([]conversionResult, len(groups))
	var wg sync.WaitGroup

	for i, g := range groups {
		wg.Add(1)
		go func(idx int, g exportGroup) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				results[idx].err = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			res, err := conv.Convert(toCanonical(g.features), format, baseName(g.file))
			if err != nil {
				results[idx].err = fmt.Errorf("%s の変換に失敗: %w", g.file.Filename, err)
				return
			}
			results[idx].result = res
		}(i, g)
	}
	wg.Wait()

	out := make([]*model.ExportResult, len(groups))
	failed := 0
	var firstErr error
	for i, r := range results {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[i] = r.result
	}

	log.Debug().
		Int("files", len(groups)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("🚀 並行変換完了")

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
