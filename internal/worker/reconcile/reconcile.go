// Package reconcile は登録セットの収集数キャッシュを実カウントに合わせる修復ジョブを提供する。
// サービス経由の書き込みは常に同一トランザクションで再集計するため、
// このジョブが修復するのは手動SQLやリストアなどサービス外で生じたずれのみ。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cardbinder/internal/metrics"
)

// Recounter は全セットの収集数を再集計するインターフェース。
// repository.TrackedSetRepository が満たす。
type Recounter interface {
	RecountAll(ctx context.Context) (int64, error)
}

// ReconcileJob は収集数の修復ジョブ。冪等で、ずれが無ければ何も更新しない。
type ReconcileJob struct {
	repo    Recounter
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewReconcileJob は新しいReconcileJobを生成する。
func NewReconcileJob(repo Recounter, logger *slog.Logger, collector metrics.MetricsCollector) *ReconcileJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &ReconcileJob{
		repo:    repo,
		logger:  logger,
		metrics: collector,
	}
}

// Run はキャッシュ値と実カウントが異なるセットを修復し、修復した件数を返す。
func (j *ReconcileJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	repaired, err := j.repo.RecountAll(ctx)
	if err != nil {
		j.logger.Error("収集数の修復ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("収集数の修復に失敗: %w", err)
	}

	j.metrics.RecordCountersRepaired(repaired)

	duration := time.Since(start)
	j.logger.Info("収集数の修復ジョブが完了しました",
		slog.Int64("repaired_count", repaired),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return repaired, nil
}
