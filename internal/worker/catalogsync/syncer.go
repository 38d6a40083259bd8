// Package catalogsync は外部カタログの定期取り込みワーカーを提供する。
// 取得失敗時は指数バックオフで再試行し、不正なカタログが続く場合は同期を停止する。
package catalogsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/techshop/internal/catalog"
)

// CatalogImporter は外部カタログの取り込みインターフェース。
type CatalogImporter interface {
	Import(ctx context.Context, rawURL string) (*catalog.ImportResult, error)
}

// Syncer は1つのURLを定期的に取り込む。
type Syncer struct {
	importer CatalogImporter
	url      string
	interval time.Duration
	logger   *slog.Logger

	consecutiveErrors  int
	consecutiveInvalid int
	stopped            bool
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
// intervalが0以下の場合は30分を使用する。
func NewSyncer(importer CatalogImporter, url string, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Syncer{
		importer: importer,
		url:      url,
		interval: interval,
		logger:   logger,
	}
}

// Stopped は不正なカタログが閾値回数続いて同期を停止したかを返す。
func (s *Syncer) Stopped() bool {
	return s.stopped
}

// RunOnce は1回取り込みを行い、次回実行までの待ち時間を返す。
func (s *Syncer) RunOnce(ctx context.Context) time.Duration {
	result, err := s.importer.Import(ctx, s.url)

	switch Classify(err) {
	case OutcomeOK:
		s.consecutiveErrors = 0
		s.consecutiveInvalid = 0
		s.logger.Info("カタログ同期が完了しました",
			slog.String("url", s.url),
			slog.Int("products", result.Products),
			slog.Int("categories", result.Categories),
			slog.Bool("not_modified", result.NotModified),
		)
		return s.interval

	case OutcomeInvalid:
		s.consecutiveInvalid++
		if s.consecutiveInvalid >= invalidThreshold {
			s.stopped = true
			s.logger.Error("不正なカタログが続いたため同期を停止しました",
				slog.String("url", s.url),
				slog.Int("consecutive_invalid", s.consecutiveInvalid),
				slog.String("error", err.Error()),
			)
			return 0
		}
		s.logger.Warn("カタログの内容が不正です",
			slog.String("url", s.url),
			slog.Int("consecutive_invalid", s.consecutiveInvalid),
			slog.String("error", err.Error()),
		)
		return s.interval

	default:
		delay := CalculateBackoff(s.consecutiveErrors)
		s.consecutiveErrors++
		s.logger.Warn("カタログ同期に失敗したためバックオフします",
			slog.String("url", s.url),
			slog.Int("consecutive_errors", s.consecutiveErrors),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		return delay
	}
}

// Start は起動直後に1回同期し、以降はRunOnceの返す間隔で同期を繰り返す。
// コンテキストがキャンセルされるか、同期が停止するまでブロックする。
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("カタログ同期を開始しました",
		slog.String("url", s.url),
		slog.Duration("interval", s.interval),
	)

	for {
		delay := s.RunOnce(ctx)
		if s.stopped {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("カタログ同期を停止しました")
			return
		case <-timer.C:
		}
	}
}
