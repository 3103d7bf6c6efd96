package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// accountSlot は内側の認証ミドルウェアが解決したアカウントIDをログ出力側へ渡す。
type accountSlot struct {
	accountID string
}

var accountSlotContextKey = contextKey("account_slot")

// recordAccountID はログ用のスロットがあればアカウントIDを記録する。
func recordAccountID(ctx context.Context, accountID string) {
	if slot, ok := ctx.Value(accountSlotContextKey).(*accountSlot); ok {
		slot.accountID = accountID
	}
}

// slotAccountID はログ用スロットに記録済みのアカウントIDを返す。未認証なら空文字。
func slotAccountID(ctx context.Context) string {
	if slot, ok := ctx.Value(accountSlotContextKey).(*accountSlot); ok {
		return slot.accountID
	}
	return ""
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、user_id（認証済みの場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			slot := &accountSlot{}
			if accountID, err := AccountIDFromContext(r.Context()); err == nil {
				slot.accountID = accountID
			}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accountSlotContextKey, slot)))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			if slot.accountID != "" {
				args = append(args, slog.String("user_id", slot.accountID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
