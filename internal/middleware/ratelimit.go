package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/cardbinder/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	SetAddRate      rate.Limit    // セット登録のレート（req/sec）
	SetAddBurst     int           // セット登録のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/account、セット登録 10 req/min/account。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 10)
}

// RateLimiterConfigPerMinute は1分あたりの上限からRateLimiterConfigを生成する。
// バーストは1分間の上限と同じ値にする。
func RateLimiterConfigPerMinute(generalPerMin, setAddPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		SetAddRate:      rate.Limit(float64(setAddPerMin) / 60.0),
		SetAddBurst:     setAddPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// accountLimiter はアカウントごとのレートリミッターとアクセス時刻を保持する。
type accountLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてアカウントごとのリミッターを管理する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*accountLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*accountLimiter),
	}
}

// get はアカウントのリミッターを取得または作成し、最終アクセス時刻を更新する。
func (ls *limiterSet) get(accountID string, now time.Time) *rate.Limiter {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	al, ok := ls.limiters[accountID]
	if !ok {
		al = &accountLimiter{limiter: rate.NewLimiter(ls.limit, ls.burst)}
		ls.limiters[accountID] = al
	}
	al.lastAccess = now
	return al.limiter
}

func (ls *limiterSet) len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.limiters)
}

// evict は最終アクセスからttl以上経過したエントリを削除する。
func (ls *limiterSet) evict(now time.Time, ttl time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for accountID, al := range ls.limiters {
		if now.Sub(al.lastAccess) > ttl {
			delete(ls.limiters, accountID)
		}
	}
}

// middleware はこのリミッターで制限するミドルウェアを返す。
// 認証ミドルウェアの後に配置する必要がある。
func (ls *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := AccountIDFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}

			if !ls.get(accountID, time.Now()).Allow() {
				writeRateLimitResponse(w, ls.limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", accountID),
					slog.String("limit_type", ls.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はアカウントごとのレート制限を管理する。
// API全般とセット登録の2種類を独立に提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	setAdd  *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		setAdd:  newLimiterSet("set_add", config.SetAddRate, config.SetAddBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼び出してもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// SetAddMiddleware はセット登録専用のレート制限ミドルウェアを返す。
// セット登録はカタログへの外部呼び出しを伴うため、API全般より厳しく制限する。
func (rl *RateLimiter) SetAddMiddleware() func(next http.Handler) http.Handler {
	return rl.setAdd.middleware()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// SetAddLimiterCount は現在管理されているセット登録リミッターのエントリ数を返す。
func (rl *RateLimiter) SetAddLimiterCount() int {
	return rl.setAdd.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.setAdd.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	WriteRateLimited(w, retryAfterSec)
}
