// Package catalog はカードカタログ（PokemonTCG.io v2 API）のクライアントを提供する。
// セット一覧とセット内カード一覧を読み取り専用で取得する。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/hitoshi/cardbinder/internal/metrics"
	"github.com/hitoshi/cardbinder/internal/model"
)

const (
	// MaxPageSize はカタログAPIが1ページで返す最大件数。
	MaxPageSize = 250

	defaultInitialRetryInterval = 500 * time.Millisecond
	maxResponseBytes            = 8 << 20
	userAgent                   = "cardbinder/1.0"
)

var (
	// ErrNotFound はカタログに指定のセットが存在しないことを表す。
	ErrNotFound = errors.New("catalog: not found")
	// ErrUnavailable はリトライ後もカタログに到達できなかったことを表す。
	ErrUnavailable = errors.New("catalog: unavailable")
)

// Provider はカタログプロバイダーのインターフェース。
type Provider interface {
	// ListSets はセット一覧を発売日の新しい順で返す。
	// nameFilterが空でない場合は名前の部分一致（大文字小文字を区別しない）で絞り込む。
	ListSets(ctx context.Context, nameFilter string) ([]model.CatalogSet, error)
	// ListCards は指定セットの全カードをページ順に連結して返す。
	// カードが1枚も無い場合はErrNotFoundを返す。
	ListCards(ctx context.Context, setID string) ([]model.CatalogCard, error)
}

// Config はカタログクライアントの設定。
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	PageSize        int
	PageConcurrency int
	MaxRetryElapsed time.Duration

	// テスト用にオーバーライド可能なリトライ初期間隔
	InitialRetryInterval time.Duration
}

// Client はPokemonTCG.io v2 APIのクライアント。
// 2ページ目以降は有界のワーカープールで並行取得する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	pool       pond.ResultPool[*page]

	baseURL         string
	apiKey          string
	pageSize        int
	maxRetryElapsed time.Duration
	initialInterval time.Duration
}

// NewClient はClientを生成する。不要になったらCloseでワーカープールを停止すること。
func NewClient(cfg Config, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 1
	}
	if cfg.InitialRetryInterval <= 0 {
		cfg.InitialRetryInterval = defaultInitialRetryInterval
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	return &Client{
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		logger:          logger,
		metrics:         collector,
		pool:            pond.NewResultPool[*page](cfg.PageConcurrency),
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		pageSize:        cfg.PageSize,
		maxRetryElapsed: cfg.MaxRetryElapsed,
		initialInterval: cfg.InitialRetryInterval,
	}
}

// Close はワーカープールを停止し、実行中のページ取得の完了を待つ。
func (c *Client) Close() {
	c.pool.StopAndWait()
}

// page はカタログAPIのページングレスポンスのエンベロープ。
type page struct {
	Data       json.RawMessage `json:"data"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Count      int             `json:"count"`
	TotalCount int             `json:"totalCount"`
}

type setDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Series      string `json:"series"`
	Total       int    `json:"total"`
	ReleaseDate string `json:"releaseDate"`
}

type cardDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// ListSets はセット一覧を発売日の新しい順で返す。
func (c *Client) ListSets(ctx context.Context, nameFilter string) ([]model.CatalogSet, error) {
	query := url.Values{}
	query.Set("orderBy", "-releaseDate")

	pages, err := c.fetchAll(ctx, "sets", query)
	if err != nil {
		return nil, err
	}

	filter := strings.ToLower(strings.TrimSpace(nameFilter))
	sets := make([]model.CatalogSet, 0)
	for _, p := range pages {
		var dtos []setDTO
		if err := json.Unmarshal(p.Data, &dtos); err != nil {
			return nil, fmt.Errorf("セット一覧のパースに失敗しました: %w", err)
		}
		for _, d := range dtos {
			if filter != "" && !strings.Contains(strings.ToLower(d.Name), filter) {
				continue
			}
			sets = append(sets, model.CatalogSet{
				ExternalID:  d.ID,
				Name:        d.Name,
				Series:      d.Series,
				TotalCount:  d.Total,
				ReleaseDate: d.ReleaseDate,
			})
		}
	}

	// APIの並び順に依存しないよう発売日（yyyy/mm/dd）で安定ソートする
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].ReleaseDate > sets[j].ReleaseDate
	})

	return sets, nil
}

// ListCards は指定セットの全カードをページ順に連結して返す。
func (c *Client) ListCards(ctx context.Context, setID string) ([]model.CatalogCard, error) {
	setID = strings.TrimSpace(setID)
	if setID == "" {
		return nil, fmt.Errorf("%w: empty set id", ErrNotFound)
	}

	query := url.Values{}
	query.Set("q", "set.id:"+setID)
	query.Set("select", "id,name,number")

	pages, err := c.fetchAll(ctx, "cards", query)
	if err != nil {
		return nil, err
	}

	cards := make([]model.CatalogCard, 0)
	for _, p := range pages {
		var dtos []cardDTO
		if err := json.Unmarshal(p.Data, &dtos); err != nil {
			return nil, fmt.Errorf("カード一覧のパースに失敗しました: %w", err)
		}
		for _, d := range dtos {
			cards = append(cards, model.CatalogCard{
				ExternalCardID: d.ID,
				Name:           d.Name,
				Number:         d.Number,
			})
		}
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: set %s has no cards", ErrNotFound, setID)
	}

	c.logger.Debug("catalog cards fetched",
		slog.String("set_api_id", setID),
		slog.Int("cards_count", len(cards)),
		slog.Int("pages", len(pages)),
	)

	return cards, nil
}

// fetchAll は1ページ目を取得してtotalCountから総ページ数を求め、
// 残りのページをワーカープールで並行取得してページ順に返す。
func (c *Client) fetchAll(ctx context.Context, endpoint string, query url.Values) ([]*page, error) {
	first, err := c.fetchPage(ctx, endpoint, query, 1)
	if err != nil {
		return nil, err
	}

	pageSize := first.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	totalPages := 1
	if first.TotalCount > pageSize {
		totalPages = (first.TotalCount + pageSize - 1) / pageSize
	}
	if totalPages == 1 {
		return []*page{first}, nil
	}

	// 1ページでも失敗したら残りの取得を打ち切る
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make([]pond.Result[*page], 0, totalPages-1)
	for n := 2; n <= totalPages; n++ {
		tasks = append(tasks, c.pool.SubmitErr(func() (*page, error) {
			return c.fetchPage(ctx, endpoint, query, n)
		}))
	}

	pages := make([]*page, 0, totalPages)
	pages = append(pages, first)
	var firstErr error
	for _, task := range tasks {
		p, err := task.Wait()
		if err != nil {
			if firstErr == nil {
				firstErr = err
				cancel()
			}
			continue
		}
		pages = append(pages, p)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return pages, nil
}

// fetchPage は1ページを取得する。通信エラー、429、5xxは指数バックオフでリトライする。
func (c *Client) fetchPage(ctx context.Context, endpoint string, query url.Values, pageNum int) (*page, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	reqURL := c.baseURL + "/" + endpoint + "?" + q.Encode()

	var result *page
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			c.metrics.RecordCatalogRetry(endpoint)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.RecordCatalogRequest(endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("カタログAPIの呼び出しに失敗しました",
				slog.String("endpoint", endpoint),
				slog.Int("page", pageNum),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return err
		}
		defer resp.Body.Close()
		c.metrics.RecordCatalogRequest(endpoint, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("カタログAPIが一時的なエラーを返しました",
				slog.String("endpoint", endpoint),
				slog.Int("page", pageNum),
				slog.Int("attempt", attempt),
				slog.Int("http_status", resp.StatusCode),
			)
			return fmt.Errorf("カタログAPIがステータス %d を返しました", resp.StatusCode)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("カタログAPIがステータス %d を返しました: %s", resp.StatusCode, string(body)))
		}

		var p page
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&p); err != nil {
			return backoff.Permanent(fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
		}
		result = &p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxElapsedTime = c.maxRetryElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			c.logger.Error("カタログAPIからの取得を断念しました",
				slog.String("endpoint", endpoint),
				slog.Int("page", pageNum),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return result, nil
}

// compile-time interface check
var _ Provider = (*Client)(nil)
