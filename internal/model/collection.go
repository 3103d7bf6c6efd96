// Package model はドメインモデルを定義する。
package model

import (
	"math"
	"time"
)

// TrackedSet はユーザーが収集対象として登録したカタログのセットを表す。
// CollectedCards は表示用の非正規化カウンタで、cardsテーブルから再集計した値のみを保持する。
type TrackedSet struct {
	ID             string
	UserID         string
	ExternalSetID  string
	Name           string
	Series         *string
	TotalCards     int
	CollectedCards int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Progress は収集率（0〜100、小数第1位で丸め）を返す。
func (s *TrackedSet) Progress() float64 {
	if s.TotalCards <= 0 {
		return 0
	}
	p := float64(s.CollectedCards) / float64(s.TotalCards) * 100
	if p > 100 {
		p = 100
	}
	return math.Round(p*10) / 10
}

// Card はユーザーごとの収集スロットを表す。カタログ上のカード実体ではない。
// ExternalSetID は親TrackedSetとの関連を非正規化したもの。
type Card struct {
	ID             string
	UserID         string
	ExternalSetID  string
	ExternalCardID string
	Name           string
	Number         string // カタログ定義の表記。数値順ソートは保証しない
	Collected      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CatalogSet はカタログプロバイダーから取得したセット情報を表す。
type CatalogSet struct {
	ExternalID  string
	Name        string
	Series      string
	TotalCount  int
	ReleaseDate string
}

// CatalogCard はカタログプロバイダーから取得したカード情報を表す。
// 一括初期化APIで呼び出し元から渡されるカードもこの型で扱う。
type CatalogCard struct {
	ExternalCardID string
	Name           string
	Number         string
}
