// Package model はドメインモデルを定義する。
package model

import "time"

// Account はサービス利用ユーザーを表す。
// 外部IdP（Privy）のsubject識別子と1対1で対応する。
type Account struct {
	ID                string
	ExternalSubjectID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
