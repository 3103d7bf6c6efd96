// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, collection, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeSetNotFound           = "SET_NOT_FOUND"
	ErrCodeCardNotFound          = "CARD_NOT_FOUND"
	ErrCodeCatalogSetNotFound    = "CATALOG_SET_NOT_FOUND"
	ErrCodeSetAlreadyTracked     = "SET_ALREADY_TRACKED"
	ErrCodeCatalogUnavailable    = "CATALOG_UNAVAILABLE"
	ErrCodeCollectionWriteFailed = "COLLECTION_WRITE_FAILED"
	ErrCodeRateLimited           = "rate_limit_exceeded"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証情報が存在しない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidTokenError はアクセストークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "アクセストークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は必須項目の欠落や形式不正のエラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewSetNotFoundError は登録済みセットが見つからない場合のエラーを生成する。
func NewSetNotFoundError(setID string) *APIError {
	return &APIError{
		Code:     ErrCodeSetNotFound,
		Message:  fmt.Sprintf("指定されたセットが見つかりません: %s", setID),
		Category: "collection",
		Action:   "セット一覧を再読み込みしてください。",
	}
}

// NewCardNotFoundError はカードが見つからない場合のエラーを生成する。
func NewCardNotFoundError(cardID string) *APIError {
	return &APIError{
		Code:     ErrCodeCardNotFound,
		Message:  fmt.Sprintf("指定されたカードが見つかりません: %s", cardID),
		Category: "collection",
		Action:   "カード一覧を再読み込みしてください。",
	}
}

// NewCatalogSetNotFoundError はカタログにセットが存在しない場合のエラーを生成する。
func NewCatalogSetNotFoundError(setID string) *APIError {
	return &APIError{
		Code:     ErrCodeCatalogSetNotFound,
		Message:  fmt.Sprintf("カタログにセットが見つかりません: %s", setID),
		Category: "catalog",
		Action:   "セットIDを確認してください。",
	}
}

// NewSetAlreadyTrackedError は既に登録済みのセットを再度登録しようとした場合のエラーを生成する。
func NewSetAlreadyTrackedError(setID string) *APIError {
	return &APIError{
		Code:     ErrCodeSetAlreadyTracked,
		Message:  fmt.Sprintf("このセットは既に登録されています: %s", setID),
		Category: "collection",
		Action:   "セット一覧から該当セットを確認してください。",
	}
}

// NewCatalogUnavailableError はカタログプロバイダーに接続できない場合のエラーを生成する。
func NewCatalogUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  "カード情報の取得に失敗しました。",
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCollectionWriteFailedError は複数ステップの書き込みが完了しなかった場合のエラーを生成する。
// 書き込みはロールバック済みのため、同じ操作を再試行できる。
func NewCollectionWriteFailedError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionWriteFailed,
		Message:  fmt.Sprintf("コレクションの更新を完了できませんでした: %s", operation),
		Category: "system",
		Action:   "変更は反映されていません。再度お試しください。",
	}
}

// NewRateLimitedError はアカウントごとのレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
