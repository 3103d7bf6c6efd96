package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/cardbinder/internal/model"
)

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantMsg  string
	}{
		{"正常", `{"set_api_id":"sv1","set_name":"SV","total_cards":10}`, "", ""},
		{"不正なJSON", `{"set_api_id":`, model.ErrCodeInvalidRequest, ""},
		{"未知のフィールド", `{"set_api_id":"sv1","set_name":"SV","total_cards":10,"admin":true}`, model.ErrCodeInvalidRequest, ""},
		{"型違い", `{"set_api_id":"sv1","set_name":"SV","total_cards":"10"}`, model.ErrCodeInvalidRequest, ""},
		{"末尾の余分なデータ", `{"set_api_id":"sv1","set_name":"SV","total_cards":10}{}`, model.ErrCodeInvalidRequest, ""},
		{"必須項目の欠落", `{"set_name":"SV","total_cards":10}`, model.ErrCodeValidationFailed, "set_api_id"},
		{"総数が0", `{"set_api_id":"sv1","set_name":"SV","total_cards":0}`, model.ErrCodeValidationFailed, "total_cards"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sets", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst addSetRequest
			apiErr := decodeJSONBody(w, req, &dst)

			if tt.wantCode == "" {
				require.Nil(t, apiErr)
				assert.Equal(t, "sv1", dst.SetAPIID)
				return
			}
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			if tt.wantMsg != "" {
				assert.Contains(t, apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestDecodeJSONBody_NestedFieldPath(t *testing.T) {
	body := `{"set_api_id":"sv1","cards":[{"id":"sv1-1","name":"A","number":"1"},{"id":"sv1-2","name":"","number":"2"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/cards", strings.NewReader(body))

	var dst bulkInitRequest
	apiErr := decodeJSONBody(httptest.NewRecorder(), req, &dst)

	require.NotNil(t, apiErr)
	assert.Equal(t, model.ErrCodeValidationFailed, apiErr.Code)
	assert.Contains(t, apiErr.Message, "cards[1].name")
}

func TestDecodeJSONBody_EmptyCards(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cards", strings.NewReader(`{"set_api_id":"sv1","cards":[]}`))

	var dst bulkInitRequest
	apiErr := decodeJSONBody(httptest.NewRecorder(), req, &dst)

	require.NotNil(t, apiErr)
	assert.Contains(t, apiErr.Message, "cards")
}

func TestDecodeJSONBody_ToggleRequiresCollected(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/api/cards/x", strings.NewReader(`{}`))

	var dst toggleCardRequest
	apiErr := decodeJSONBody(httptest.NewRecorder(), req, &dst)

	require.NotNil(t, apiErr)
	assert.Equal(t, model.ErrCodeValidationFailed, apiErr.Code)
	assert.Contains(t, apiErr.Message, "collected")

	// falseは有効な値として受け付ける
	req = httptest.NewRequest(http.MethodPatch, "/api/cards/x", strings.NewReader(`{"collected":false}`))
	dst = toggleCardRequest{}
	require.Nil(t, decodeJSONBody(httptest.NewRecorder(), req, &dst))
	require.NotNil(t, dst.Collected)
	assert.False(t, *dst.Collected)
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	big := `{"access_token":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(big))

	var dst authRequest
	apiErr := decodeJSONBody(httptest.NewRecorder(), req, &dst)

	require.NotNil(t, apiErr)
	assert.Equal(t, model.ErrCodeInvalidRequest, apiErr.Code)
}
