package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/cardbinder/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限。一括初期化の数百枚分を想定する。
const maxRequestBodyBytes = 1 << 20

// requestValidator はJSONタグ名でエラーを報告するvalidator。
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// decodeJSONBody はリクエストボディを厳密にデコードし、構造体タグで検証する。
// 未知のフィールドや末尾の余分なデータは拒否する。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return model.NewInvalidRequestError()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.NewInvalidRequestError()
	}

	if err := requestValidator.Struct(dst); err != nil {
		return toValidationError(err)
	}
	return nil
}

// toValidationError はvalidatorのエラーをVALIDATION_FAILEDに変換する。
func toValidationError(err error) *model.APIError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return model.NewValidationError(err.Error())
	}

	problems := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		problems = append(problems, fmt.Sprintf("%s %s", fieldPath(e), friendlyMessage(e)))
	}
	sort.Strings(problems)
	return model.NewValidationError(strings.Join(problems, ", "))
}

// fieldPath はトップレベルの構造体名を除いたフィールドのパスを返す（例: cards[0].id）。
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "は必須です"
	case "min":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("は%s件以上必要です", e.Param())
		}
		return fmt.Sprintf("は%s以上で指定してください", e.Param())
	case "max":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("は%s件以下で指定してください", e.Param())
		}
		return fmt.Sprintf("は%s文字以下で指定してください", e.Param())
	case "gt":
		return fmt.Sprintf("は%sより大きい値で指定してください", e.Param())
	case "uuid":
		return "はUUID形式で指定してください"
	default:
		return "が不正です"
	}
}
