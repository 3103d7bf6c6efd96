package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const privyIssuer = "privy.io"

// ErrInvalidToken はアクセストークンの検証に失敗したことを表す。
var ErrInvalidToken = errors.New("auth: invalid access token")

// PrivyConfig はPrivyトークン検証の設定。
type PrivyConfig struct {
	AppID           string
	VerificationKey string // ES256公開鍵（PEM）

	// テスト用にオーバーライド可能な時刻関数
	Now func() time.Time
}

// PrivyVerifier はPrivyが発行したアクセストークン（ES256 JWT）をローカルで検証する。
type PrivyVerifier struct {
	appID     string
	publicKey *ecdsa.PublicKey
	parser    *jwt.Parser
}

// NewPrivyVerifier はPrivyVerifierを生成する。公開鍵が解析できない場合はエラーを返す。
func NewPrivyVerifier(config PrivyConfig) (*PrivyVerifier, error) {
	if config.AppID == "" {
		return nil, errors.New("privy app id is required")
	}
	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(config.VerificationKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse privy verification key: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(privyIssuer),
		jwt.WithAudience(config.AppID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if config.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(config.Now))
	}

	return &PrivyVerifier{
		appID:     config.AppID,
		publicKey: publicKey,
		parser:    jwt.NewParser(opts...),
	}, nil
}

// Verify はトークンを検証し、subject（Privy DID）を返す。
// 署名、発行者、audience、有効期限のいずれかが不正な場合はErrInvalidTokenをラップして返す。
func (v *PrivyVerifier) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Subject, nil
}

// compile-time interface check
var _ TokenVerifier = (*PrivyVerifier)(nil)
