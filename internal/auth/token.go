package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はトークン検証失敗を表す。
// 形式不正・署名不一致・期限切れのいずれも区別せずこのエラーに集約する。
// 偽造の手がかりを与えないため、詳細は呼び出し側に公開しない。
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer はステートレスな署名付きセッショントークンの発行と検証を提供する。
// トークンはHMAC-SHA256で署名されたJWTで、サーバー側に状態を持たない。
// 署名鍵はプロセス起動時に1回読み込み、交換は再起動を必要とする。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue は指定ユーザーIDのセッショントークンを発行する。
// クレームはsub（ユーザーID）、iat（発行時刻）、exp（有効期限）のみ。
func (t *TokenIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Validate はトークンの署名と有効期限を検証し、ユーザーIDを返す。
// 検証は(トークン, 鍵, 現在時刻)のみに依存する純粋な処理で、
// ストアへの問い合わせは行わない。
// あらゆる検証失敗に対してErrInvalidTokenを返す。
func (t *TokenIssuer) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}
