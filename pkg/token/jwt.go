// Package token 校验由外部认证服务签发的 JWT。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示签名不匹配、已过期或缺少操作员信息。
var ErrInvalidToken = errors.New("invalid token")

// OperatorClaims 是访问令牌中携带的调用方信息。
type OperatorClaims struct {
	OperatorID string `json:"operatorId"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier 只负责校验，不签发令牌。
type Verifier struct {
	secretKey []byte
}

// NewVerifier 使用共享密钥创建 Verifier。
func NewVerifier(secret string) *Verifier {
	return &Verifier{secretKey: []byte(secret)}
}

// Verify 解析并校验 token，返回其中的操作员信息。
func (v *Verifier) Verify(tokenString string) (*OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secretKey, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.OperatorID == "" {
		claims.OperatorID = claims.Subject
	}
	if claims.OperatorID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
