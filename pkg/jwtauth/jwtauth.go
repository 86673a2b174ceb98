// Package jwtauth 身份凭证的签发与校验
// 上游认证服务签发同构的 HS256 token，本服务只做校验和取身份
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gebeya/pkg/config"
)

// ErrTokenInvalid 凭证不可用：过期、签名不对、结构非法都归到这里
var ErrTokenInvalid = errors.New("jwtauth: token invalid")

// Claims 自定义载荷，sub 为身份 ID
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken 签发凭证，测试和内部工具使用
func IssueToken(identityID, role string) (string, error) {
	secret := config.GetString("jwt.secret")
	if secret == "" {
		return "", errors.New("jwtauth: jwt.secret is not configured")
	}

	expire := time.Duration(config.GetInt("jwt.expire_time", 24*60)) * time.Minute
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identityID,
			Issuer:    config.GetString("jwt.issuer", "gebeya-api"),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expire)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 校验凭证并取出身份
func ParseToken(tokenString string) (*Claims, error) {
	secret := config.GetString("jwt.secret")
	if secret == "" {
		return nil, errors.New("jwtauth: jwt.secret is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
