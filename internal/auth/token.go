package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken 请求中未携带令牌
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken 令牌无效、过期或缺少候选人标识
	ErrInvalidToken = errors.New("invalid token")
)

// CandidateID 兼容字符串和数字两种JSON编码的候选人标识
// 上游签发方有的写 "cid": "42"，有的写 "cid": 42
type CandidateID string

func (c *CandidateID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CandidateID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = CandidateID(n.String())
	return nil
}

// Claims 投递令牌的声明结构
type Claims struct {
	CandidateID CandidateID `json:"cid"`
	jwt.RegisteredClaims
}

// Verifier 校验HS256签名的投递令牌
type Verifier struct {
	secret []byte
}

// NewVerifier 创建令牌校验器
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify 校验令牌并返回候选人标识
// 签名无效、已过期或 cid 为空均视为无效令牌
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.CandidateID == "" {
		return "", ErrInvalidToken
	}
	return string(claims.CandidateID), nil
}

// Sign 签发一个候选人令牌，主要用于测试和本地调试工具
func (v *Verifier) Sign(candidateID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		CandidateID: CandidateID(candidateID),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// SignNumericCID 以数字形式编码 cid 签发令牌，用于兼容性测试
func SignNumericCID(secret string, cid int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"cid": cid,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
