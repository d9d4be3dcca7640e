package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var TimeNow = time.Now

var ErrTokenNotValid error = errors.New("token is not valid")
var ErrTokenExpired error = errors.New("token expired")

// TokenInfo carries the claims baked into an access token.
type TokenInfo struct {
	Subject    string
	Role       string
	SessionID  string
	Expiration time.Duration
}

// Claims is the validated view of an access token.
type Claims struct {
	Subject   string
	Role      string
	SessionID string
}

type JWTService struct {
	secret []byte
}

func NewJWTService(jwtSecret []byte) *JWTService {
	return &JWTService{
		secret: jwtSecret,
	}
}

func (gen *JWTService) Generate(data TokenInfo) *jwt.Token {
	now := TimeNow()
	claims := jwt.MapClaims{
		"sub":  data.Subject,
		"role": data.Role,
		"sid":  data.SessionID,
		"iat":  now.Unix(),
		"exp":  now.Add(data.Expiration).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token
}

func (gen *JWTService) Sign(token *jwt.Token) (string, error) {
	tokenStr, err := token.SignedString(gen.secret)
	if err != nil {
		return "", fmt.Errorf("get signing string: %w", err)
	}
	return tokenStr, nil
}

func (gen *JWTService) Validate(token string) (Claims, error) {
	jwtToken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return gen.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse: %w: %w", err, ErrTokenNotValid)
	}

	if !jwtToken.Valid {
		return Claims{}, ErrTokenNotValid
	}

	mapClaims, ok := jwtToken.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("jwt claims type assertion failed")
	}

	if expVal, ok := mapClaims["exp"].(float64); ok {
		if int64(expVal) < TimeNow().Unix() {
			return Claims{}, fmt.Errorf("token expired at %v: %w", time.Unix(int64(expVal), 0), ErrTokenExpired)
		}
	}

	claims := Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	if sid, ok := mapClaims["sid"].(string); ok {
		claims.SessionID = sid
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return Claims{}, ErrTokenNotValid
	}

	return claims, nil
}
