package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	TokenTypeAccess = "access"
	TokenTypeStream = "sse"

	streamTokenTTL = 5 * time.Minute
)

var ErrInvalidToken = errors.New("invalid token")

// Service verifies the tokens issued by the identity provider and mints the
// short-lived stream tokens used by EventSource clients.
type Service interface {
	GenerateAccessToken(subject string, companyID string) (token string, expiresAt int64, err error)
	GenerateStreamToken(subject string, companyID string) (token string, expiresIn int, err error)
	ValidateStreamToken(tokenString string) (jwt.Token, error)
	JWTAuth() *jwtauth.JWTAuth
}

type JWTService struct {
	accessTokenExpirationTime time.Duration
	tokenAuth                 *jwtauth.JWTAuth
	now                       func() time.Time
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, accessTokenExpirationTime string) (Service, error) {
	expiration, err := time.ParseDuration(accessTokenExpirationTime)
	if err != nil {
		return nil, fmt.Errorf("invalid access token expiration %q: %w", accessTokenExpirationTime, err)
	}
	return &JWTService{
		accessTokenExpirationTime: expiration,
		tokenAuth:                 jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
		now:                       time.Now,
	}, nil
}

// GenerateAccessToken issues an access token for a company. It is used by
// local tooling; production tokens come from the identity provider.
func (j *JWTService) GenerateAccessToken(subject string, companyID string) (token string, expiresAt int64, err error) {
	expiresAt = j.now().Add(j.accessTokenExpirationTime).Unix()

	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"sub":        subject,
		"company_id": companyID,
		"type":       TokenTypeAccess,
		"exp":        expiresAt,
	})
	return tokenString, expiresAt, err
}

// GenerateStreamToken generates a short-lived token for SSE connections
func (j *JWTService) GenerateStreamToken(subject string, companyID string) (token string, expiresIn int, err error) {
	expiresAt := j.now().Add(streamTokenTTL).Unix()

	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"sub":        subject,
		"company_id": companyID,
		"type":       TokenTypeStream,
		"exp":        expiresAt,
	})
	if err != nil {
		return "", 0, err
	}

	return tokenString, int(streamTokenTTL.Seconds()), nil
}

// ValidateStreamToken decodes and verifies an SSE token. The returned token
// can be placed in a request context with jwtauth.NewContext.
func (j *JWTService) ValidateStreamToken(tokenString string) (jwt.Token, error) {
	token, err := jwtauth.VerifyToken(j.tokenAuth, tokenString)
	if err != nil {
		return nil, err
	}

	tokenType, ok := token.Get("type")
	if !ok || tokenType != TokenTypeStream {
		return nil, ErrInvalidToken
	}

	companyID, ok := token.Get("company_id")
	if id, isString := companyID.(string); !ok || !isString || id == "" {
		return nil, ErrInvalidToken
	}

	return token, nil
}
