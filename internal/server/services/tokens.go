package services

import (
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/server/auth"
	"github.com/dmitrijs2005/mywarranties/internal/server/config"
)

// TokenService mints and checks device access tokens.
type TokenService struct {
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Issue returns an access token for ownerID.
func (s *TokenService) Issue(ownerID string) (string, error) {
	return auth.GenerateToken(ownerID, s.jwtSecret, s.accessTokenValidityDuration)
}

// OwnerID validates token and returns the owner it was issued for.
func (s *TokenService) OwnerID(token string) (string, error) {
	return auth.GetOwnerIDFromToken(token, s.jwtSecret)
}
