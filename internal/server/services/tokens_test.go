package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := NewTokenService(&config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour})

	tok, err := svc.Issue("o1")
	require.NoError(t, err)

	owner, err := svc.OwnerID(tok)
	require.NoError(t, err)
	assert.Equal(t, "o1", owner)

	other := NewTokenService(&config.Config{SecretKey: "other", AccessTokenValidityDuration: time.Hour})
	_, err = other.OwnerID(tok)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}
