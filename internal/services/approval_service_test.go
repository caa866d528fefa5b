package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/gatekeeper/internal/models"
)

func TestIssueTokenSevenDayValidity(t *testing.T) {
	tokens := &MockTokenWriter{}
	svc := NewApprovalLinkService(tokens, 7*24*time.Hour, testLogger())

	token, err := svc.IssueToken(context.Background(), "client-1", "2026-08")
	require.NoError(t, err)

	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "client-1", token.ClientID)
	assert.Equal(t, "2026-08", token.ValidMonth)
	assert.Equal(t, token.IssuedAt.Add(7*24*time.Hour), token.ExpiresAt)
	require.Len(t, tokens.Created, 1)
}

func TestIssueTokenRejectsBadMonth(t *testing.T) {
	svc := NewApprovalLinkService(&MockTokenWriter{}, 7*24*time.Hour, testLogger())

	for _, month := range []string{"2026-13", "August 2026", "2026/08", ""} {
		_, err := svc.IssueToken(context.Background(), "client-1", month)
		assert.ErrorIs(t, err, models.ErrBadRequest, "month %q", month)
	}
}

func TestIssueTokenReissueYieldsIndependentToken(t *testing.T) {
	tokens := &MockTokenWriter{}
	svc := NewApprovalLinkService(tokens, 7*24*time.Hour, testLogger())

	first, err := svc.IssueToken(context.Background(), "client-1", "2026-08")
	require.NoError(t, err)
	second, err := svc.IssueToken(context.Background(), "client-1", "2026-08")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Len(t, tokens.Created, 2)
}
