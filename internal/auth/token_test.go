package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Sign("cand-123", time.Hour)
	require.NoError(t, err)

	cid, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "cand-123", cid)
}

func TestVerifyNumericCID(t *testing.T) {
	// 上游签发方可能把 cid 编码为JSON数字而不是字符串
	token, err := SignNumericCID("test-secret", 42, time.Hour)
	require.NoError(t, err)

	v := NewVerifier("test-secret")
	cid, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cid)
}

func TestVerifyMissingToken(t *testing.T) {
	v := NewVerifier("test-secret")
	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := NewVerifier("secret-a")
	token, err := signer.Sign("cand-123", time.Hour)
	require.NoError(t, err)

	v := NewVerifier("secret-b")
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign("cand-123", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbageToken(t *testing.T) {
	v := NewVerifier("test-secret")
	_, err := v.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmptyCandidateID(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign("", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
