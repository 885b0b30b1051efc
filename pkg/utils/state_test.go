package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var stateSecret = []byte("test-secret")

func TestStateRoundtrip(t *testing.T) {
	claims, err := NewStateClaims(42)
	assert.NoError(t, err)
	assert.NotEmpty(t, claims.Nonce)

	token, err := SignState(claims, stateSecret)
	assert.NoError(t, err)

	verified, err := VerifyState(token, stateSecret)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), verified.UserID)
	assert.Equal(t, claims.Nonce, verified.Nonce)
}

func TestStateWrongSecret(t *testing.T) {
	claims, err := NewStateClaims(42)
	assert.NoError(t, err)

	token, err := SignState(claims, stateSecret)
	assert.NoError(t, err)

	_, err = VerifyState(token, []byte("other-secret"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateTamperedClaims(t *testing.T) {
	claims := StateClaims{UserID: 42, IssuedAt: time.Now().Unix(), Nonce: "abc"}
	token, err := SignState(claims, stateSecret)
	assert.NoError(t, err)

	// Reissue the same claims for a different user without re-signing.
	forged := StateClaims{UserID: 99, IssuedAt: claims.IssuedAt, Nonce: claims.Nonce}
	forgedToken, err := SignState(forged, []byte("attacker"))
	assert.NoError(t, err)

	_, err = VerifyState(forgedToken, stateSecret)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Sanity: the honest token still verifies.
	_, err = VerifyState(token, stateSecret)
	assert.NoError(t, err)
}

func TestStateExpired(t *testing.T) {
	claims := StateClaims{UserID: 42, IssuedAt: time.Now().Unix(), Nonce: "abc"}
	token, err := SignState(claims, stateSecret)
	assert.NoError(t, err)

	// Inside the window.
	_, err = verifyStateAt(token, stateSecret, time.Now().Add(9*time.Minute))
	assert.NoError(t, err)

	// Past the window.
	_, err = verifyStateAt(token, stateSecret, time.Now().Add(11*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIssuedInFuture(t *testing.T) {
	claims := StateClaims{UserID: 42, IssuedAt: time.Now().Add(time.Hour).Unix(), Nonce: "abc"}
	token, err := SignState(claims, stateSecret)
	assert.NoError(t, err)

	_, err = VerifyState(token, stateSecret)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateGarbageToken(t *testing.T) {
	for _, token := range []string{"", "not-base64!!!", "bm90IGpzb24"} {
		_, err := VerifyState(token, stateSecret)
		assert.ErrorIs(t, err, ErrInvalidState)
	}
}
