package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// StateMaxAge bounds how long a signed state token stays valid after issuance.
const StateMaxAge = 10 * time.Minute

// ErrInvalidState is the only error VerifyState returns. Parse failures, mac
// mismatches and expiry are deliberately indistinguishable to the caller.
var ErrInvalidState = errors.New("invalid or expired state")

// StateClaims ride through the OAuth redirect as an opaque signed token,
// binding the callback to the user who started the handshake.
type StateClaims struct {
	UserID   int64  `json:"u"`
	IssuedAt int64  `json:"t"`
	Nonce    string `json:"n"`
}

type stateEnvelope struct {
	StateClaims
	Sig string `json:"s"`
}

// NewStateClaims stamps fresh claims for the given user.
func NewStateClaims(userID int64) (StateClaims, error) {
	nonce, err := GenerateRandomKey(8)
	if err != nil {
		return StateClaims{}, err
	}
	return StateClaims{
		UserID:   userID,
		IssuedAt: time.Now().Unix(),
		Nonce:    nonce,
	}, nil
}

// SignState serializes the claims, macs them with the server secret and packs
// everything into one URL-safe token.
func SignState(claims StateClaims, secret []byte) (string, error) {
	msg, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	env := stateEnvelope{
		StateClaims: claims,
		Sig:         stateMAC(msg, secret),
	}

	packed, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(packed), nil
}

// VerifyState recomputes the mac over the claims portion and checks the
// issuance window. Every failure mode collapses to ErrInvalidState.
func VerifyState(token string, secret []byte) (*StateClaims, error) {
	return verifyStateAt(token, secret, time.Now())
}

func verifyStateAt(token string, secret []byte, now time.Time) (*StateClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidState
	}

	var env stateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidState
	}

	msg, err := json.Marshal(env.StateClaims)
	if err != nil {
		return nil, ErrInvalidState
	}

	if !hmac.Equal([]byte(env.Sig), []byte(stateMAC(msg, secret))) {
		return nil, ErrInvalidState
	}

	age := now.Unix() - env.IssuedAt
	if age < 0 || age > int64(StateMaxAge.Seconds()) {
		return nil, ErrInvalidState
	}

	claims := env.StateClaims
	return &claims, nil
}

func stateMAC(msg, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}
