package attendance

import (
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCodec(t *testing.T) {
	codec := NewTokenCodec("secret", "Mentora")
	now := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)
	sess := Session{
		ID:        "s1",
		MeetingID: "cs101",
		TokenID:   "t1",
		State:     StateActive,
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}

	validToken, err := codec.Issue(sess)
	require.NoError(t, err)

	// the deadline is enforced by the Manager, not by the token
	expired := sess
	expired.IssuedAt = now.AddDate(-1, 0, 0)
	expired.ExpiresAt = expired.IssuedAt.Add(time.Minute)
	expiredToken, err := codec.Issue(expired)
	require.NoError(t, err)

	otherKeyToken, err := NewTokenCodec("other", "Mentora").Issue(sess)
	require.NoError(t, err)
	otherIssuerToken, err := NewTokenCodec("secret", "Other").Issue(sess)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{
		StandardClaims: jwt.StandardClaims{Id: "t1", Subject: "s1", Issuer: "Mentora", Audience: tokenAudience},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(validToken, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "no token", wantErr: ErrInvalidToken},
		{name: "garbage", token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "tampered", token: tampered, wantErr: ErrInvalidToken},
		{name: "other key", token: otherKeyToken, wantErr: ErrInvalidToken},
		{name: "other issuer", token: otherIssuerToken, wantErr: ErrInvalidToken},
		{name: "unsigned", token: noneToken, wantErr: ErrInvalidToken},
		{name: "past deadline", token: expiredToken},
		{name: "valid token", token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := codec.Parse(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "s1", claims.Subject)
			assert.Equal(t, "t1", claims.Id)
			assert.Equal(t, "cs101", claims.MeetingID)
		})
	}
}
