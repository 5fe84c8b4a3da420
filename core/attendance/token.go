package attendance

import (
	"crypto/sha256"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var (
	salt          = []byte("mentora.core.attendance.token")
	tokenAudience = "attendance"
	signingMethod = jwt.SigningMethodHS256
)

// TokenClaims are the claims carried by a session token.
// StandardClaims.Id is the Session's TokenID and StandardClaims.Subject its ID.
type TokenClaims struct {
	jwt.StandardClaims
	MeetingID string `json:"mid"`
}

// TokenCodec issues and verifies signed session tokens, ie. the payload of the QR code.
type TokenCodec struct {
	key    []byte
	issuer string
}

func NewTokenCodec(secretKey, issuer string) *TokenCodec {
	key := sha256.Sum256(append(append([]byte{}, salt...), secretKey...))
	return &TokenCodec{key: key[:], issuer: issuer}
}

// Issue returns the signed token of the Session's current TokenID.
func (c *TokenCodec) Issue(sess Session) (string, error) {
	claims := TokenClaims{
		StandardClaims: jwt.StandardClaims{
			Id:        sess.TokenID,
			Subject:   sess.ID,
			Issuer:    c.issuer,
			Audience:  tokenAudience,
			IssuedAt:  sess.IssuedAt.Unix(),
			ExpiresAt: sess.ExpiresAt.Unix(),
		},
		MeetingID: sess.MeetingID,
	}
	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Parse checks the token's signature and returns its claims.
// Time based claims are not checked here: expiry belongs to the Manager's Clock.
func (c *TokenCodec) Parse(token string) (TokenClaims, error) {
	var claims TokenClaims
	if token == "" {
		return claims, ErrInvalidToken
	}

	parser := jwt.Parser{
		ValidMethods:         []string{signingMethod.Alg()},
		SkipClaimsValidation: true,
	}
	tok, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil || !tok.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	if claims.Issuer != c.issuer || claims.Audience != tokenAudience || claims.Subject == "" || claims.Id == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	return claims, nil
}
