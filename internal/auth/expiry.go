// internal/auth/expiry.go
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// ExpiredCookie describes a credential that is already past its expiry,
// either by its cookie attribute or by the exp claim of a JWT value.
type ExpiredCookie struct {
	Name      string
	ExpiredAt time.Time
	Source    string // "cookie" or "jwt"
}

var unverifiedParser = jwt.NewParser()

// tokenExpiry returns the exp claim of a JWT-shaped value. The signature is
// not verified; this is a diagnostic only.
func tokenExpiry(value string) (time.Time, bool) {
	value = strings.TrimPrefix(value, "Bearer ")
	if strings.Count(value, ".") != 2 {
		return time.Time{}, false
	}
	token, _, err := unverifiedParser.ParseUnverified(value, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// findExpired lists cookies that are expired at now.
func findExpired(cookies []schemas.Cookie, now time.Time) []ExpiredCookie {
	var out []ExpiredCookie
	for _, c := range cookies {
		if !c.IsSession() && c.Expires.Before(now) {
			out = append(out, ExpiredCookie{Name: c.Name, ExpiredAt: c.Expires, Source: "cookie"})
			continue
		}
		if exp, ok := tokenExpiry(c.Value); ok && exp.Before(now) {
			out = append(out, ExpiredCookie{Name: c.Name, ExpiredAt: exp, Source: "jwt"})
		}
	}
	return out
}

// ExpiredCookies lists cookies that are already expired.
func ExpiredCookies(cookies []schemas.Cookie) []ExpiredCookie {
	return findExpired(cookies, time.Now())
}
