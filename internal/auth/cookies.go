// internal/auth/cookies.go
package auth

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rawCookie is the wire shape of one exported cookie. It accepts both the
// DevTools/Puppeteer export ("expires", seconds since the epoch, -1 for a
// session cookie) and the browser-extension export ("expirationDate").
type rawCookie struct {
	Name           string              `json:"name"`
	Value          string              `json:"value"`
	Domain         string              `json:"domain"`
	Path           string              `json:"path"`
	Secure         bool                `json:"secure"`
	HTTPOnly       bool                `json:"httpOnly"`
	SameSite       string              `json:"sameSite"`
	Session        bool                `json:"session"`
	Expires        jsoniter.RawMessage `json:"expires"`
	ExpirationDate jsoniter.RawMessage `json:"expirationDate"`
}

// ParseCookies decodes a serialized cookie list. Blank input yields no
// cookies and no error; the bootstrapper decides whether that is fatal.
func ParseCookies(data []byte) ([]schemas.Cookie, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var raw []rawCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &AuthenticationError{Reason: ReasonMalformedCredentials, Err: fmt.Errorf("failed to decode cookie list: %w", err)}
	}

	cookies := make([]schemas.Cookie, 0, len(raw))
	for i, rc := range raw {
		c := schemas.Cookie{
			Name:     strings.TrimSpace(rc.Name),
			Value:    rc.Value,
			Domain:   strings.TrimSpace(rc.Domain),
			Path:     strings.TrimSpace(rc.Path),
			Secure:   rc.Secure,
			HTTPOnly: rc.HTTPOnly,
			SameSite: rc.SameSite,
		}
		if !rc.Session {
			field := rc.Expires
			if len(field) == 0 {
				field = rc.ExpirationDate
			}
			exp, err := parseExpiry(field)
			if err != nil {
				return nil, &AuthenticationError{Reason: ReasonMalformedCredentials, Err: fmt.Errorf("cookie %d (%q): %w", i, c.Name, err)}
			}
			c.Expires = exp
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

// parseExpiry accepts epoch seconds (fractional allowed) or an RFC 3339
// string. Non-positive values mean a session cookie.
func parseExpiry(field jsoniter.RawMessage) (time.Time, error) {
	field = bytes.TrimSpace(field)
	if len(field) == 0 || bytes.Equal(field, []byte("null")) {
		return time.Time{}, nil
	}
	if field[0] == '"' {
		var s string
		if err := json.Unmarshal(field, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid expiry %s: %w", field, err)
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid expiry %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	secs, err := strconv.ParseFloat(string(field), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %s: %w", field, err)
	}
	if secs <= 0 {
		return time.Time{}, nil
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// LoadCookies reads the cookie list from a file when one is configured,
// otherwise from the raw value (typically the AUTOAPPLY_COOKIES variable).
func LoadCookies(file, raw string) ([]schemas.Cookie, error) {
	if file == "" {
		return ParseCookies([]byte(raw))
	}
	path, err := homedir.Expand(file)
	if err != nil {
		return nil, fmt.Errorf("failed to expand cookies file path %q: %w", file, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies file: %w", err)
	}
	return ParseCookies(data)
}
