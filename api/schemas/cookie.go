package schemas

import (
	"strings"
	"time"
)

// Cookie is one externally supplied authentication cookie. Name and Value are
// required; Domain and Path are defaulted by the session bootstrapper when
// absent.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
	SameSite string    `json:"sameSite,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
}

// Valid reports whether the record carries the two mandatory attributes.
func (c Cookie) Valid() bool {
	return strings.TrimSpace(c.Name) != "" && c.Value != ""
}

// IsSession reports whether the cookie has no explicit expiry.
func (c Cookie) IsSession() bool {
	return c.Expires.IsZero()
}
