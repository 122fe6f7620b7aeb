package auth

import (
	"net/http"
	"time"

	"github.com/rs/xid"
)

// DeviceCookieName identifies one browser for the login lockout.
const DeviceCookieName = "mf_device"

const deviceCookieMaxAge = 365 * 24 * time.Hour

// DeviceKey returns the caller's device key, issuing a new cookie when the
// browser does not have one yet.
//
// The key is NOT an identity and NOT a security boundary: the browser owns
// the cookie and can drop it at will.
func DeviceKey(w http.ResponseWriter, r *http.Request, secure bool) string {
	if c, err := r.Cookie(DeviceCookieName); err == nil && c.Value != "" {
		if _, err := xid.FromString(c.Value); err == nil {
			return c.Value
		}
	}

	key := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
	})
	return key
}
