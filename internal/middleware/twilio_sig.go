package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// ParamsKey is the echo context key holding the verified form parameters.
const ParamsKey = "twilioParams"

// TwilioAuth verifies the X-Twilio-Signature header on webhook requests and
// stashes the parsed form parameters in the context. The auth token is read
// through a function so hot-reloaded settings take effect without restart.
func TwilioAuth(authToken func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := authToken()
			if token == "" {
				return c.String(http.StatusInternalServerError, "missing auth token")
			}

			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "failed to read body")
			}
			formData, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "failed to parse form")
			}

			params := make(map[string]string)
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signature := c.Request().Header.Get("X-Twilio-Signature")
			requestURL := RequestURL(c.Request(), c.Request().URL.Path)
			if !ValidSignature(token, signature, requestURL, params) {
				return c.String(http.StatusUnauthorized, "invalid signature")
			}

			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}

// Params returns the form parameters stored by TwilioAuth.
func Params(c echo.Context) map[string]string {
	if p, ok := c.Get(ParamsKey).(map[string]string); ok {
		return p
	}
	return nil
}

// ValidSignature checks the webhook signature scheme: HMAC-SHA1 over the full
// request URL concatenated with the sorted form parameters.
func ValidSignature(authToken, signature, url string, params map[string]string) bool {
	data := url
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// RequestURL reconstructs the externally visible URL for signature checks,
// honoring reverse-proxy forwarding headers.
func RequestURL(r *http.Request, path string) string {
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}
