package httpapi

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

// authorize checks the static bearer token when one is configured. The real
// identity provider lives outside this service; the token only fences the
// HTTP surface. Websocket clients may pass the token as a query parameter
// since browsers cannot set headers on websocket dials.
func authorize(r *http.Request, token string) *authError {
	if token == "" {
		return nil
	}
	presented := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		presented = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if presented == "" {
		presented = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if presented == "" {
		return &authError{status: 401, code: "unauthorized", message: "missing bearer token"}
	}
	if !hmac.Equal([]byte(presented), []byte(token)) {
		return &authError{status: 401, code: "unauthorized", message: "invalid bearer token"}
	}
	return nil
}
