package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// codeInvalidRequest is the JSON-RPC code sent to unauthenticated HTTP
// clients.
const codeInvalidRequest = -32600

type authErrorReply struct {
	JSONRPC string `json:"jsonrpc"`
	Error   struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID any `json:"id"`
}

// authenticate admits requests carrying the configured secret as a bearer
// token and answers the rest with a JSON-RPC error. With no secret every
// request is refused.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if validToken(s.cfg.Secret, r.Header.Get("Authorization")) {
			next.ServeHTTP(w, r)
			return
		}
		s.log.Warning("refused %s %s from %s: missing or wrong token", r.Method, r.URL.Path, r.RemoteAddr)

		var reply authErrorReply
		reply.JSONRPC = "2.0"
		reply.Error.Code = codeInvalidRequest
		reply.Error.Message = "Unauthorized"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(&reply)
	})
}

func validToken(secret, authHeader string) bool {
	if secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
