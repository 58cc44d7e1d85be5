package handler

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Middleware wraps an http.Handler with additional behavior
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to a handler, outermost first
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recover converts panics into 500 responses
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("Panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(ErrorResponse{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Logger logs each request with its duration
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// APIKeys holds the two shared keys the service accepts. Either may be stored
// as a bcrypt hash instead of plaintext.
type APIKeys struct {
	// WriteKey authorizes ingestion and reads
	WriteKey string

	// ReadKey authorizes reads only
	ReadKey string
}

// Auth enforces "Authorization: Token <key>" on every request. The write key
// grants everything; the read key grants GET only.
func Auth(keys APIKeys) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			switch {
			case matchKey(keys.WriteKey, token):
				next.ServeHTTP(w, r)
			case matchKey(keys.ReadKey, token):
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					writeAuthError(w, "Insufficient permissions", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
			default:
				writeAuthError(w, "Invalid token", http.StatusUnauthorized)
			}
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Token "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// matchKey compares a presented token against a configured key, which is
// either a bcrypt hash or a plaintext value.
func matchKey(key, token string) bool {
	if key == "" {
		return false
	}
	if strings.HasPrefix(key, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(key), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1
}

func writeAuthError(w http.ResponseWriter, msg string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
