// Copyright 2022 The go-ethereum Authors
// Copyright 2025 The ensis Authors
// This file is part of the ensis library.
//
// The ensis library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ensis library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ensis library. If not, see <http://www.gnu.org/licenses/>.

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v4"
)

const jwtExpiryTimeout = 60 * time.Second

type jwtHandler struct {
	keyFunc func(token *jwt.Token) (interface{}, error)
	next    http.Handler
}

// newJWTHandler creates a http.Handler with jwt authentication support.
func newJWTHandler(secret []byte, next http.Handler) http.Handler {
	return &jwtHandler{
		keyFunc: func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		next: next,
	}
}

// ServeHTTP implements http.Handler
func (handler *jwtHandler) ServeHTTP(out http.ResponseWriter, r *http.Request) {
	var (
		strToken string
		claims   jwt.RegisteredClaims
	)
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		strToken = strings.TrimPrefix(auth, "Bearer ")
	}
	if len(strToken) == 0 {
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: "missing token"})
		return
	}
	// We explicitly set only HS256 allowed, and also disables the
	// claim-check: the RegisteredClaims internally requires 'iat' to
	// be no later than 'now', but we allow for a bit of drift.
	token, err := jwt.ParseWithClaims(strToken, &claims, handler.keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation())

	switch {
	case err != nil:
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case !token.Valid:
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
	case !claims.VerifyExpiresAt(time.Now(), false): // optional
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: "token is expired"})
	case claims.IssuedAt == nil:
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: "missing issued-at"})
	case time.Since(claims.IssuedAt.Time) > jwtExpiryTimeout:
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: "stale token"})
	case time.Until(claims.IssuedAt.Time) > jwtExpiryTimeout:
		writeJSON(out, http.StatusUnauthorized, errorResponse{Error: "future token"})
	default:
		handler.next.ServeHTTP(out, r)
	}
}

// NewJWTToken creates a bearer token for the write endpoint, issued now.
func NewJWTToken(secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": &jwt.NumericDate{Time: time.Now()},
	})
	s, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to create JWT token: %w", err)
	}
	return s, nil
}

// LoadJWTSecret reads a hex encoded 32 byte secret from file.
func LoadJWTSecret(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	secret := common.FromHex(strings.TrimSpace(string(data)))
	if len(secret) != 32 {
		return nil, errors.New("invalid JWT secret, want 32 hex encoded bytes")
	}
	return secret, nil
}
