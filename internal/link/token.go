package link

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL bounds how long an issued link token stays redeemable.
const TokenTTL = 10 * time.Minute

const tokenIssuer = "inboxpilot"

// TokenExpiredError reports a link token past its expiry.
type TokenExpiredError struct{}

func (e *TokenExpiredError) Error() string {
	return "link token expired"
}

// Message returns a user-facing description.
func (e *TokenExpiredError) Message() string {
	return "This link request has expired. Please start the account connection again."
}

// TokenConsumedError reports a link token that was already redeemed,
// or never issued by this process.
type TokenConsumedError struct{}

func (e *TokenConsumedError) Error() string {
	return "link token already consumed"
}

// Message returns a user-facing description.
func (e *TokenConsumedError) Message() string {
	return "This link request was already used. Please start the account connection again."
}

// InvalidTokenError reports a token that failed signature or claim
// verification.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid link token: %s", e.Reason)
}

// Message returns a user-facing description.
func (e *InvalidTokenError) Message() string {
	return "This link request is not valid. Please start the account connection again."
}

// linkClaims binds a token to one tenant and one provider.
type linkClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// tokenRegistry tracks issued, not-yet-redeemed token IDs. Redemption
// removes the ID under the same lock that checks it, so a token can
// never be redeemed twice even under concurrent callback replay.
type tokenRegistry struct {
	mu      sync.Mutex
	pending map[string]time.Time
	logger  *slog.Logger
	done    chan struct{}
}

func newTokenRegistry(logger *slog.Logger) *tokenRegistry {
	r := &tokenRegistry{
		pending: make(map[string]time.Time),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go r.cleanup()
	return r
}

func (r *tokenRegistry) add(jti string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[jti] = expiresAt
}

// redeem removes the token ID if it is still pending. It returns a
// TokenConsumedError for IDs that are absent and a TokenExpiredError
// for IDs past their expiry.
func (r *tokenRegistry) redeem(jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiresAt, ok := r.pending[jti]
	if !ok {
		return &TokenConsumedError{}
	}
	delete(r.pending, jti)
	if time.Now().After(expiresAt) {
		return &TokenExpiredError{}
	}
	return nil
}

// cleanup periodically drops expired pending entries so abandoned
// flows do not accumulate.
func (r *tokenRegistry) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			now := time.Now()
			r.mu.Lock()
			removed := 0
			for jti, expiresAt := range r.pending {
				if now.After(expiresAt) {
					delete(r.pending, jti)
					removed++
				}
			}
			r.mu.Unlock()
			if removed > 0 {
				r.logger.Debug("expired link tokens removed", slog.Int("count", removed))
			}
		}
	}
}

func (r *tokenRegistry) close() {
	close(r.done)
}

// signToken mints a signed single-use token bound to tenant+provider.
func signToken(secret []byte, tenant, provider string, now time.Time) (token string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	expiresAt = now.Add(TokenTTL)

	claims := &linkClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   tenant,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign link token: %w", err)
	}
	return token, jti, expiresAt, nil
}

// parseToken verifies signature and claims. Expiry surfaces as a
// TokenExpiredError; everything else as an InvalidTokenError.
func parseToken(secret []byte, token string) (*linkClaims, error) {
	claims := &linkClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &TokenExpiredError{}
		}
		return nil, &InvalidTokenError{Reason: err.Error()}
	}
	if claims.Subject == "" || claims.Provider == "" || claims.ID == "" {
		return nil, &InvalidTokenError{Reason: "missing claims"}
	}
	return claims, nil
}
