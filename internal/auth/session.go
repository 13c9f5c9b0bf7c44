// internal/auth/session.go

// Package auth issues and verifies guest session tokens. There are no accounts:
// a session is an ed25519-signed JWT binding a generated player id to a display
// name, so a client can prove continuity across polls without any registration.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// sessionExpireSec is how many seconds until session expiration (0 => never).
	sessionExpireSec int
)

// parseSessionExpireTime reads the SESSION_EXPIRE_TIME env var (a Go duration,
// or "never"/"0"/empty for no expiry).
func parseSessionExpireTime() {
	duration := os.Getenv("SESSION_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		sessionExpireSec = 0
		return
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		fmt.Printf("failed to parse session expire time: %v\n", err)
		os.Exit(1)
	}
	sessionExpireSec = int(d.Seconds())
}

// Init generates a fresh ed25519 key pair at runtime. Sessions do not survive a
// server restart, which matches the ephemeral store they point into.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseSessionExpireTime()
}

// InitFromPath reads ed25519 private/public keys from file, for deployments
// that need sessions to survive restarts or span replicas.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseSessionExpireTime()
	return nil
}

// Session is an issued guest session.
type Session struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Token      string `json:"token"`
}

// NewSession mints a fresh guest identity and its signed token.
func NewSession(playerName string) (*Session, error) {
	playerID := uuid.NewString()
	token, err := CreateSessionToken(playerID, playerName)
	if err != nil {
		return nil, err
	}
	return &Session{PlayerID: playerID, PlayerName: playerName, Token: token}, nil
}

// CreateSessionToken creates a signed JWT with "sub" = playerID and
// "name" = playerName. No exp claim when expiry is disabled.
func CreateSessionToken(playerID, playerName string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  playerID,
		"name": playerName,
	}
	if sessionExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(sessionExpireSec) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifySessionToken verifies a token string and returns the player id and
// display name it was issued for.
func VerifySessionToken(tokenString string) (playerID, playerName string, err error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid jwt claims")
	}
	playerID, ok = claims["sub"].(string)
	if !ok {
		return "", "", fmt.Errorf("missing sub in jwt")
	}
	playerName, _ = claims["name"].(string)
	return playerID, playerName, nil
}
