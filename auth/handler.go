package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidtube/db"
	"vidtube/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const maxPasswordLen = 72 // bcrypt truncates at 72 bytes

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

type contextKey string

// UserIDKey is the context key used to store the authenticated user ID.
const UserIDKey contextKey = "user_id"

// ExtractUserID returns the user ID from the request context, if present.
func ExtractUserID(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// CallerID returns the authenticated caller's ID. It must only be called
// behind the auth middleware.
func CallerID(r *http.Request) string {
	uid, _ := r.Context().Value(UserIDKey).(string)
	return uid
}

// Handler holds dependencies for authentication endpoints.
type Handler struct {
	DB        *db.CompatDB
	JWTSecret string
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// HandleRegister creates a new user account.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "Invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Password) < 8 {
		httputil.WriteError(w, 400, "Username must be 3+ chars, password 8+ chars")
		return
	}
	if len(req.Password) > maxPasswordLen {
		httputil.WriteError(w, 400, "Password must not exceed 72 characters")
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) < 5 {
		httputil.WriteError(w, 400, "A valid email address is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, 500, "Internal error")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = req.Username
	}

	userID := uuid.New().String()
	refreshToken := h.generateToken(userID, refreshTokenTTL)
	_, err = h.DB.ExecContext(r.Context(),
		`INSERT INTO users (id, username, email, full_name, password_hash, refresh_token) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, req.Username, req.Email, fullName, string(hash), refreshToken)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate key") {
			httputil.WriteError(w, 409, "Username or email already taken")
			return
		}
		httputil.WriteError(w, 500, "Failed to create user")
		return
	}

	httputil.WriteData(w, 201, map[string]interface{}{
		"userId":       userID,
		"accessToken":  h.generateToken(userID, accessTokenTTL),
		"refreshToken": refreshToken,
	}, "User registered successfully")
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin authenticates an existing user and rotates the refresh token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "Invalid request body")
		return
	}

	var userID, hash string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, password_hash FROM users WHERE username = ? OR email = ?`,
		req.Username, req.Username,
	).Scan(&userID, &hash)
	if err != nil {
		httputil.WriteError(w, 401, "Invalid credentials")
		return
	}

	if len(req.Password) > maxPasswordLen {
		httputil.WriteError(w, 401, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		httputil.WriteError(w, 401, "Invalid credentials")
		return
	}

	refreshToken := h.generateToken(userID, refreshTokenTTL)
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET refresh_token = ? WHERE id = ?`, refreshToken, userID); err != nil {
		httputil.WriteError(w, 500, "Failed to store refresh token")
		return
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"userId":       userID,
		"accessToken":  h.generateToken(userID, accessTokenTTL),
		"refreshToken": refreshToken,
	}, "Login successful")
}

// HandleRefresh exchanges a stored refresh token for a new token pair.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.WriteError(w, 400, "Refresh token is required")
		return
	}

	userID := parseToken(req.RefreshToken, h.JWTSecret)
	if userID == "" {
		httputil.WriteError(w, 401, "Invalid refresh token")
		return
	}

	var stored string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT refresh_token FROM users WHERE id = ?`, userID).Scan(&stored); err != nil || stored != req.RefreshToken {
		httputil.WriteError(w, 401, "Invalid refresh token")
		return
	}

	refreshToken := h.generateToken(userID, refreshTokenTTL)
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET refresh_token = ? WHERE id = ?`, refreshToken, userID); err != nil {
		httputil.WriteError(w, 500, "Failed to rotate refresh token")
		return
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"userId":       userID,
		"accessToken":  h.generateToken(userID, accessTokenTTL),
		"refreshToken": refreshToken,
	}, "Token refreshed successfully")
}

func (h *Handler) generateToken(userID string, ttl time.Duration) string {
	return GenerateToken(userID, h.JWTSecret, ttl)
}

// GenerateToken creates a signed JWT for the given user ID and secret.
func GenerateToken(userID, secret string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, _ := token.SignedString([]byte(secret))
	return s
}

func parseToken(tokenStr, secret string) string {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// ExtractUserIDFromToken parses the Bearer JWT from a request using the given secret.
func ExtractUserIDFromToken(r *http.Request, secret string) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return parseToken(strings.TrimPrefix(authHeader, "Bearer "), secret)
}

// Middleware requires a valid JWT and puts the user ID into the context.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ExtractUserIDFromToken(r, h.JWTSecret)
		if userID == "" {
			httputil.WriteError(w, 401, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
