package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
)

const (
	ctxUserKey = "userID"
	ctxRoleKey = "role"
)

// Claims — sub (id пользователя) и роль.
type Claims struct {
	jwt.StandardClaims
	Role models.Role `json:"role"`
}

// GenerateToken — HS256-токен для пользователя (CLI и тесты).
func GenerateToken(secret string, userID int64, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Role: role,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return ss, nil
}

func parseToken(secret, raw string) (int64, models.Role, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, "", err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("bad subject %q", claims.Subject)
	}
	return id, claims.Role, nil
}

// jwtAuth — Bearer-токен обязателен; id и роль кладутся и в echo.Context, и в context запроса.
func jwtAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || raw == "" {
				return apperr.Unauthorized("missing or malformed jwt")
			}
			id, role, err := parseToken(secret, raw)
			if err != nil {
				return &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "invalid or expired jwt", Err: err}
			}
			c.Set(ctxUserKey, id)
			c.Set(ctxRoleKey, role)
			req := c.Request()
			ctx := ctxutil.WithRole(ctxutil.WithUserID(req.Context(), id), string(role))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func requireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxRoleKey).(models.Role)
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return apperr.Forbidden("permission denied")
		}
	}
}

func currentUser(c echo.Context) (int64, error) {
	id, ok := c.Get(ctxUserKey).(int64)
	if !ok {
		return 0, apperr.Unauthorized("user not authenticated")
	}
	return id, nil
}
