package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/idtoken"

	"mindwell/backend/internal/config"
)

// roleAdmin is the only elevated role: it unlocks read access to another
// user's journal and calendar data via the user_id query parameter.
const roleAdmin = "ADMIN"

type dbQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type App struct {
	cfg config.Config
	db  *pgxpool.Pool
	ai  CompanionClient
}

type AuthUser struct {
	ID       string
	Provider string
	Email    *string
	Name     string
}

func New(cfg config.Config, db *pgxpool.Pool) *App {
	return NewWithCompanion(cfg, db, NewCompanionClient(cfg))
}

func NewWithCompanion(cfg config.Config, db *pgxpool.Pool, ai CompanionClient) *App {
	return &App{cfg: cfg, db: db, ai: ai}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.GET("/calendar", a.getCalendar)
	api.POST("/calendar", a.upsertMood)
	api.DELETE("/calendar", a.deleteMood)

	api.GET("/calendar/event", a.getCalendarEvents)
	api.POST("/calendar/event", a.createCalendarEvent)
	api.PUT("/calendar/event", a.updateCalendarEvent)
	api.DELETE("/calendar/event", a.deleteCalendarEvent)

	api.GET("/journal", a.getJournal)
	api.POST("/journal", a.createJournalEntry)
	api.PUT("/journal", a.updateJournalEntry)
	api.DELETE("/journal", a.deleteJournalEntry)

	api.POST("/chat/sessions", a.createChatSession)
	api.GET("/chat/sessions", a.listChatSessions)
	api.POST("/chat/sessions/:session_id/messages", a.createChatMessage)
	api.GET("/chat/sessions/:session_id/messages", a.getChatMessages)
	api.POST("/chat/sessions/:session_id/finalize", a.finalizeChatSession)
	api.GET("/chat/sessions/:session_id/insights", a.getChatSessionInsights)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "mindwell-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		sub, claims, err := a.verifyBearerToken(c.Request.Context(), tokenString)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		user, err := a.getOrCreateUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Next()
	}
}

// verifyBearerToken accepts either a first-party HS256 token or, when
// GOOGLE_CLIENT_ID is configured, a Google-issued ID token.
func (a *App) verifyBearerToken(ctx context.Context, tokenString string) (string, map[string]any, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err == nil && token.Valid {
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return "", nil, errors.New("Invalid token payload")
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			return "", nil, errors.New("Invalid token audience")
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				return "", nil, errors.New("Invalid token issuer")
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			return "", nil, errors.New("Token subject missing")
		}
		return sub, claims, nil
	}

	if strings.TrimSpace(a.cfg.GoogleClientID) == "" {
		return "", nil, errors.New("Invalid bearer token")
	}
	payload, idErr := idtoken.Validate(ctx, tokenString, a.cfg.GoogleClientID)
	if idErr != nil {
		return "", nil, errors.New("Invalid bearer token")
	}
	sub := strings.TrimSpace(payload.Subject)
	if sub == "" {
		return "", nil, errors.New("Token subject missing")
	}
	claims := map[string]any{"provider": "google"}
	for key, value := range payload.Claims {
		claims[key] = value
	}
	return sub, claims, nil
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func providerFromClaim(raw any) string {
	if s, ok := raw.(string); ok {
		switch s {
		case "apple", "google", "email":
			return s
		}
	}
	return "email"
}

func toOptionalString(raw any) *string {
	if s, ok := raw.(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func (a *App) getOrCreateUser(ctx context.Context, userID string, claims map[string]any) (AuthUser, error) {
	user := AuthUser{}
	var email *string

	err := a.db.QueryRow(
		ctx,
		`SELECT id, provider, email, name FROM "User" WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Provider, &email, &user.Name)
	if err == nil {
		user.Email = email
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AuthUser{}, err
	}
	if !a.cfg.AuthAutoCreateUser {
		return AuthUser{}, errors.New("User not found")
	}

	provider := providerFromClaim(claims["provider"])
	email = toOptionalString(claims["email"])

	name := ""
	if rawName, ok := claims["name"].(string); ok {
		name = strings.TrimSpace(rawName)
	}
	if name == "" {
		name = fmt.Sprintf("user-%s", truncate(userID, 8))
	}

	if _, err := a.db.Exec(
		ctx,
		`INSERT INTO "User" (id, provider, email, name, "createdAt")
		 VALUES ($1, $2, $3, $4, NOW())`,
		userID,
		provider,
		email,
		name,
	); err != nil {
		return AuthUser{}, err
	}

	return AuthUser{
		ID:       userID,
		Provider: provider,
		Email:    email,
		Name:     name,
	}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func (a *App) userHasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := a.db.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM "UserRole"
		   WHERE "userId" = $1 AND role = $2
		 )`,
		userID,
		role,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// resolveReadScope returns the user id a read handler should filter by.
// Reading another user's data via ?user_id= requires the admin role.
func (a *App) resolveReadScope(c *gin.Context, user AuthUser) (string, int, error) {
	target := strings.TrimSpace(c.Query("user_id"))
	if target == "" || target == user.ID {
		return user.ID, http.StatusOK, nil
	}
	elevated, err := a.userHasRole(c.Request.Context(), user.ID, roleAdmin)
	if err != nil {
		return "", http.StatusInternalServerError, errors.New("Failed to check role membership")
	}
	if !elevated {
		return "", http.StatusForbidden, errors.New("Insufficient role to read another user's data")
	}
	return target, http.StatusOK, nil
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
