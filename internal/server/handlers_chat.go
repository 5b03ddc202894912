package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// companionContextTurnLimit bounds how much history is replayed to the
// companion model per reply.
const companionContextTurnLimit = 20

type chatMessageCreateRequest struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Emotion   *string `json:"emotion"`
	Intensity *int    `json:"intensity"`
}

type chatSession struct {
	ID        string
	UserID    string
	Status    string
	StartedAt time.Time
	EndedAt   *time.Time
}

type chatSessionListItem struct {
	SessionID      string
	Status         string
	StartedAt      time.Time
	EndedAt        *time.Time
	FirstUserInput *string
	LastMessageAt  time.Time
	MessageCount   int
}

func (a *App) createChatSession(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// One active session per user: starting a new one closes the previous.
	if _, err := a.db.Exec(
		c.Request.Context(),
		`UPDATE "ChatSession"
		 SET status = 'CLOSED',
		     "endedAt" = COALESCE("endedAt", NOW())
		 WHERE "userId" = $1 AND status = 'ACTIVE'`,
		user.ID,
	); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to rotate previous chat session")
		return
	}

	sessionID := uuid.NewString()
	var startedAt time.Time
	err := a.db.QueryRow(
		c.Request.Context(),
		`INSERT INTO "ChatSession" (id, "userId", status, "startedAt")
		 VALUES ($1, $2, 'ACTIVE', NOW())
		 RETURNING "startedAt"`,
		sessionID,
		user.ID,
	).Scan(&startedAt)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create chat session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"status":     "active",
		"started_at": startedAt.UTC(),
	})
}

func (a *App) listChatSessions(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT
			s.id,
			s.status::text,
			s."startedAt",
			s."endedAt",
			(
				SELECT m.content
				FROM "ChatMessage" m
				WHERE m."sessionId" = s.id AND m.role = 'user'
				ORDER BY m."createdAt" ASC
				LIMIT 1
			) AS first_user_input,
			COALESCE(
				(
					SELECT m."createdAt"
					FROM "ChatMessage" m
					WHERE m."sessionId" = s.id
					ORDER BY m."createdAt" DESC
					LIMIT 1
				),
				s."startedAt"
			) AS last_message_at,
			(
				SELECT COUNT(*)::int
				FROM "ChatMessage" m
				WHERE m."sessionId" = s.id
			) AS message_count
		 FROM "ChatSession" s
		 WHERE s."userId" = $1
		 ORDER BY last_message_at DESC
		 LIMIT $2`,
		user.ID,
		limit,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat sessions")
		return
	}
	defer rows.Close()

	items := make([]gin.H, 0, 24)
	for rows.Next() {
		record := chatSessionListItem{}
		if err := rows.Scan(
			&record.SessionID,
			&record.Status,
			&record.StartedAt,
			&record.EndedAt,
			&record.FirstUserInput,
			&record.LastMessageAt,
			&record.MessageCount,
		); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse chat sessions")
			return
		}
		items = append(items, gin.H{
			"session_id":      record.SessionID,
			"title":           deriveSessionTitle(record.FirstUserInput),
			"status":          strings.ToLower(strings.TrimSpace(record.Status)),
			"started_at":      record.StartedAt.UTC(),
			"ended_at":        record.EndedAt,
			"last_message_at": record.LastMessageAt.UTC(),
			"message_count":   record.MessageCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": items})
}

func deriveSessionTitle(firstUserInput *string) string {
	if firstUserInput == nil {
		return "New conversation"
	}
	title := strings.TrimSpace(*firstUserInput)
	if title == "" {
		return "New conversation"
	}
	runes := []rune(title)
	if len(runes) > 48 {
		return string(runes[:48]) + "..."
	}
	return title
}

func (a *App) loadChatSessionForUser(ctx context.Context, userID, sessionID string) (chatSession, int, error) {
	session := chatSession{}
	err := a.db.QueryRow(
		ctx,
		`SELECT id, "userId", status::text, "startedAt", "endedAt"
		 FROM "ChatSession"
		 WHERE id = $1 AND "userId" = $2`,
		sessionID,
		userID,
	).Scan(&session.ID, &session.UserID, &session.Status, &session.StartedAt, &session.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chatSession{}, http.StatusNotFound, errors.New("Chat session not found")
	}
	if err != nil {
		return chatSession{}, http.StatusInternalServerError, errors.New("Failed to load chat session")
	}
	return session, http.StatusOK, nil
}

func (a *App) createChatMessage(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		writeError(c, http.StatusBadRequest, "session_id is required")
		return
	}

	var payload chatMessageCreateRequest
	if !mustJSON(c, &payload) {
		return
	}
	role := strings.ToLower(strings.TrimSpace(payload.Role))
	if role != "user" && role != "assistant" && role != "system" {
		writeError(c, http.StatusBadRequest, "role must be one of: user, assistant, system")
		return
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		writeError(c, http.StatusBadRequest, "content is required")
		return
	}

	session, statusCode, err := a.loadChatSessionForUser(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		writeError(c, statusCode, err.Error())
		return
	}

	var emotion *string
	if payload.Emotion != nil {
		normalized := normalizeEmotion(*payload.Emotion)
		if normalized != "" {
			emotion = &normalized
		}
	}

	messageID, createdAt, err := a.insertChatMessage(
		c.Request.Context(),
		session.ID,
		role,
		content,
		emotion,
		payload.Intensity,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create chat message")
		return
	}

	response := gin.H{
		"message_id": messageID,
		"session_id": session.ID,
		"role":       role,
		"created_at": createdAt.UTC(),
		"reply":      nil,
	}

	// The companion reply is best-effort: a model failure never loses the
	// stored user message.
	if role == "user" {
		if reply, replyErr := a.generateCompanionReply(c.Request.Context(), session.ID, content); replyErr != nil {
			log.Printf("companion reply failed for session %s: %v", session.ID, replyErr)
		} else if reply != "" {
			replyID, replyCreatedAt, insertErr := a.insertChatMessage(
				c.Request.Context(),
				session.ID,
				"assistant",
				reply,
				nil,
				nil,
			)
			if insertErr != nil {
				log.Printf("companion reply store failed for session %s: %v", session.ID, insertErr)
			} else {
				response["reply"] = gin.H{
					"message_id": replyID,
					"role":       "assistant",
					"content":    reply,
					"created_at": replyCreatedAt.UTC(),
				}
			}
		}
	}

	c.JSON(http.StatusOK, response)
}

func (a *App) insertChatMessage(
	ctx context.Context,
	sessionID, role, content string,
	emotion *string,
	intensity *int,
) (string, time.Time, error) {
	messageID := uuid.NewString()
	var createdAt time.Time
	err := a.db.QueryRow(
		ctx,
		`INSERT INTO "ChatMessage" (id, "sessionId", role, content, emotion, intensity, "createdAt")
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING "createdAt"`,
		messageID,
		sessionID,
		role,
		content,
		emotion,
		intensity,
	).Scan(&createdAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return messageID, createdAt, nil
}

func (a *App) generateCompanionReply(ctx context.Context, sessionID, userMessage string) (string, error) {
	rows, err := a.db.Query(
		ctx,
		`SELECT role, content FROM (
			SELECT role, content, "createdAt"
			FROM "ChatMessage"
			WHERE "sessionId" = $1
			ORDER BY "createdAt" DESC
			LIMIT $2
		 ) recent
		 ORDER BY "createdAt" ASC`,
		sessionID,
		companionContextTurnLimit,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var conversation []CompanionTurn
	for rows.Next() {
		turn := CompanionTurn{}
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return "", err
		}
		conversation = append(conversation, turn)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return a.ai.Reply(ctx, CompanionRequest{
		Conversation: conversation,
		UserMessage:  userMessage,
	})
}

func (a *App) getChatMessages(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	session, statusCode, err := a.loadChatSessionForUser(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		writeError(c, statusCode, err.Error())
		return
	}

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT id, role, content, emotion, intensity, "createdAt"
		 FROM "ChatMessage"
		 WHERE "sessionId" = $1
		 ORDER BY "createdAt" ASC`,
		session.ID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}
	defer rows.Close()

	items := make([]gin.H, 0, 32)
	for rows.Next() {
		var (
			messageID string
			role      string
			content   string
			emotion   *string
			intensity *int
			createdAt time.Time
		)
		if err := rows.Scan(&messageID, &role, &content, &emotion, &intensity, &createdAt); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse chat messages")
			return
		}
		items = append(items, gin.H{
			"message_id": messageID,
			"role":       role,
			"content":    content,
			"emotion":    emotion,
			"intensity":  intensity,
			"created_at": createdAt.UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"messages":   items,
	})
}

// finalizeChatSession is the explicit flush clients call opportunistically
// on unload. Calling it twice, or never, is harmless: insights and
// aggregation derive everything from the messages.
func (a *App) finalizeChatSession(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	session, statusCode, err := a.loadChatSessionForUser(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		writeError(c, statusCode, err.Error())
		return
	}

	if _, err := a.db.Exec(
		c.Request.Context(),
		`UPDATE "ChatSession"
		 SET status = 'CLOSED',
		     "endedAt" = COALESCE("endedAt", NOW())
		 WHERE id = $1 AND "userId" = $2`,
		session.ID,
		user.ID,
	); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to finalize chat session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *App) getChatSessionInsights(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	session, statusCode, err := a.loadChatSessionForUser(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		writeError(c, statusCode, err.Error())
		return
	}

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT emotion, "createdAt"
		 FROM "ChatMessage"
		 WHERE "sessionId" = $1
		 ORDER BY "createdAt" ASC`,
		session.ID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}
	defer rows.Close()

	var messages []sessionMessage
	for rows.Next() {
		message := sessionMessage{}
		if err := rows.Scan(&message.Emotion, &message.CreatedAt); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse chat messages")
			return
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}

	dominant, minutes := sessionStats(messages)
	c.JSON(http.StatusOK, gin.H{
		"session_id":       session.ID,
		"started_at":       session.StartedAt.UTC(),
		"messages_count":   len(messages),
		"dominant_emotion": dominant,
		"duration_minutes": minutes,
		"duration":         formatDurationMinutes(minutes),
	})
}
