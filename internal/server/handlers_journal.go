package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type journalCreateRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Mood    *string `json:"mood"`
	Symbol  *string `json:"symbol"`
	Tags    tagList `json:"tags"`
	Date    *string `json:"date"`
}

type journalUpdateRequest struct {
	ID      string   `json:"id"`
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Mood    *string  `json:"mood"`
	Symbol  *string  `json:"symbol"`
	Tags    *tagList `json:"tags"`
	Date    *string  `json:"date"`
}

type journalEntry struct {
	ID        string
	Title     string
	Content   string
	Mood      *string
	Symbol    *string
	Tags      []string
	Date      time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func journalJSON(entry journalEntry) gin.H {
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	return gin.H{
		"id":        entry.ID,
		"title":     entry.Title,
		"content":   entry.Content,
		"mood":      entry.Mood,
		"symbol":    entry.Symbol,
		"tags":      tags,
		"date":      entry.Date.UTC(),
		"createdAt": entry.CreatedAt.UTC(),
		"updatedAt": entry.UpdatedAt.UTC(),
	}
}

func (a *App) createJournalEntry(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload journalCreateRequest
	if !mustJSON(c, &payload) {
		return
	}
	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" || content == "" {
		writeError(c, http.StatusBadRequest, "title and content are required")
		return
	}

	date := time.Now().UTC()
	if payload.Date != nil && strings.TrimSpace(*payload.Date) != "" {
		parsed, err := parseDateOrTimestamp(*payload.Date)
		if err != nil {
			writeError(c, http.StatusBadRequest, "date must be an ISO-8601 timestamp or YYYY-MM-DD")
			return
		}
		date = parsed
	}

	symbol := payload.Symbol
	if symbol == nil && payload.Mood != nil && strings.TrimSpace(*payload.Mood) != "" {
		derived := symbolForEmotion(*payload.Mood)
		symbol = &derived
	}
	tags := payload.Tags
	if tags == nil {
		tags = tagList{}
	}

	entry := journalEntry{
		ID:      uuid.NewString(),
		Title:   title,
		Content: content,
		Mood:    payload.Mood,
		Symbol:  symbol,
		Tags:    []string(tags),
		Date:    date,
	}
	err := a.db.QueryRow(
		c.Request.Context(),
		`INSERT INTO "JournalEntry" (id, "userId", title, content, mood, symbol, tags, date, "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 RETURNING "createdAt", "updatedAt"`,
		entry.ID,
		user.ID,
		entry.Title,
		entry.Content,
		entry.Mood,
		entry.Symbol,
		entry.Tags,
		entry.Date,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create journal entry")
		return
	}

	c.JSON(http.StatusCreated, journalJSON(entry))
}

func (a *App) getJournal(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	targetUserID, statusCode, err := a.resolveReadScope(c, user)
	if err != nil {
		writeError(c, statusCode, err.Error())
		return
	}

	if entryID := strings.TrimSpace(c.Query("id")); entryID != "" {
		entry, err := a.loadJournalEntryForUser(c, targetUserID, entryID)
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, journalJSON(entry))
		return
	}

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT id, title, content, mood, symbol, tags, date, "createdAt", "updatedAt"
		 FROM "JournalEntry"
		 WHERE "userId" = $1
		 ORDER BY date DESC`,
		targetUserID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load journal entries")
		return
	}
	defer rows.Close()

	items := make([]gin.H, 0, 16)
	for rows.Next() {
		entry := journalEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.Title,
			&entry.Content,
			&entry.Mood,
			&entry.Symbol,
			&entry.Tags,
			&entry.Date,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse journal entries")
			return
		}
		items = append(items, journalJSON(entry))
	}

	c.JSON(http.StatusOK, items)
}

// loadJournalEntryForUser fetches one entry scoped by owner; cross-user ids
// surface as not found. Writes the error response itself.
func (a *App) loadJournalEntryForUser(c *gin.Context, userID, entryID string) (journalEntry, error) {
	entry := journalEntry{}
	err := a.db.QueryRow(
		c.Request.Context(),
		`SELECT id, title, content, mood, symbol, tags, date, "createdAt", "updatedAt"
		 FROM "JournalEntry"
		 WHERE id = $1 AND "userId" = $2`,
		entryID,
		userID,
	).Scan(
		&entry.ID,
		&entry.Title,
		&entry.Content,
		&entry.Mood,
		&entry.Symbol,
		&entry.Tags,
		&entry.Date,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusNotFound, "Journal entry not found")
		return journalEntry{}, err
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load journal entry")
		return journalEntry{}, err
	}
	return entry, nil
}

func (a *App) updateJournalEntry(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload journalUpdateRequest
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.ID) == "" {
		writeError(c, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := a.loadJournalEntryForUser(c, user.ID, strings.TrimSpace(payload.ID))
	if err != nil {
		return
	}

	// Merge the patch over stored values; omitted fields keep theirs.
	if payload.Title != nil {
		entry.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Content != nil {
		entry.Content = strings.TrimSpace(*payload.Content)
	}
	if entry.Title == "" || entry.Content == "" {
		writeError(c, http.StatusBadRequest, "title and content must not be empty")
		return
	}
	if payload.Mood != nil {
		entry.Mood = payload.Mood
		if payload.Symbol == nil {
			derived := symbolForEmotion(*payload.Mood)
			entry.Symbol = &derived
		}
	}
	if payload.Symbol != nil {
		entry.Symbol = payload.Symbol
	}
	if payload.Tags != nil {
		entry.Tags = []string(*payload.Tags)
	}
	if payload.Date != nil {
		parsed, err := parseDateOrTimestamp(*payload.Date)
		if err != nil {
			writeError(c, http.StatusBadRequest, "date must be an ISO-8601 timestamp or YYYY-MM-DD")
			return
		}
		entry.Date = parsed
	}

	err = a.db.QueryRow(
		c.Request.Context(),
		`UPDATE "JournalEntry" SET
			title = $1,
			content = $2,
			mood = $3,
			symbol = $4,
			tags = $5,
			date = $6,
			"updatedAt" = NOW()
		 WHERE id = $7 AND "userId" = $8
		 RETURNING "updatedAt"`,
		entry.Title,
		entry.Content,
		entry.Mood,
		entry.Symbol,
		entry.Tags,
		entry.Date,
		entry.ID,
		user.ID,
	).Scan(&entry.UpdatedAt)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update journal entry")
		return
	}

	c.JSON(http.StatusOK, journalJSON(entry))
}

func (a *App) deleteJournalEntry(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	entryID := strings.TrimSpace(c.Query("id"))
	if entryID == "" {
		writeError(c, http.StatusBadRequest, "id query parameter is required")
		return
	}

	tag, err := a.db.Exec(
		c.Request.Context(),
		`DELETE FROM "JournalEntry" WHERE id = $1 AND "userId" = $2`,
		entryID,
		user.ID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete journal entry")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Journal entry not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
