package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type moodUpsertRequest struct {
	Date      string  `json:"date"`
	Emotion   string  `json:"emotion"`
	Intensity *int    `json:"intensity"`
	Symbol    string  `json:"symbol"`
	Notes     *string `json:"notes"`
}

func (a *App) getCalendar(c *gin.Context) {
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

	now := time.Now().UTC()
	year := now.Year()
	monthZeroBased := int(now.Month()) - 1
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "year must be an integer")
			return
		}
		year = parsed
	}
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > 11 {
			writeError(c, http.StatusBadRequest, "month must be an integer between 0 and 11")
			return
		}
		monthZeroBased = parsed
	}

	start, end := monthRange(year, monthZeroBased)

	// The four reads are independent; any single failure aborts the whole
	// aggregation rather than returning a partial month.
	var (
		moods    []moodRecord
		journals []journalRecord
		events   []eventRecord
		sessions []sessionRecord
	)
	group, groupCtx := errgroup.WithContext(c.Request.Context())
	group.Go(func() error {
		var err error
		moods, err = a.fetchMoodsInRange(groupCtx, targetUserID, start, end)
		return err
	})
	group.Go(func() error {
		var err error
		journals, err = a.fetchJournalsInRange(groupCtx, targetUserID, start, end)
		return err
	})
	group.Go(func() error {
		var err error
		events, err = a.fetchEventsInRange(groupCtx, targetUserID, start, end)
		return err
	})
	group.Go(func() error {
		var err error
		sessions, err = a.fetchSessionsInRange(groupCtx, targetUserID, start, end)
		return err
	})
	if err := group.Wait(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load calendar data")
		return
	}

	// Messages depend on the fetched session-id set, so this read is
	// sequenced after the fan-out.
	messagesBySession, err := a.fetchMessagesForSessions(c.Request.Context(), sessions)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}

	calendarData := buildCalendarData(moods, journals, events, sessions, messagesBySession)
	stats := monthSummary(moods, len(journals), len(events), len(sessions))

	c.JSON(http.StatusOK, gin.H{
		"calendarData": calendarData,
		"stats":        stats,
	})
}

func (a *App) fetchMoodsInRange(ctx context.Context, userID string, start, end time.Time) ([]moodRecord, error) {
	rows, err := a.db.Query(
		ctx,
		`SELECT id, date, emotion, intensity, symbol, notes
		 FROM "MoodEntry"
		 WHERE "userId" = $1 AND date >= $2 AND date < $3
		 ORDER BY date ASC`,
		userID,
		start,
		end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []moodRecord
	for rows.Next() {
		record := moodRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.Date,
			&record.Emotion,
			&record.Intensity,
			&record.Symbol,
			&record.Notes,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (a *App) fetchJournalsInRange(ctx context.Context, userID string, start, end time.Time) ([]journalRecord, error) {
	rows, err := a.db.Query(
		ctx,
		`SELECT id, title, content, mood, tags, date
		 FROM "JournalEntry"
		 WHERE "userId" = $1 AND date >= $2 AND date < $3
		 ORDER BY date ASC`,
		userID,
		start,
		end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []journalRecord
	for rows.Next() {
		record := journalRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.Title,
			&record.Content,
			&record.Mood,
			&record.Tags,
			&record.Date,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (a *App) fetchEventsInRange(ctx context.Context, userID string, start, end time.Time) ([]eventRecord, error) {
	rows, err := a.db.Query(
		ctx,
		`SELECT id, date, title, "locationLabel", "locationLat", "locationLng", emotion, intensity, notes
		 FROM "CalendarEvent"
		 WHERE "userId" = $1 AND date >= $2 AND date < $3
		 ORDER BY date ASC`,
		userID,
		start,
		end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventRecord
	for rows.Next() {
		record := eventRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.Date,
			&record.Title,
			&record.LocationLabel,
			&record.LocationLat,
			&record.LocationLng,
			&record.Emotion,
			&record.Intensity,
			&record.Notes,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (a *App) fetchSessionsInRange(ctx context.Context, userID string, start, end time.Time) ([]sessionRecord, error) {
	rows, err := a.db.Query(
		ctx,
		`SELECT id, "startedAt"
		 FROM "ChatSession"
		 WHERE "userId" = $1 AND "startedAt" >= $2 AND "startedAt" < $3
		 ORDER BY "startedAt" ASC`,
		userID,
		start,
		end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []sessionRecord
	for rows.Next() {
		record := sessionRecord{}
		if err := rows.Scan(&record.ID, &record.StartedAt); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (a *App) fetchMessagesForSessions(ctx context.Context, sessions []sessionRecord) (map[string][]sessionMessage, error) {
	grouped := make(map[string][]sessionMessage, len(sessions))
	if len(sessions) == 0 {
		return grouped, nil
	}
	sessionIDs := make([]string, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.ID)
	}

	rows, err := a.db.Query(
		ctx,
		`SELECT "sessionId", emotion, "createdAt"
		 FROM "ChatMessage"
		 WHERE "sessionId" = ANY($1)
		 ORDER BY "createdAt" ASC`,
		sessionIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sessionID string
		message := sessionMessage{}
		if err := rows.Scan(&sessionID, &message.Emotion, &message.CreatedAt); err != nil {
			return nil, err
		}
		grouped[sessionID] = append(grouped[sessionID], message)
	}
	return grouped, rows.Err()
}

func (a *App) upsertMood(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload moodUpsertRequest
	if !mustJSON(c, &payload) {
		return
	}
	// Intensity binds through a pointer so an explicit 0 counts as present.
	if strings.TrimSpace(payload.Date) == "" || strings.TrimSpace(payload.Emotion) == "" || payload.Intensity == nil {
		writeError(c, http.StatusBadRequest, "date, emotion and intensity are required")
		return
	}

	parsed, err := parseDateOrTimestamp(payload.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be an ISO-8601 timestamp or YYYY-MM-DD")
		return
	}
	day := startOfUTCDay(parsed)

	emotion := normalizeEmotion(payload.Emotion)
	symbol := strings.TrimSpace(payload.Symbol)
	if symbol == "" {
		symbol = symbolForEmotion(emotion)
	}

	mood := moodRecord{}
	err = a.db.QueryRow(
		c.Request.Context(),
		`INSERT INTO "MoodEntry" (id, "userId", date, emotion, intensity, symbol, notes, "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT ("userId", date) DO UPDATE SET
			emotion = EXCLUDED.emotion,
			intensity = EXCLUDED.intensity,
			symbol = EXCLUDED.symbol,
			notes = EXCLUDED.notes,
			"updatedAt" = NOW()
		 RETURNING id, date, emotion, intensity, symbol, notes`,
		uuid.NewString(),
		user.ID,
		day,
		emotion,
		*payload.Intensity,
		symbol,
		payload.Notes,
	).Scan(&mood.ID, &mood.Date, &mood.Emotion, &mood.Intensity, &mood.Symbol, &mood.Notes)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to save mood")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"mood": gin.H{
			"id":        mood.ID,
			"date":      utcDayKey(mood.Date),
			"emotion":   mood.Emotion,
			"intensity": mood.Intensity,
			"symbol":    mood.Symbol,
			"notes":     mood.Notes,
		},
	})
}

func (a *App) deleteMood(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rawDate := strings.TrimSpace(c.Query("date"))
	if rawDate == "" {
		writeError(c, http.StatusBadRequest, "date query parameter is required")
		return
	}
	parsed, err := parseDateOrTimestamp(rawDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be an ISO-8601 timestamp or YYYY-MM-DD")
		return
	}
	dayStart := startOfUTCDay(parsed)

	// Deleting a day with no record still succeeds.
	if _, err := a.db.Exec(
		c.Request.Context(),
		`DELETE FROM "MoodEntry"
		 WHERE "userId" = $1 AND date >= $2 AND date < $3`,
		user.ID,
		dayStart,
		dayStart.Add(24*time.Hour),
	); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete mood")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
