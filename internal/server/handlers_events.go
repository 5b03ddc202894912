package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type eventCreateRequest struct {
	Date          string   `json:"date"`
	Title         string   `json:"title"`
	LocationLabel *string  `json:"locationLabel"`
	LocationLat   *float64 `json:"locationLat"`
	LocationLng   *float64 `json:"locationLng"`
	Emotion       *string  `json:"emotion"`
	Intensity     *int     `json:"intensity"`
	Notes         *string  `json:"notes"`
}

type eventUpdateRequest struct {
	ID            string   `json:"id"`
	Date          *string  `json:"date"`
	Title         *string  `json:"title"`
	LocationLabel *string  `json:"locationLabel"`
	LocationLat   *float64 `json:"locationLat"`
	LocationLng   *float64 `json:"locationLng"`
	Emotion       *string  `json:"emotion"`
	Intensity     *int     `json:"intensity"`
	Notes         *string  `json:"notes"`
}

func eventJSON(event eventRecord) gin.H {
	var fruit *string
	if event.Emotion != nil {
		symbol := symbolForEmotion(*event.Emotion)
		fruit = &symbol
	}
	return gin.H{
		"id":            event.ID,
		"date":          event.Date.UTC(),
		"title":         event.Title,
		"locationLabel": event.LocationLabel,
		"locationLat":   event.LocationLat,
		"locationLng":   event.LocationLng,
		"emotion":       event.Emotion,
		"intensity":     event.Intensity,
		"notes":         event.Notes,
		"fruit":         fruit,
	}
}

func (a *App) createCalendarEvent(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload eventCreateRequest
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.Date) == "" || strings.TrimSpace(payload.Title) == "" {
		writeError(c, http.StatusBadRequest, "date and title are required")
		return
	}
	date, err := parseDateOrTimestamp(payload.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be an ISO-8601 timestamp or YYYY-MM-DD")
		return
	}

	eventID := uuid.NewString()
	if _, err := a.db.Exec(
		c.Request.Context(),
		`INSERT INTO "CalendarEvent" (
			id, "userId", date, title, "locationLabel", "locationLat", "locationLng",
			emotion, intensity, notes, "createdAt"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		eventID,
		user.ID,
		date,
		strings.TrimSpace(payload.Title),
		payload.LocationLabel,
		payload.LocationLat,
		payload.LocationLng,
		payload.Emotion,
		payload.Intensity,
		payload.Notes,
	); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": eventID})
}

func (a *App) getCalendarEvents(c *gin.Context) {
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

	if eventID := strings.TrimSpace(c.Query("id")); eventID != "" {
		event, err := a.loadEventForUser(c, targetUserID, eventID)
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, eventJSON(event))
		return
	}

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT id, date, title, "locationLabel", "locationLat", "locationLng", emotion, intensity, notes
		 FROM "CalendarEvent"
		 WHERE "userId" = $1
		 ORDER BY date ASC`,
		targetUserID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load events")
		return
	}
	defer rows.Close()

	items := make([]gin.H, 0, 16)
	for rows.Next() {
		event := eventRecord{}
		if err := rows.Scan(
			&event.ID,
			&event.Date,
			&event.Title,
			&event.LocationLabel,
			&event.LocationLat,
			&event.LocationLng,
			&event.Emotion,
			&event.Intensity,
			&event.Notes,
		); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to parse events")
			return
		}
		items = append(items, eventJSON(event))
	}

	c.JSON(http.StatusOK, items)
}

// loadEventForUser fetches one event scoped by owner. A row owned by
// someone else scans as no-rows and surfaces as not found, so existence is
// never revealed across users. Writes the error response itself.
func (a *App) loadEventForUser(c *gin.Context, userID, eventID string) (eventRecord, error) {
	event := eventRecord{}
	err := a.db.QueryRow(
		c.Request.Context(),
		`SELECT id, date, title, "locationLabel", "locationLat", "locationLng", emotion, intensity, notes
		 FROM "CalendarEvent"
		 WHERE id = $1 AND "userId" = $2`,
		eventID,
		userID,
	).Scan(
		&event.ID,
		&event.Date,
		&event.Title,
		&event.LocationLabel,
		&event.LocationLat,
		&event.LocationLng,
		&event.Emotion,
		&event.Intensity,
		&event.Notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusNotFound, "Event not found")
		return eventRecord{}, err
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load event")
		return eventRecord{}, err
	}
	return event, nil
}

func (a *App) updateCalendarEvent(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload eventUpdateRequest
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.ID) == "" {
		writeError(c, http.StatusBadRequest, "id is required")
		return
	}

	event, err := a.loadEventForUser(c, user.ID, strings.TrimSpace(payload.ID))
	if err != nil {
		return
	}

	// Fields absent from the patch keep their stored values.
	if payload.Date != nil {
		parsed, err := parseDateOrTimestamp(*payload.Date)
		if err != nil {
			writeError(c, http.StatusBadRequest, "date must be an ISO-8601 timestamp or YYYY-MM-DD")
			return
		}
		event.Date = parsed
	}
	if payload.Title != nil {
		event.Title = strings.TrimSpace(*payload.Title)
	}
	if event.Title == "" {
		writeError(c, http.StatusBadRequest, "title must not be empty")
		return
	}
	if payload.LocationLabel != nil {
		event.LocationLabel = payload.LocationLabel
	}
	if payload.LocationLat != nil {
		event.LocationLat = payload.LocationLat
	}
	if payload.LocationLng != nil {
		event.LocationLng = payload.LocationLng
	}
	if payload.Emotion != nil {
		event.Emotion = payload.Emotion
	}
	if payload.Intensity != nil {
		event.Intensity = payload.Intensity
	}
	if payload.Notes != nil {
		event.Notes = payload.Notes
	}

	if _, err := a.db.Exec(
		c.Request.Context(),
		`UPDATE "CalendarEvent" SET
			date = $1,
			title = $2,
			"locationLabel" = $3,
			"locationLat" = $4,
			"locationLng" = $5,
			emotion = $6,
			intensity = $7,
			notes = $8
		 WHERE id = $9 AND "userId" = $10`,
		event.Date,
		event.Title,
		event.LocationLabel,
		event.LocationLat,
		event.LocationLng,
		event.Emotion,
		event.Intensity,
		event.Notes,
		event.ID,
		user.ID,
	); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update event")
		return
	}

	c.JSON(http.StatusOK, eventJSON(event))
}

func (a *App) deleteCalendarEvent(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	eventID := strings.TrimSpace(c.Query("id"))
	if eventID == "" {
		writeError(c, http.StatusBadRequest, "id query parameter is required")
		return
	}

	tag, err := a.db.Exec(
		c.Request.Context(),
		`DELETE FROM "CalendarEvent" WHERE id = $1 AND "userId" = $2`,
		eventID,
		user.ID,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete event")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Event not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
