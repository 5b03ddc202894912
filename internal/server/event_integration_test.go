package server

import (
	"net/http"
	"testing"
	"time"
)

func TestEventLifecycle(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	created := performRequest(t, router, http.MethodPost, "/api/v1/calendar/event", token, map[string]any{
		"date":    "2024-03-14T18:30:00Z",
		"title":   "therapy check-in",
		"emotion": "calm",
		"notes":   "bring the sleep log",
	})
	if created.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", created.Code, created.Body.String())
	}
	eventID, _ := decodeJSONMap(t, created)["id"].(string)
	if eventID == "" {
		t.Fatalf("expected created event id")
	}

	fetched := performRequest(t, router, http.MethodGet, "/api/v1/calendar/event?id="+eventID, token, nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", fetched.Code)
	}
	body := decodeJSONMap(t, fetched)
	if body["title"] != "therapy check-in" || body["emotion"] != "calm" {
		t.Fatalf("unexpected event payload: %v", body)
	}
	if body["fruit"] != "🥝" {
		t.Fatalf("expected kiwi glyph for calm, got %v", body["fruit"])
	}

	updated := performRequest(t, router, http.MethodPut, "/api/v1/calendar/event", token, map[string]any{
		"id":      eventID,
		"title":   "therapy check-in (moved)",
		"emotion": "anxious",
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", updated.Code, updated.Body.String())
	}
	patched := decodeJSONMap(t, updated)
	if patched["title"] != "therapy check-in (moved)" {
		t.Fatalf("unexpected patched title: %v", patched["title"])
	}
	if patched["fruit"] != "🍋" {
		t.Fatalf("expected glyph re-derived from patched emotion, got %v", patched["fruit"])
	}
	if patched["notes"] != "bring the sleep log" {
		t.Fatalf("expected untouched fields preserved, got %v", patched["notes"])
	}

	deleted := performRequest(t, router, http.MethodDelete, "/api/v1/calendar/event?id="+eventID, token, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleted.Code)
	}

	gone := performRequest(t, router, http.MethodGet, "/api/v1/calendar/event?id="+eventID, token, nil)
	if gone.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", gone.Code)
	}
	repeatDelete := performRequest(t, router, http.MethodDelete, "/api/v1/calendar/event?id="+eventID, token, nil)
	if repeatDelete.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", repeatDelete.Code)
	}
}

func TestEventValidation(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	missingTitle := performRequest(t, router, http.MethodPost, "/api/v1/calendar/event", token, map[string]any{
		"date": "2024-03-14",
	})
	if missingTitle.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without title, got %d", missingTitle.Code)
	}

	badDate := performRequest(t, router, http.MethodPost, "/api/v1/calendar/event", token, map[string]any{
		"date":  "soon",
		"title": "walk",
	})
	if badDate.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", badDate.Code)
	}

	eventID := seedCalendarEvent(t, userID, "walk", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))
	clearTitle := performRequest(t, router, http.MethodPut, "/api/v1/calendar/event", token, map[string]any{
		"id":    eventID,
		"title": "   ",
	})
	if clearTitle.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when clearing title, got %d", clearTitle.Code)
	}
}

func TestEventCrossUserAccessCollapsesToNotFound(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	ownerID := seedUser(t, "")
	eventID := seedCalendarEvent(t, ownerID, "private dinner", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))

	intruderToken := signToken(t, seedUser(t, ""), nil)

	read := performRequest(t, router, http.MethodGet, "/api/v1/calendar/event?id="+eventID, intruderToken, nil)
	if read.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-user read, got %d", read.Code)
	}
	update := performRequest(t, router, http.MethodPut, "/api/v1/calendar/event", intruderToken, map[string]any{
		"id":    eventID,
		"title": "hijacked",
	})
	if update.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-user update, got %d", update.Code)
	}
	del := performRequest(t, router, http.MethodDelete, "/api/v1/calendar/event?id="+eventID, intruderToken, nil)
	if del.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-user delete, got %d", del.Code)
	}
}

func TestEventListOrderedByDate(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	seedCalendarEvent(t, userID, "later", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	seedCalendarEvent(t, userID, "earlier", time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))

	rec := performRequest(t, router, http.MethodGet, "/api/v1/calendar/event", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	items := decodeJSONList(t, rec)
	if len(items) != 2 {
		t.Fatalf("expected two events, got %d", len(items))
	}
	first, _ := items[0].(map[string]any)
	second, _ := items[1].(map[string]any)
	if first["title"] != "earlier" || second["title"] != "later" {
		t.Fatalf("expected ascending date order, got %v then %v", first["title"], second["title"])
	}
}
