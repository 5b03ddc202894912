package server

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestCalendarAggregationScenario(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	seedMood(t, userID, day, "calm", 7)
	content := strings.Repeat("z", 250)
	seedJournalEntry(t, userID, "long entry", content, []string{"notes"}, day.Add(10*time.Hour))

	// March is month 2 in the zero-based query contract.
	rec := performRequest(t, router, http.MethodGet, "/api/v1/calendar?year=2024&month=2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)

	calendarData, _ := body["calendarData"].(map[string]any)
	bucket, ok := calendarData["2024-03-05"].(map[string]any)
	if !ok {
		t.Fatalf("expected bucket for 2024-03-05, got %v", calendarData)
	}

	mood, _ := bucket["mood"].(map[string]any)
	if mood["emotion"] != "calm" || mood["intensity"] != float64(7) {
		t.Fatalf("unexpected mood bucket: %v", mood)
	}

	journals, _ := bucket["journals"].([]any)
	if len(journals) != 1 {
		t.Fatalf("expected one journal in bucket, got %v", bucket["journals"])
	}
	preview, _ := journals[0].(map[string]any)["preview"].(string)
	if preview != strings.Repeat("z", 100)+"..." {
		t.Fatalf("unexpected preview: %q", preview)
	}

	if _, present := bucket["events"]; present {
		t.Fatalf("expected events field absent for day with no events")
	}
	if _, present := bucket["chatSessions"]; present {
		t.Fatalf("expected chatSessions field absent for day with no sessions")
	}

	stats, _ := body["stats"].(map[string]any)
	if stats["daysTracked"] != float64(1) {
		t.Fatalf("expected daysTracked 1, got %v", stats["daysTracked"])
	}
	if stats["averageMood"] != float64(7) {
		t.Fatalf("expected averageMood 7, got %v", stats["averageMood"])
	}
	if stats["totalJournals"] != float64(1) {
		t.Fatalf("expected totalJournals 1, got %v", stats["totalJournals"])
	}
}

func TestCalendarAggregatesChatSessions(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	t0 := time.Date(2024, 3, 12, 20, 0, 0, 0, time.UTC)
	sessionID := seedChatSession(t, userID, t0, "CLOSED")
	anxious := "anxious"
	seedChatMessage(t, sessionID, "user", "spiraling a bit tonight", &anxious, t0)
	seedChatMessage(t, sessionID, "assistant", "that sounds hard", nil, t0.Add(5*time.Minute))
	seedChatMessage(t, sessionID, "user", "still tense", &anxious, t0.Add(12*time.Minute))

	rec := performRequest(t, router, http.MethodGet, "/api/v1/calendar?year=2024&month=2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)

	calendarData, _ := body["calendarData"].(map[string]any)
	bucket, _ := calendarData["2024-03-12"].(map[string]any)
	sessions, _ := bucket["chatSessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("expected one chat session in bucket, got %v", bucket)
	}
	session, _ := sessions[0].(map[string]any)
	if session["dominantEmotion"] != "anxious" {
		t.Fatalf("expected dominant anxious, got %v", session["dominantEmotion"])
	}
	if session["duration"] != "12 minutes" {
		t.Fatalf("expected duration \"12 minutes\", got %v", session["duration"])
	}
	if session["messagesCount"] != float64(3) {
		t.Fatalf("expected messagesCount 3, got %v", session["messagesCount"])
	}

	stats, _ := body["stats"].(map[string]any)
	if stats["totalChatSessions"] != float64(1) {
		t.Fatalf("expected totalChatSessions 1, got %v", stats["totalChatSessions"])
	}
}

func TestCalendarScopesToRequestedMonthAndUser(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	inRange := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	outOfRange := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	seedMood(t, userID, inRange, "happy", 8)
	seedMood(t, userID, outOfRange, "sad", 2)

	otherID := seedUser(t, "")
	seedMood(t, otherID, inRange, "angry", 9)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/calendar?year=2024&month=2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeJSONMap(t, rec)
	calendarData, _ := body["calendarData"].(map[string]any)
	if len(calendarData) != 1 {
		t.Fatalf("expected only the in-range day for the caller, got %v", calendarData)
	}
	bucket, _ := calendarData["2024-03-02"].(map[string]any)
	mood, _ := bucket["mood"].(map[string]any)
	if mood["emotion"] != "happy" {
		t.Fatalf("expected caller's own mood, got %v", mood)
	}
}

func TestCalendarMonthValidation(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	userID := seedUser(t, "")
	token := signToken(t, userID, nil)

	badMonth := performRequest(t, router, http.MethodGet, "/api/v1/calendar?year=2024&month=12", token, nil)
	if badMonth.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range zero-based month, got %d", badMonth.Code)
	}
	if detail := responseDetail(t, badMonth); !strings.Contains(detail, "month") {
		t.Fatalf("unexpected error detail: %q", detail)
	}

	badYear := performRequest(t, router, http.MethodGet, "/api/v1/calendar?year=abc&month=2", token, nil)
	if badYear.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric year, got %d", badYear.Code)
	}
}
