package server

import (
	"math"
	"strconv"
	"time"
)

const journalPreviewRuneMax = 100

type moodRecord struct {
	ID        string
	Date      time.Time
	Emotion   string
	Intensity int
	Symbol    string
	Notes     *string
}

type journalRecord struct {
	ID      string
	Title   string
	Content string
	Mood    *string
	Tags    []string
	Date    time.Time
}

type eventRecord struct {
	ID            string
	Date          time.Time
	Title         string
	LocationLabel *string
	LocationLat   *float64
	LocationLng   *float64
	Emotion       *string
	Intensity     *int
	Notes         *string
}

type sessionRecord struct {
	ID        string
	StartedAt time.Time
}

type sessionMessage struct {
	Emotion   *string
	CreatedAt time.Time
}

type dayMood struct {
	Emotion   string  `json:"emotion"`
	Intensity int     `json:"intensity"`
	Symbol    string  `json:"symbol"`
	Notes     *string `json:"notes,omitempty"`
}

type dayJournal struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Mood    *string  `json:"mood,omitempty"`
	Tags    []string `json:"tags"`
	Preview string   `json:"preview"`
}

type dayEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	LocationLabel *string   `json:"locationLabel,omitempty"`
	LocationLat   *float64  `json:"locationLat,omitempty"`
	LocationLng   *float64  `json:"locationLng,omitempty"`
	Emotion       *string   `json:"emotion,omitempty"`
	Intensity     *int      `json:"intensity,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type daySession struct {
	ID              string    `json:"id"`
	Duration        string    `json:"duration"`
	MessagesCount   int       `json:"messagesCount"`
	DominantEmotion string    `json:"dominantEmotion"`
	Timestamp       time.Time `json:"timestamp"`
}

// dayBucket is one calendar day's merged view. A bucket exists once any
// record touches its day; fields stay absent until their record type does.
type dayBucket struct {
	Mood         *dayMood     `json:"mood,omitempty"`
	Journals     []dayJournal `json:"journals,omitempty"`
	Events       []dayEvent   `json:"events,omitempty"`
	ChatSessions []daySession `json:"chatSessions,omitempty"`
}

type bestDay struct {
	Date      string `json:"date"`
	Emotion   string `json:"emotion"`
	Intensity int    `json:"intensity"`
}

type monthStats struct {
	DaysTracked         int            `json:"daysTracked"`
	AverageMood         float64        `json:"averageMood"`
	BestDay             *bestDay       `json:"bestDay"`
	EmotionDistribution map[string]int `json:"emotionDistribution"`
	TotalJournals       int            `json:"totalJournals"`
	TotalEvents         int            `json:"totalEvents"`
	TotalChatSessions   int            `json:"totalChatSessions"`
}

// monthRange maps a zero-based month to its UTC window
// [start of first day, start of next month). Out-of-range months roll over
// the year the way time.Date normalizes them.
func monthRange(year, monthZeroBased int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(monthZeroBased+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// buildCalendarData groups the four fetched record sets by UTC day key.
// Slices keep the caller's fetch order; no re-sorting happens here.
func buildCalendarData(
	moods []moodRecord,
	journals []journalRecord,
	events []eventRecord,
	sessions []sessionRecord,
	messagesBySession map[string][]sessionMessage,
) map[string]*dayBucket {
	buckets := make(map[string]*dayBucket)
	bucketFor := func(t time.Time) *dayBucket {
		key := utcDayKey(t)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &dayBucket{}
			buckets[key] = bucket
		}
		return bucket
	}

	for _, mood := range moods {
		bucket := bucketFor(mood.Date)
		bucket.Mood = &dayMood{
			Emotion:   mood.Emotion,
			Intensity: mood.Intensity,
			Symbol:    mood.Symbol,
			Notes:     mood.Notes,
		}
	}

	for _, entry := range journals {
		bucket := bucketFor(entry.Date)
		bucket.Journals = append(bucket.Journals, dayJournal{
			ID:      entry.ID,
			Title:   entry.Title,
			Mood:    entry.Mood,
			Tags:    entry.Tags,
			Preview: journalPreview(entry.Content),
		})
	}

	for _, event := range events {
		bucket := bucketFor(event.Date)
		bucket.Events = append(bucket.Events, dayEvent{
			ID:            event.ID,
			Title:         event.Title,
			LocationLabel: event.LocationLabel,
			LocationLat:   event.LocationLat,
			LocationLng:   event.LocationLng,
			Emotion:       event.Emotion,
			Intensity:     event.Intensity,
			Notes:         event.Notes,
			Timestamp:     event.Date.UTC(),
		})
	}

	for _, session := range sessions {
		messages := messagesBySession[session.ID]
		dominant, minutes := sessionStats(messages)
		bucket := bucketFor(session.StartedAt)
		bucket.ChatSessions = append(bucket.ChatSessions, daySession{
			ID:              session.ID,
			Duration:        formatDurationMinutes(minutes),
			MessagesCount:   len(messages),
			DominantEmotion: dominant,
			Timestamp:       session.StartedAt.UTC(),
		})
	}

	return buckets
}

func journalPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= journalPreviewRuneMax {
		return content
	}
	return string(runes[:journalPreviewRuneMax]) + "..."
}

// sessionStats derives a session's dominant emotion and duration from its
// messages, which must already be ordered ascending by creation time.
// Emotion ties break toward the first label encountered; a session with no
// tagged messages reads as neutral.
func sessionStats(messages []sessionMessage) (string, int) {
	counts := make(map[string]int)
	order := make([]string, 0, 4)
	for _, message := range messages {
		if message.Emotion == nil {
			continue
		}
		emotion := normalizeEmotion(*message.Emotion)
		if emotion == "" {
			continue
		}
		if _, seen := counts[emotion]; !seen {
			order = append(order, emotion)
		}
		counts[emotion]++
	}

	dominant := "neutral"
	best := 0
	for _, emotion := range order {
		if counts[emotion] > best {
			dominant = emotion
			best = counts[emotion]
		}
	}

	minutes := 0
	if len(messages) >= 2 {
		elapsed := messages[len(messages)-1].CreatedAt.Sub(messages[0].CreatedAt)
		minutes = int(math.Round(elapsed.Minutes()))
		if minutes < 0 {
			minutes = 0
		}
	}
	return dominant, minutes
}

func formatDurationMinutes(minutes int) string {
	if minutes < 60 {
		return strconv.Itoa(minutes) + " minutes"
	}
	return strconv.Itoa(minutes/60) + "h " + strconv.Itoa(minutes%60) + "m"
}

// monthSummary computes the month-level statistics over the same fetch the
// bucketing ran on. bestDay ties break toward the earlier record in fetch
// order, i.e. the earlier date.
func monthSummary(moods []moodRecord, journalCount, eventCount, sessionCount int) monthStats {
	stats := monthStats{
		DaysTracked:         len(moods),
		EmotionDistribution: make(map[string]int),
		TotalJournals:       journalCount,
		TotalEvents:         eventCount,
		TotalChatSessions:   sessionCount,
	}

	total := 0
	best := -1
	for _, mood := range moods {
		total += mood.Intensity
		stats.EmotionDistribution[mood.Emotion]++
		if mood.Intensity > best {
			best = mood.Intensity
			stats.BestDay = &bestDay{
				Date:      utcDayKey(mood.Date),
				Emotion:   mood.Emotion,
				Intensity: mood.Intensity,
			}
		}
	}
	if len(moods) > 0 {
		stats.AverageMood = math.Round(float64(total)/float64(len(moods))*10) / 10
	}
	return stats
}
