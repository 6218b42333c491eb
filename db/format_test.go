package db

import (
	"bytes"
	"testing"
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

func TestChildTablesRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:        calendar.TypeEvent,
		UID:         "FULL",
		Summary:     "board meeting",
		Description: "quarterly review",
		Location:    "room 5",
		Categories:  []string{"work", "meetings"},
		Resources:   []string{"projector", "whiteboard"},
		Comments:    []string{"first", "second"},
		Contacts:    []string{"ops@example.org"},
		Color:       "#ff0000",
		URL:         "https://example.org/meeting",
		RelatedTo:   "PARENT-UID",
		Priority:    5,
		Secrecy:     calendar.SecrecyPrivate,
		Status:      calendar.StatusConfirmed,
		DtStart:     calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		DtEnd:       calendar.Zoned(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)),
		Organizer:   calendar.Person{Name: "Boss", Email: "boss@example.org"},
		Attendees: []calendar.Attendee{
			{Person: calendar.Person{Name: "Alice", Email: "alice@example.org"},
				Role: calendar.RoleReqParticipant, Status: calendar.PartStatAccepted, RSVP: true},
			{Person: calendar.Person{Name: "Bob", Email: "bob@example.org"},
				Role: calendar.RoleOptParticipant, DelegatedTo: "carol@example.org"},
			{Person: calendar.Person{Name: "No Mail"}},
		},
		Alarms: []*calendar.Alarm{
			{Action: calendar.AlarmDisplay, Enabled: true, HasStartOffset: true,
				StartOffsetSecs: -900, Description: "meeting soon", Repeat: 2, SnoozeSecs: 300,
				CustomProperties: map[string]string{"X-LOCATION-RADIUS": "50"}},
			{Action: calendar.AlarmAudio, Enabled: true,
				Time:       calendar.Zoned(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)),
				Attachment: "/usr/share/sounds/bell.ogg"},
		},
		Attachments: []calendar.Attachment{
			{Data: []byte{0x1, 0x2, 0x3}, MimeType: "application/octet-stream", Label: "blob", ShowInline: true},
			{URI: "https://example.org/agenda.pdf", MimeType: "application/pdf", Local: false},
		},
	}
	event.SetCustomProperty("X-CUSTOM", "value", "PARAM=1")
	storeOne(t, s, "NB1", event)

	loaded := loadOne(t, s, "FULL")

	if loaded.Organizer.Email != "boss@example.org" {
		t.Fatalf("organizer lost: %+v", loaded.Organizer)
	}
	// The organizer is absorbed into the attendee list; the mail-less
	// attendee is dropped.
	emails := map[string]bool{}
	for _, att := range loaded.Attendees {
		emails[att.Email] = true
	}
	if !emails["boss@example.org"] || !emails["alice@example.org"] || !emails["bob@example.org"] {
		t.Fatalf("attendees: got %v", emails)
	}
	if len(loaded.Attendees) != 3 {
		t.Fatalf("attendee count: got %d, want 3", len(loaded.Attendees))
	}
	for _, att := range loaded.Attendees {
		if att.Email == "bob@example.org" && att.DelegatedTo != "carol@example.org" {
			t.Fatalf("delegation lost: %+v", att)
		}
	}

	if len(loaded.Alarms) != 2 {
		t.Fatalf("alarm count: got %d", len(loaded.Alarms))
	}
	var display, audio *calendar.Alarm
	for _, a := range loaded.Alarms {
		switch a.Action {
		case calendar.AlarmDisplay:
			display = a
		case calendar.AlarmAudio:
			audio = a
		}
	}
	if display == nil || !display.HasStartOffset || display.StartOffsetSecs != -900 {
		t.Fatalf("display alarm: %+v", display)
	}
	if display.Repeat != 2 || display.SnoozeSecs != 300 {
		t.Fatalf("alarm repetition: %+v", display)
	}
	if display.CustomProperties["X-LOCATION-RADIUS"] != "50" {
		t.Fatalf("alarm custom properties: %v", display.CustomProperties)
	}
	if audio == nil || !audio.HasTime() || audio.Attachment == "" {
		t.Fatalf("audio alarm: %+v", audio)
	}

	if len(loaded.Attachments) != 2 {
		t.Fatalf("attachment count: got %d", len(loaded.Attachments))
	}
	var binary, uri *calendar.Attachment
	for i := range loaded.Attachments {
		if loaded.Attachments[i].IsBinary() {
			binary = &loaded.Attachments[i]
		} else {
			uri = &loaded.Attachments[i]
		}
	}
	if binary == nil || !bytes.Equal(binary.Data, []byte{0x1, 0x2, 0x3}) || !binary.ShowInline {
		t.Fatalf("binary attachment: %+v", binary)
	}
	if uri == nil || uri.URI != "https://example.org/agenda.pdf" {
		t.Fatalf("uri attachment: %+v", uri)
	}

	if prop, ok := loaded.CustomProperties["X-CUSTOM"]; !ok || prop.Value != "value" || prop.Parameters != "PARAM=1" {
		t.Fatalf("custom properties: %v", loaded.CustomProperties)
	}

	if loaded.Secrecy != calendar.SecrecyPrivate || loaded.Status != calendar.StatusConfirmed {
		t.Fatalf("classification/status lost")
	}
	if loaded.Color != "#ff0000" {
		t.Fatalf("color lost: %q", loaded.Color)
	}
	if len(loaded.Categories) != 2 || loaded.Categories[0] != "work" {
		t.Fatalf("categories: %v", loaded.Categories)
	}
	if loaded.RelatedTo != "PARENT-UID" || loaded.URL != "https://example.org/meeting" {
		t.Fatalf("relations lost")
	}
}

func TestRdatesRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "RD",
		DtStart: calendar.Zoned(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)),
	}
	event.Recurrence.AddRDate(2024, time.June, 3)
	event.Recurrence.AddExDate(2024, time.June, 10)
	event.Recurrence.RDateTimes = append(event.Recurrence.RDateTimes,
		calendar.Zoned(time.Date(2024, 6, 17, 9, 0, 0, 0, time.UTC)))
	event.Recurrence.ExDateTimes = append(event.Recurrence.ExDateTimes,
		calendar.Zoned(time.Date(2024, 6, 24, 9, 0, 0, 0, time.UTC)))
	storeOne(t, s, "NB1", event)

	loaded := loadOne(t, s, "RD")
	r := &loaded.Recurrence
	if len(r.RDates) != 1 || r.RDates[0].Day() != 3 {
		t.Fatalf("rdates: %v", r.RDates)
	}
	if len(r.ExDates) != 1 || r.ExDates[0].Day() != 10 {
		t.Fatalf("exdates: %v", r.ExDates)
	}
	if len(r.RDateTimes) != 1 || !r.RDateTimes[0].Time.Equal(time.Date(2024, 6, 17, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("rdatetimes: %v", r.RDateTimes)
	}
	if len(r.ExDateTimes) != 1 {
		t.Fatalf("exdatetimes: %v", r.ExDateTimes)
	}
}

func TestTodoCompletionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	todo := &calendar.Incidence{
		Type:            calendar.TypeTodo,
		UID:             "T1",
		Summary:         "ship it",
		HasDueDate:      true,
		DtDue:           calendar.Zoned(time.Date(2024, 5, 10, 17, 0, 0, 0, time.UTC)),
		PercentComplete: 100,
		Status:          calendar.StatusCompleted,
	}
	storeOne(t, s, "NB1", todo)

	loaded := loadOne(t, s, "T1")
	if !loaded.HasDueDate || !loaded.DtDue.IsValid() {
		t.Fatalf("due date lost: %+v", loaded)
	}
	if loaded.PercentComplete != 100 {
		t.Fatalf("percent: got %d", loaded.PercentComplete)
	}
	// A completed todo without a completion date gets one on save.
	if !loaded.Completed.IsValid() {
		t.Fatalf("completion date must be set by the engine")
	}
}

func TestExRuleRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "EX",
		DtStart: calendar.Zoned(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)),
	}
	event.Recurrence.RRules = append(event.Recurrence.RRules, &calendar.RecurrenceRule{
		Frequency: calendar.FreqDaily,
		Until:     calendar.Zoned(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		Interval:  1,
		WeekStart: 1,
	})
	event.Recurrence.ExRules = append(event.Recurrence.ExRules, &calendar.RecurrenceRule{
		Frequency: calendar.FreqWeekly,
		Count:     4,
		Interval:  2,
		ByDays:    []calendar.WeekDayPos{{Day: 5, Pos: -1}},
		ByMonths:  []int{5, 6},
	})
	storeOne(t, s, "NB1", event)

	loaded := loadOne(t, s, "EX")
	if len(loaded.Recurrence.RRules) != 1 || len(loaded.Recurrence.ExRules) != 1 {
		t.Fatalf("rule counts: %d/%d", len(loaded.Recurrence.RRules), len(loaded.Recurrence.ExRules))
	}
	rrule := loaded.Recurrence.RRules[0]
	if !rrule.Until.IsValid() || rrule.Count != 0 {
		t.Fatalf("until-bound rule: %+v", rrule)
	}
	exrule := loaded.Recurrence.ExRules[0]
	if exrule.Interval != 2 || exrule.Count != 4 {
		t.Fatalf("exrule: %+v", exrule)
	}
	if len(exrule.ByDays) != 1 || exrule.ByDays[0].Day != 5 || exrule.ByDays[0].Pos != -1 {
		t.Fatalf("exrule byDays: %v", exrule.ByDays)
	}
	if len(exrule.ByMonths) != 2 {
		t.Fatalf("exrule byMonths: %v", exrule.ByMonths)
	}
}

func TestInfiniteRuleReadsAsForever(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "INF",
		DtStart: calendar.Zoned(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)),
	}
	event.Recurrence.RRules = append(event.Recurrence.RRules, &calendar.RecurrenceRule{
		Frequency: calendar.FreqDaily,
		Interval:  1,
	})
	storeOne(t, s, "NB1", event)

	loaded := loadOne(t, s, "INF")
	rule := loaded.Recurrence.RRules[0]
	if rule.Count != -1 {
		t.Fatalf("a rule with no count and no until reads back as forever (-1), got %d", rule.Count)
	}
}
