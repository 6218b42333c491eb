package calendar

import (
	"github.com/google/uuid"
)

// IncidenceType tags the concrete kind of a calendar incidence. The tag is
// also the value persisted in the Type column.
type IncidenceType string

const (
	TypeEvent    IncidenceType = "Event"
	TypeTodo     IncidenceType = "Todo"
	TypeJournal  IncidenceType = "Journal"
	TypeFreeBusy IncidenceType = "FreeBusy"
)

// Secrecy of an incidence.
type Secrecy int

const (
	SecrecyPublic Secrecy = iota
	SecrecyPrivate
	SecrecyConfidential
)

// Status of an incidence.
type Status int

const (
	StatusNone Status = iota
	StatusTentative
	StatusConfirmed
	StatusCompleted
	StatusNeedsAction
	StatusCanceled
	StatusInProcess
	StatusDraft
	StatusFinal
)

// Transparency of an event with respect to free/busy searches.
type Transparency int

const (
	Opaque Transparency = iota
	Transparent
)

// CustomProperty is a non-standard property value with its optional
// serialized parameters.
type CustomProperty struct {
	Value      string
	Parameters string
}

// Incidence is any calendar object: an event, a to-do, a journal entry or
// a free/busy block, modelled as a tagged union over a shared set of
// common fields. Type-specific fields are only meaningful for the matching
// type and are ignored otherwise.
type Incidence struct {
	Type IncidenceType

	// Identity. The pair (UID, RecurrenceID) identifies an incidence;
	// a valid RecurrenceID marks an override of one occurrence of a
	// recurring series.
	UID          string
	RecurrenceID DateTime

	Summary     string
	Description string
	Location    string
	Categories  []string
	Comments    []string
	Contacts    []string
	Resources   []string
	Color       string
	URL         string
	RelatedTo   string

	Secrecy  Secrecy
	Status   Status
	Priority int
	Revision int

	DtStart      DateTime
	AllDay       bool
	DurationSecs int

	// Events only.
	DtEnd        DateTime
	Transparency Transparency

	// Todos only.
	DtDue           DateTime
	HasDueDate      bool
	PercentComplete int
	Completed       DateTime

	HasGeo    bool
	Latitude  float64
	Longitude float64

	Organizer        Person
	Attendees        []Attendee
	Alarms           []*Alarm
	Attachments      []Attachment
	CustomProperties map[string]CustomProperty

	Recurrence Recurrence

	Created      DateTime
	LastModified DateTime
	LocalOnly    bool
}

// NewIncidence creates an incidence of the given type with a fresh UID.
func NewIncidence(typ IncidenceType) *Incidence {
	return &Incidence{Type: typ, UID: uuid.NewString()}
}

// HasRecurrenceID reports whether this incidence is an override of one
// occurrence of its series.
func (i *Incidence) HasRecurrenceID() bool {
	return i.RecurrenceID.IsValid()
}

// Recurs reports whether the incidence carries any recurrence information.
func (i *Incidence) Recurs() bool {
	r := &i.Recurrence
	return len(r.RRules) > 0 || len(r.RDates) > 0 || len(r.RDateTimes) > 0
}

// IsCompleted reports whether a todo is done, either through its status,
// its percentage or an explicit completion date.
func (i *Incidence) IsCompleted() bool {
	if i.Type != TypeTodo {
		return false
	}
	return i.Status == StatusCompleted || i.PercentComplete == 100 || i.Completed.IsValid()
}

// EndDateTime is the effective end anchor of the incidence: dtEnd for
// events, the due date for todos, dtStart elsewhere.
func (i *Incidence) EndDateTime() DateTime {
	switch i.Type {
	case TypeEvent:
		if i.DtEnd.IsValid() {
			return i.DtEnd
		}
		return i.DtStart
	case TypeTodo:
		if i.HasDueDate {
			return i.DtDue
		}
		return DateTime{}
	default:
		return i.DtStart
	}
}

// SetCustomProperty records a non-standard property on the incidence.
func (i *Incidence) SetCustomProperty(name, value, parameters string) {
	if i.CustomProperties == nil {
		i.CustomProperties = make(map[string]CustomProperty)
	}
	i.CustomProperties[name] = CustomProperty{Value: value, Parameters: parameters}
}
