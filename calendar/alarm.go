package calendar

// AlarmAction selects what an alarm does when it fires. The numeric
// values are part of the on-disk format.
type AlarmAction int

const (
	AlarmInvalid   AlarmAction = 0
	AlarmDisplay   AlarmAction = 1
	AlarmProcedure AlarmAction = 2
	AlarmEmail     AlarmAction = 3
	AlarmAudio     AlarmAction = 4
)

// Alarm attached to an incidence. The trigger is exactly one of: an
// offset from the start, an offset from the end, or an absolute time.
type Alarm struct {
	Action  AlarmAction
	Enabled bool

	Repeat     int
	SnoozeSecs int

	HasStartOffset  bool
	StartOffsetSecs int
	HasEndOffset    bool
	EndOffsetSecs   int
	Time            DateTime

	// Display: Description is the text shown.
	// Procedure: Attachment is the program, Description its arguments.
	// Email: Summary is the subject, Description the body, Attachment
	// the attachment list and Addresses the recipients.
	// Audio: Attachment is the audio file.
	Description string
	Summary     string
	Attachment  string
	Addresses   []string

	CustomProperties map[string]string
}

// HasTime reports whether the alarm triggers at an absolute time rather
// than relative to the incidence.
func (a *Alarm) HasTime() bool {
	return a.Time.IsValid()
}
