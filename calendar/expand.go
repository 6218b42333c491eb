package calendar

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

const defaultMaxOccurrencesPerIncidence = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences are
	// converted. If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerIncidence caps runaway rules. If zero,
	// defaultMaxOccurrencesPerIncidence is used.
	MaxOccurrencesPerIncidence int
}

// Occurrence is one concrete instance of an incidence within a range.
type Occurrence struct {
	UID     string
	Summary string
	AllDay  bool
	Start   time.Time
	End     time.Time
}

// ExpandResult wraps the expanded occurrences and the UIDs whose rules
// hit the occurrence cap.
type ExpandResult struct {
	Occurrences []Occurrence
	Truncated   []string
}

// ExpandOccurrences expands a set of incidences (base incidences plus
// recurrence-id overrides sharing their UID) into concrete occurrences
// within the configured window. Storage range queries return recurring
// incidences unexpanded; this is the in-memory half of that contract.
func ExpandOccurrences(incidences []*Incidence, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerIncidence <= 0 {
		cfg.MaxOccurrencesPerIncidence = defaultMaxOccurrencesPerIncidence
	}

	base := make(map[string][]*Incidence)
	overrides := make(map[string][]*Incidence)
	for _, inc := range incidences {
		if inc.HasRecurrenceID() {
			overrides[inc.UID] = append(overrides[inc.UID], inc)
		} else {
			base[inc.UID] = append(base[inc.UID], inc)
		}
	}

	for uid, bases := range base {
		ov := overrides[uid]
		for _, inc := range bases {
			occ, hitCap := expandIncidence(inc, ov, cfg)
			result.Occurrences = append(result.Occurrences, occ...)
			if hitCap {
				result.Truncated = append(result.Truncated, uid)
			}
		}
	}

	return result, nil
}

func expandIncidence(inc *Incidence, overrides []*Incidence, cfg ExpandConfig) ([]Occurrence, bool) {
	if !inc.Recurs() {
		return expandSingle(inc, overrides, cfg), false
	}
	return expandRecurring(inc, overrides, cfg)
}

func expandSingle(inc *Incidence, overrides []*Incidence, cfg ExpandConfig) []Occurrence {
	start, end := occurrenceTimes(inc, cfg.DisplayLocation)
	if end.Before(cfg.RangeStart) || start.After(cfg.RangeEnd) {
		return nil
	}
	if o := findOverride(overrides, inc.DtStart); o != nil {
		inc = o
		start, end = occurrenceTimes(o, cfg.DisplayLocation)
	}
	return []Occurrence{makeOccurrence(inc, start, end, cfg.DisplayLocation)}
}

func expandRecurring(inc *Incidence, overrides []*Incidence, cfg ExpandConfig) ([]Occurrence, bool) {
	loc := cfg.DisplayLocation
	dtstart := inc.DtStart.InLocation(loc)

	var set rrule.Set
	set.DTStart(dtstart)
	for _, rule := range inc.Recurrence.RRules {
		opt, err := rule.ROption(dtstart)
		if err != nil {
			continue
		}
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			continue
		}
		set.RRule(r)
	}
	for _, rd := range inc.Recurrence.RDates {
		set.RDate(time.Date(rd.Year(), rd.Month(), rd.Day(),
			dtstart.Hour(), dtstart.Minute(), dtstart.Second(), 0, loc))
	}
	for _, rdt := range inc.Recurrence.RDateTimes {
		set.RDate(rdt.InLocation(loc))
	}
	for _, ex := range inc.Recurrence.ExDates {
		set.ExDate(time.Date(ex.Year(), ex.Month(), ex.Day(),
			dtstart.Hour(), dtstart.Minute(), dtstart.Second(), 0, loc))
	}
	for _, exdt := range inc.Recurrence.ExDateTimes {
		set.ExDate(exdt.InLocation(loc))
	}

	times := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerIncidence {
		times = times[:cfg.MaxOccurrencesPerIncidence]
		hitCap = true
	}

	duration := inc.occurrenceDuration()
	out := make([]Occurrence, 0, len(times))
	for _, start := range times {
		occInc := inc
		end := start.Add(duration)
		if inc.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
			end = start.Add(24 * time.Hour)
		}
		if o := findOverride(overrides, Zoned(start)); o != nil {
			occInc = o
			start, end = occurrenceTimes(o, loc)
		}
		out = append(out, makeOccurrence(occInc, start, end, loc))
	}
	return out, hitCap
}

func findOverride(overrides []*Incidence, start DateTime) *Incidence {
	for _, o := range overrides {
		if o.RecurrenceID.IsValid() && o.RecurrenceID.comparable().Equal(start.comparable()) {
			return o
		}
	}
	return nil
}

func occurrenceTimes(inc *Incidence, loc *time.Location) (time.Time, time.Time) {
	start := inc.DtStart.InLocation(loc)
	end := start.Add(inc.occurrenceDuration())
	if e := inc.EndDateTime(); e.IsValid() {
		end = e.InLocation(loc)
	}
	if inc.AllDay && !end.After(start) {
		end = start.Add(24 * time.Hour)
	}
	return start, end
}

func (i *Incidence) occurrenceDuration() time.Duration {
	if e := i.EndDateTime(); e.IsValid() && i.DtStart.IsValid() {
		if d := e.comparable().Sub(i.DtStart.comparable()); d > 0 {
			return d
		}
	}
	if i.DurationSecs > 0 {
		return time.Duration(i.DurationSecs) * time.Second
	}
	return 0
}

func makeOccurrence(inc *Incidence, start, end time.Time, loc *time.Location) Occurrence {
	return Occurrence{
		UID:     inc.UID,
		Summary: inc.Summary,
		AllDay:  inc.AllDay,
		Start:   start.In(loc),
		End:     end.In(loc),
	}
}

// InLocation renders the date-time as a concrete instant in the given
// location. Clock times keep their wall-clock reading.
func (dt DateTime) InLocation(loc *time.Location) time.Time {
	if !dt.IsValid() {
		return time.Time{}
	}
	if dt.Kind == TimeClock {
		y, m, d := dt.Time.Date()
		return time.Date(y, m, d, dt.Time.Hour(), dt.Time.Minute(), dt.Time.Second(), 0, loc)
	}
	return dt.Time.In(loc)
}

// ROption converts the stored rule into an rrule-go option set anchored
// at dtstart.
func (rule *RecurrenceRule) ROption(dtstart time.Time) (*rrule.ROption, error) {
	opt := &rrule.ROption{Dtstart: dtstart}
	switch rule.Frequency {
	case FreqSecondly:
		opt.Freq = rrule.SECONDLY
	case FreqMinutely:
		opt.Freq = rrule.MINUTELY
	case FreqHourly:
		opt.Freq = rrule.HOURLY
	case FreqDaily:
		opt.Freq = rrule.DAILY
	case FreqWeekly:
		opt.Freq = rrule.WEEKLY
	case FreqMonthly:
		opt.Freq = rrule.MONTHLY
	case FreqYearly:
		opt.Freq = rrule.YEARLY
	default:
		return nil, errors.New("recurrence rule has no frequency")
	}
	if rule.Interval > 1 {
		opt.Interval = rule.Interval
	}
	if rule.Count > 0 {
		opt.Count = rule.Count
	} else if rule.Until.IsValid() {
		opt.Until = rule.Until.InLocation(dtstart.Location())
	}
	for _, wd := range rule.ByDays {
		day := weekdayFor(wd.Day)
		if wd.Pos != 0 {
			day = day.Nth(wd.Pos)
		}
		opt.Byweekday = append(opt.Byweekday, day)
	}
	opt.Bysecond = append([]int(nil), rule.BySeconds...)
	opt.Byminute = append([]int(nil), rule.ByMinutes...)
	opt.Byhour = append([]int(nil), rule.ByHours...)
	opt.Bymonthday = append([]int(nil), rule.ByMonthDays...)
	opt.Byyearday = append([]int(nil), rule.ByYearDays...)
	opt.Byweekno = append([]int(nil), rule.ByWeekNumbers...)
	opt.Bymonth = append([]int(nil), rule.ByMonths...)
	opt.Bysetpos = append([]int(nil), rule.BySetPos...)
	if rule.WeekStart >= 1 && rule.WeekStart <= 7 {
		opt.Wkst = weekdayFor(rule.WeekStart)
	}
	return opt, nil
}

func weekdayFor(day int) rrule.Weekday {
	switch day {
	case 1:
		return rrule.MO
	case 2:
		return rrule.TU
	case 3:
		return rrule.WE
	case 4:
		return rrule.TH
	case 5:
		return rrule.FR
	case 6:
		return rrule.SA
	default:
		return rrule.SU
	}
}
