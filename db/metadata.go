package db

import (
	"bytes"
	"database/sql"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
)

// selectTransactionID reads the cross-process modification token. An
// absent row reads as 0.
func selectTransactionID(q querier) (int, error) {
	var id int
	err := q.QueryRow(selectMetadata).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// incrementTransactionID bumps the modification token, creating the
// Metadata row on first use. Returns the new value.
func incrementTransactionID(q querier) (int, error) {
	id, err := selectTransactionID(q)
	if err != nil {
		return 0, err
	}
	id++
	res, err := q.Exec(updateMetadata, id)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := q.Exec(insertMetadata, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// saveTimezones serializes the session time zone as an iCalendar
// VTIMEZONE into the Timezones singleton row.
func saveTimezones(q querier, loc *time.Location) error {
	if loc == nil {
		return nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//mkcal//storage//EN")

	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, loc.String())

	// A VTIMEZONE needs at least one observance; publish the current
	// standard offset.
	now := time.Now().In(loc)
	_, offset := now.Zone()
	std := ical.NewComponent(ical.CompTimezoneStandard)
	std.Props.SetDateTime(ical.PropDateTimeStart, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	std.Props.SetText(ical.PropTimezoneOffsetFrom, formatUTCOffset(offset))
	std.Props.SetText(ical.PropTimezoneOffsetTo, formatUTCOffset(offset))
	tz.Children = append(tz.Children, std)

	cal.Children = append(cal.Children, tz)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("cannot serialize timezone %s: %w", loc, err)
	}

	if _, err := q.Exec(updateTimezones, buf.String()); err != nil {
		return err
	}
	logDebugf("updated timezones in database")
	return nil
}

// loadTimezones reads the Timezones singleton back into a location.
// Returns nil with no error when no zone is stored.
func loadTimezones(q querier) (*time.Location, error) {
	var tzID int
	var data sql.NullString
	err := q.QueryRow(selectTimezones).Scan(&tzID, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data.String == "" {
		return nil, nil
	}

	cal, err := ical.NewDecoder(bytes.NewReader([]byte(data.String))).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse timezones from database: %w", err)
	}
	for _, child := range cal.Children {
		if child.Name != ical.CompTimezone {
			continue
		}
		id, err := child.Props.Text(ical.PropTimezoneID)
		if err != nil || id == "" {
			continue
		}
		loc, err := time.LoadLocation(id)
		if err != nil {
			logWarnf("stored timezone %q cannot be resolved: %v", id, err)
			return nil, nil
		}
		return loc, nil
	}
	return nil, nil
}

func formatUTCOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}
