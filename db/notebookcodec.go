package db

import (
	"database/sql"

	"github.com/dcaliste/mkcal/calendar"
)

// modifyCalendars writes one notebook to the Calendars table and its
// custom properties to Calendarproperties. Updates rewrite the property
// rows wholesale.
func (f *format) modifyCalendars(q querier, nb *calendar.Notebook, op dbOperation, isDefault bool) error {
	flags := nb.Flags
	if isDefault {
		flags |= calendar.NotebookDefault
	} else {
		flags &^= calendar.NotebookDefault
	}

	switch op {
	case opInsert:
		if _, err := q.Exec(insertCalendars, nb.UID, nb.Name, nb.Description,
			nb.Color, flags, originSecs(nb.SyncDate), nb.PluginName, nb.Account,
			nb.AttachmentSize, originSecs(nb.ModifiedDate), nb.SharedWithStr(),
			nb.SyncProfile, originSecs(nb.CreationDate)); err != nil {
			return err
		}
	case opUpdate:
		if _, err := q.Exec(updateCalendars, nb.Name, nb.Description,
			nb.Color, flags, originSecs(nb.SyncDate), nb.PluginName, nb.Account,
			nb.AttachmentSize, originSecs(nb.ModifiedDate), nb.SharedWithStr(),
			nb.SyncProfile, originSecs(nb.CreationDate), nb.UID); err != nil {
			return err
		}
	case opDelete:
		if _, err := q.Exec(deleteCalendars, nb.UID); err != nil {
			return err
		}
	}

	if err := f.modifyCalendarProperties(nb, op); err != nil {
		logWarnf("failed to modify calendarproperties for notebook %s: %v", nb.UID, err)
	}

	return nil
}

func (f *format) modifyCalendarProperties(nb *calendar.Notebook, op dbOperation) error {
	// In update always delete all first, then insert all. The cascade on
	// Calendars covers the delete case.
	if op == opUpdate {
		if err := f.deleteCalendarProperties(nb.UID); err != nil {
			return err
		}
	}
	if op == opInsert || op == opUpdate {
		for key, value := range nb.CustomProperties {
			if err := f.insertCalendarProperty(nb.UID, key, value); err != nil {
				logWarnf("failed to insert calendarproperty %s in notebook %s: %v", key, nb.UID, err)
			}
		}
	}
	return nil
}

func (f *format) deleteCalendarProperties(uid string) error {
	_, err := f.db.Exec(deleteCalendarproperties, uid)
	return err
}

func (f *format) insertCalendarProperty(uid, key, value string) error {
	if f.insertCalProps == nil {
		stmt, err := f.db.Prepare(insertCalendarproperties)
		if err != nil {
			return err
		}
		f.insertCalProps = stmt
	}
	_, err := f.insertCalProps.Exec(uid, key, value)
	return err
}

// selectCalendars loads every notebook with its custom properties.
func (f *format) selectCalendars(q querier) ([]*calendar.Notebook, error) {
	rows, err := q.Query(selectCalendarsAll)
	if err != nil {
		return nil, err
	}

	var notebooks []*calendar.Notebook
	for rows.Next() {
		var uid string
		var name, description, color, plugin, account, sharedWith, syncProfile, extra1, extra2 sql.NullString
		var flags int
		var attachmentSize int64
		var syncDate, modifiedDate, createdDate int64
		if err := rows.Scan(&uid, &name, &description, &color, &flags,
			&syncDate, &plugin, &account, &attachmentSize, &modifiedDate,
			&sharedWith, &syncProfile, &createdDate, &extra1, &extra2); err != nil {
			rows.Close()
			return notebooks, err
		}

		nb := &calendar.Notebook{
			UID:            uid,
			Name:           name.String,
			Description:    description.String,
			Color:          color.String,
			Flags:          flags,
			PluginName:     plugin.String,
			Account:        account.String,
			AttachmentSize: attachmentSize,
			SyncProfile:    syncProfile.String,
			SyncDate:       fromOriginTime(syncDate),
			CreationDate:   fromOriginTime(createdDate),
		}
		nb.SetSharedWithStr(sharedWith.String)
		// Reading the properties below leaves ModifiedDate as stored.
		nb.ModifiedDate = fromOriginTime(modifiedDate)
		notebooks = append(notebooks, nb)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return notebooks, err
	}

	for _, nb := range notebooks {
		if err := f.selectCalendarProperties(nb); err != nil {
			logWarnf("failed to get calendarproperties for notebook %s: %v", nb.UID, err)
		}
	}

	return notebooks, nil
}

func (f *format) selectCalendarProperties(nb *calendar.Notebook) error {
	if f.selectCalProps == nil {
		stmt, err := f.db.Prepare(selectCalendarpropertiesByID)
		if err != nil {
			return err
		}
		f.selectCalProps = stmt
	}
	rows, err := f.selectCalProps.Query(nb.UID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		var value sql.NullString
		if err := rows.Scan(&id, &name, &value); err != nil {
			return err
		}
		nb.SetCustomProperty(name, value.String)
	}
	return rows.Err()
}
