package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sandeepkv93/medremind/internal/model"
)

const defaultReminderTime = "08:00"

// legacyIDSpace namespaces ids derived for records stored without one.
var legacyIDSpace = uuid.MustParse("5b0f8a4e-3c1d-4e57-9a62-7d2c4b9e1f30")

// Encode renders the collection as a JSON array. Nil slices are written as
// empty arrays so the stored form never contains null lists.
func Encode(items []model.Reminder) ([]byte, error) {
	out := make([]model.Reminder, 0, len(items))
	for _, it := range items {
		c := it.Clone()
		if c.Weekdays == nil {
			c.Weekdays = []model.Weekday{}
		}
		if c.ExternalHandles == nil {
			c.ExternalHandles = []string{}
		}
		out = append(out, c)
	}
	return json.Marshal(out)
}

// Decode reads a stored collection, tolerating records written by older
// versions: unknown keys are ignored, a missing id is derived from the
// record's position and content so every load yields the same one, a missing
// time defaults to 08:00, weekdays that are not a list mean every day,
// enabled defaults to true and legacy notificationIds are read as handles.
// A day list holding no valid day disables the record instead of widening it
// to every day.
func Decode(raw []byte) ([]model.Reminder, error) {
	if strings.TrimSpace(string(raw)) == "" {
		return []model.Reminder{}, nil
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		// A document that is not an array holds nothing usable.
		var anyDoc any
		if json.Unmarshal(raw, &anyDoc) == nil {
			return []model.Reminder{}, nil
		}
		return nil, fmt.Errorf("decode reminders: %w", err)
	}

	out := make([]model.Reminder, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			rec = map[string]any{}
		}
		out = append(out, migrateRecord(i, rec))
	}
	return out, nil
}

func migrateRecord(pos int, rec map[string]any) model.Reminder {
	r := model.Reminder{
		ID:      stringField(rec, "id"),
		Name:    stringField(rec, "name"),
		Dose:    stringField(rec, "dose"),
		Time:    stringField(rec, "time"),
		Notes:   stringField(rec, "notes"),
		Enabled: true,
	}
	if r.ID == "" {
		r.ID = legacyID(pos, rec)
	}
	if r.Time == "" {
		r.Time = defaultReminderTime
	}
	if v, ok := rec["enabled"].(bool); ok {
		r.Enabled = v
	}
	days, usable := weekdaysField(rec["weekdays"])
	r.Weekdays = days
	if !usable {
		r.Enabled = false
	}

	handles := stringsField(rec["externalHandles"])
	if _, present := rec["externalHandles"]; !present {
		handles = stringsField(rec["notificationIds"])
	}
	r.ExternalHandles = handles
	return r
}

func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// legacyID derives a stable id from the record. Map keys marshal sorted, so
// equal records at the same position always get the same id.
func legacyID(pos int, rec map[string]any) string {
	body, err := json.Marshal(rec)
	if err != nil {
		body = []byte(fmt.Sprint(rec))
	}
	return uuid.NewSHA1(legacyIDSpace, append([]byte(strconv.Itoa(pos)+":"), body...)).String()
}

// weekdaysField keeps valid, unique day numbers in sorted order. usable is
// false when a non-empty list held no valid day at all.
func weekdaysField(v any) (days []model.Weekday, usable bool) {
	list, ok := v.([]any)
	if !ok {
		return []model.Weekday{}, true
	}
	seen := make(map[model.Weekday]bool, len(list))
	out := make([]model.Weekday, 0, len(list))
	for _, item := range list {
		n, ok := item.(float64)
		if !ok || n != float64(int(n)) {
			continue
		}
		d := model.Weekday(int(n))
		if !d.IsValid() || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return model.SortWeekdays(out), len(list) == 0 || len(out) > 0
}

func stringsField(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
