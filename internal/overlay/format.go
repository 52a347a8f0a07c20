package overlay

import (
	"strings"
	"time"

	"github.com/kikiluvv/retroclip/internal/state"
)

// storedLayouts are the accepted forms of a stored timestamp value, tried in
// order. Values without a zone are read in local time.
var storedLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var displayLayouts = map[state.TimestampFormat]string{
	state.FormatUS:       "1/2/2006  3:04 PM",
	state.FormatEU:       "2.1.2006  15:04",
	state.FormatISO:      "2006-01-02  15:04:05",
	state.FormatDateOnly: "1/2/2006",
	state.FormatTimeOnly: "3:04:05 PM",
}

// ParseStored reads a stored timestamp value.
func ParseStored(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range storedLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t in one of the display formats. Unknown formats fall
// back to us.
func FormatTime(t time.Time, f state.TimestampFormat) string {
	layout, ok := displayLayouts[f]
	if !ok {
		layout = displayLayouts[state.FormatUS]
	}
	return t.Format(layout)
}

// FormatTimestamp converts the stored value to its display string. Values
// that cannot be parsed are shown verbatim.
func FormatTimestamp(raw string, f state.TimestampFormat) string {
	t, ok := ParseStored(raw, time.Local)
	if !ok {
		return raw
	}
	return FormatTime(t, f)
}
