package host

import (
	"strings"
	"time"

	"github.com/tomyedwab/ocidb/oci"
)

type dateValue struct {
	t time.Time
}

type timestampValue struct {
	t time.Time
}

type longValue struct {
	typ  int
	data []byte
}

// formatTokens maps datetime format elements to Go layout fragments, longest
// elements first.
var formatTokens = []struct {
	element string
	layout  string
}{
	{"MONTH", "January"},
	{"HH24", "15"},
	{"YYYY", "2006"},
	{"FF9", "000000000"},
	{"FF6", "000000"},
	{"FF3", "000"},
	{"MON", "Jan"},
	{"DAY", "Monday"},
	{"FF", "000000"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"DY", "Mon"},
	{"HH", "03"},
	{"MI", "04"},
	{"SS", "05"},
	{"AM", "PM"},
	{"PM", "PM"},
	{"TZH", "-07"},
	{"TZM", "00"},
}

// goLayout translates a datetime format mask into a time layout.
func goLayout(format string) string {
	var b strings.Builder
	upper := strings.ToUpper(format)
	for i := 0; i < len(format); {
		matched := false
		for _, tok := range formatTokens {
			if strings.HasPrefix(upper[i:], tok.element) {
				b.WriteString(tok.layout)
				i += len(tok.element)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

func formatTime(t time.Time, format string) string {
	return t.Format(goLayout(format))
}

func (h *Host) DateCreate(c oci.Conn) (oci.Date, error) {
	if _, err := lookup[*session](h, string(c), "connection"); err != nil {
		return "", err
	}
	return oci.Date(h.register(&dateValue{t: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)})), nil
}

func (h *Host) DateFree(d oci.Date) error {
	if _, err := lookup[*dateValue](h, string(d), "date"); err != nil {
		return err
	}
	h.unregister(string(d))
	return nil
}

func (h *Host) DateSetDateTime(d oci.Date, year, month, day, hour, min, sec int) error {
	dv, err := lookup[*dateValue](h, string(d), "date")
	if err != nil {
		return err
	}
	switch {
	case year < 1 || year > 9999:
		return serverError(oraYearRange, "(full) year must be between -4713 and +9999, and not be 0")
	case month < 1 || month > 12:
		return serverError(oraMonthRange, "not a valid month")
	case day < 1 || day > daysIn(year, month):
		return serverError(oraDayRange, "day of month must be between 1 and last day of month")
	case hour < 0 || hour > 23:
		return serverError(oraHourRange, "hour must be between 0 and 23")
	case min < 0 || min > 59:
		return serverError(oraMinuteRange, "minutes must be between 0 and 59")
	case sec < 0 || sec > 59:
		return serverError(oraSecondRange, "seconds must be between 0 and 59")
	}
	dv.t = time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	return nil
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (h *Host) DateGetDateTime(d oci.Date) (year, month, day, hour, min, sec int, err error) {
	dv, err := lookup[*dateValue](h, string(d), "date")
	if err != nil {
		return 0, 0, 0, 0, 0, 0, err
	}
	t := dv.t
	return t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), nil
}

func (h *Host) TimestampGetDateTime(ts oci.Timestamp) (year, month, day, hour, min, sec, fsec int, err error) {
	tv, err := lookup[*timestampValue](h, string(ts), "timestamp")
	if err != nil {
		return 0, 0, 0, 0, 0, 0, 0, err
	}
	t := tv.t
	return t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / 1000, nil
}

func (h *Host) TimestampGetTimeZoneOffset(ts oci.Timestamp) (hour, min int, err error) {
	tv, err := lookup[*timestampValue](h, string(ts), "timestamp")
	if err != nil {
		return 0, 0, err
	}
	_, offset := tv.t.Zone()
	return offset / 3600, (offset % 3600) / 60, nil
}

func (h *Host) LongType(l oci.Long) int {
	lv, err := lookup[*longValue](h, string(l), "long")
	if err != nil {
		return 0
	}
	return lv.typ
}

func (h *Host) LongBuffer(l oci.Long) ([]byte, error) {
	lv, err := lookup[*longValue](h, string(l), "long")
	if err != nil {
		return nil, err
	}
	return lv.data, nil
}
