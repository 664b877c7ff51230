package reports

import (
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host image

	"github.com/warp/channel-ledger/ledger"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar days in the caller's timezone.
type DateRange struct {
	Start    time.Time // midnight of the first day, in Location
	End      time.Time // midnight of the last day, in Location
	Location *time.Location
}

// ParseDateRange builds a range from YYYY-MM-DD strings and an IANA zone
// name. An empty zone means UTC.
func ParseDateRange(start, end, tz string) (DateRange, error) {
	loc := time.UTC
	if tz = strings.TrimSpace(tz); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return DateRange{}, &ledger.ValidationError{Field: "tz", Message: "unknown time zone " + tz}
		}
		loc = l
	}

	s, err := time.ParseInLocation(dateLayout, strings.TrimSpace(start), loc)
	if err != nil {
		return DateRange{}, &ledger.ValidationError{Field: "start", Message: "must be a YYYY-MM-DD date"}
	}
	e, err := time.ParseInLocation(dateLayout, strings.TrimSpace(end), loc)
	if err != nil {
		return DateRange{}, &ledger.ValidationError{Field: "end", Message: "must be a YYYY-MM-DD date"}
	}
	if e.Before(s) {
		return DateRange{}, &ledger.ValidationError{Field: "end", Message: "must not be before start"}
	}
	return DateRange{Start: s, End: e, Location: loc}, nil
}

// Window returns the half-open instant range [Start 00:00, End+1 00:00).
// Day arithmetic happens on the calendar so DST days keep their real length.
func (r DateRange) Window() (from, to time.Time) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	from = time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, loc)
	to = time.Date(r.End.Year(), r.End.Month(), r.End.Day()+1, 0, 0, 0, 0, loc)
	return from, to
}

func (r DateRange) String() string {
	loc := "UTC"
	if r.Location != nil {
		loc = r.Location.String()
	}
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout) + "@" + loc
}
