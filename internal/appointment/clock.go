package appointment

import (
	"regexp"
	"time"
)

// DateLayout is the dd/mm/yyyy hh:mm form used by the clinic front desk.
const DateLayout = "02/01/2006 15:04"

// time.Parse accepts a single digit hour for "15", so the shape is checked first.
var datePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4} \d{2}:\d{2}$`)

// Clock supplies the reference time for "must be in the future" checks.
type Clock func() time.Time

// TimeNormalizer converts between the display form of a date and a UTC instant.
type TimeNormalizer struct {
	loc *time.Location
}

func NewTimeNormalizer(loc *time.Location) *TimeNormalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &TimeNormalizer{loc: loc}
}

func (n *TimeNormalizer) Location() *time.Location {
	return n.loc
}

// ParseAndValidate reads input in the display timezone and returns the UTC
// instant. The instant must be strictly after now.
func (n *TimeNormalizer) ParseAndValidate(input string, now time.Time) (time.Time, error) {
	if !datePattern.MatchString(input) {
		return time.Time{}, ErrMalformedDate
	}

	local, err := time.ParseInLocation(DateLayout, input, n.loc)
	if err != nil {
		return time.Time{}, ErrMalformedDate
	}

	at := local.UTC().Truncate(time.Minute)
	if !at.After(now) {
		return time.Time{}, ErrPastDate
	}
	return at, nil
}

// Format renders an instant in the display timezone.
func (n *TimeNormalizer) Format(instant time.Time) string {
	return instant.In(n.loc).Format(DateLayout)
}
