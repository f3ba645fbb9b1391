// Package filter resolves a statement filter selection into a canonical window.
//
// A selection is one of: a single day, a day range, a month of a year, a whole
// year, a beneficiary name, or nothing at all (unbounded). Every bounded window
// is expressed as an inclusive pair of calendar days in one reference time zone,
// so membership never depends on the time of day a record was stored at or on
// the zone of the machine asking.
//
// Example usage:
//
//	loc, _ := filter.LoadLocation("Europe/Paris")
//	resolver := filter.NewResolver(loc)
//
//	window, err := resolver.Resolve(filter.Month(3, 2025))
//	if err != nil {
//		// a validation error, nothing should be fetched
//	}
//	window.Contains(record.Date)
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
)

// DefaultTimezone is the reference zone used for calendar-day comparison
const DefaultTimezone = "Europe/Paris"

// Mode identifies the shape of a filter selection
type Mode string

const (
	ModeDay         Mode = "day"
	ModeRange       Mode = "range"
	ModeMonth       Mode = "month"
	ModeYear        Mode = "year"
	ModeBeneficiary Mode = "beneficiary"
	ModeAll         Mode = "all"
)

// String returns the string representation of Mode
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if the mode is a known filter shape
func (m Mode) IsValid() bool {
	switch m {
	case ModeDay, ModeRange, ModeMonth, ModeYear, ModeBeneficiary, ModeAll:
		return true
	default:
		return false
	}
}

// ParseMode parses a mode name; an empty name selects ModeAll
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeAll, nil
	}
	mode := Mode(s)
	if !mode.IsValid() {
		return "", errors.ValidationError(errors.CodeUnknownMode, "mode", s)
	}
	return mode, nil
}

// FilterSpec is one filter selection as supplied by a caller.
// Dates are raw calendar-day strings; zero Month and Year mean "not given".
type FilterSpec struct {
	Mode            Mode   `json:"mode"`
	Start           string `json:"start,omitempty"`
	End             string `json:"end,omitempty"`
	Month           int    `json:"month,omitempty"`
	Year            int    `json:"year,omitempty"`
	BeneficiaryName string `json:"beneficiaryName,omitempty"`
}

// Day selects a single calendar day
func Day(date string) FilterSpec {
	return FilterSpec{Mode: ModeDay, Start: date}
}

// Range selects an inclusive range of calendar days
func Range(start, end string) FilterSpec {
	return FilterSpec{Mode: ModeRange, Start: start, End: end}
}

// Month selects one month of one year
func Month(month, year int) FilterSpec {
	return FilterSpec{Mode: ModeMonth, Month: month, Year: year}
}

// Year selects a whole calendar year
func Year(year int) FilterSpec {
	return FilterSpec{Mode: ModeYear, Year: year}
}

// Beneficiary selects the pre-aggregated activity of a named beneficiary
func Beneficiary(name string) FilterSpec {
	return FilterSpec{Mode: ModeBeneficiary, BeneficiaryName: name}
}

// All selects every record, without any time bound
func All() FilterSpec {
	return FilterSpec{Mode: ModeAll}
}

// Window is the canonical, validated form of a FilterSpec.
// Start and End are midnights in the reference zone and both days are included.
type Window struct {
	Mode            Mode
	Start           time.Time
	End             time.Time
	Month           int
	Year            int
	BeneficiaryName string

	loc *time.Location
}

// Bounded reports whether the window restricts records by date
func (w Window) Bounded() bool {
	return !w.Start.IsZero() && !w.End.IsZero()
}

// Location returns the reference zone the window compares days in
func (w Window) Location() *time.Location {
	if w.loc == nil {
		return time.UTC
	}
	return w.loc
}

// Contains reports whether the calendar day of t, read in the reference zone,
// falls inside the window. Unbounded windows contain every date.
func (w Window) Contains(t time.Time) bool {
	if !w.Bounded() {
		return true
	}
	if t.IsZero() {
		return false
	}
	day := CalendarDay(t, w.Location())
	return !day.Before(w.Start) && !day.After(w.End)
}

// String returns a compact description used in logs and report headers
func (w Window) String() string {
	switch {
	case w.Mode == ModeBeneficiary:
		return fmt.Sprintf("beneficiary %q", w.BeneficiaryName)
	case !w.Bounded():
		return "all dates"
	case w.Start.Equal(w.End):
		return w.Start.Format(models.DateLayout)
	default:
		return fmt.Sprintf("%s to %s", w.Start.Format(models.DateLayout), w.End.Format(models.DateLayout))
	}
}

// MarshalJSON renders the window with calendar-day bounds
func (w Window) MarshalJSON() ([]byte, error) {
	type window struct {
		Mode            Mode   `json:"mode"`
		Start           string `json:"start,omitempty"`
		End             string `json:"end,omitempty"`
		BeneficiaryName string `json:"beneficiaryName,omitempty"`
	}
	out := window{Mode: w.Mode, BeneficiaryName: w.BeneficiaryName}
	if w.Bounded() {
		out.Start = w.Start.Format(models.DateLayout)
		out.End = w.End.Format(models.DateLayout)
	}
	return json.Marshal(out)
}

// Resolver turns filter selections into windows in one reference zone
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver; a nil location falls back to UTC
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// Location returns the resolver's reference zone
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve validates spec and returns its canonical window.
// Every failure is a validation error and the window must not be used.
func (r *Resolver) Resolve(spec FilterSpec) (Window, error) {
	mode := spec.Mode
	if mode == "" {
		mode = ModeAll
	}

	switch mode {
	case ModeDay:
		if strings.TrimSpace(spec.Start) == "" {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "date", spec.Start)
		}
		day, err := r.parseDay("date", spec.Start)
		if err != nil {
			return Window{}, err
		}
		return r.window(mode, day, day), nil

	case ModeRange:
		if strings.TrimSpace(spec.Start) == "" {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "start", spec.Start)
		}
		if strings.TrimSpace(spec.End) == "" {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "end", spec.End)
		}
		start, err := r.parseDay("start", spec.Start)
		if err != nil {
			return Window{}, err
		}
		end, err := r.parseDay("end", spec.End)
		if err != nil {
			return Window{}, err
		}
		if end.Before(start) {
			return Window{}, errors.ValidationError(errors.CodeInvalidRange, "end",
				fmt.Sprintf("%s is earlier than %s", end.Format(models.DateLayout), start.Format(models.DateLayout)))
		}
		return r.window(mode, start, end), nil

	case ModeMonth:
		if spec.Month == 0 {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "month", spec.Month)
		}
		if spec.Year == 0 {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "year", spec.Year)
		}
		if spec.Month < 1 || spec.Month > 12 {
			return Window{}, errors.ValidationError(errors.CodeOutOfRange, "month", spec.Month)
		}
		if err := validateYear(spec.Year); err != nil {
			return Window{}, err
		}
		start := time.Date(spec.Year, time.Month(spec.Month), 1, 0, 0, 0, 0, r.loc)
		end := start.AddDate(0, 1, -1)
		w := r.window(mode, start, end)
		w.Month = spec.Month
		w.Year = spec.Year
		return w, nil

	case ModeYear:
		if spec.Year == 0 {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "year", spec.Year)
		}
		if err := validateYear(spec.Year); err != nil {
			return Window{}, err
		}
		start := time.Date(spec.Year, time.January, 1, 0, 0, 0, 0, r.loc)
		end := time.Date(spec.Year, time.December, 31, 0, 0, 0, 0, r.loc)
		w := r.window(mode, start, end)
		w.Year = spec.Year
		return w, nil

	case ModeBeneficiary:
		name := strings.TrimSpace(spec.BeneficiaryName)
		if name == "" {
			return Window{}, errors.ValidationError(errors.CodeMissingField, "beneficiaryName", spec.BeneficiaryName)
		}
		return Window{Mode: mode, BeneficiaryName: name, loc: r.loc}, nil

	case ModeAll:
		return Window{Mode: mode, loc: r.loc}, nil

	default:
		return Window{}, errors.ValidationError(errors.CodeUnknownMode, "mode", spec.Mode)
	}
}

func (r *Resolver) window(mode Mode, start, end time.Time) Window {
	return Window{Mode: mode, Start: start, End: end, loc: r.loc}
}

func (r *Resolver) parseDay(field, value string) (time.Time, error) {
	day, err := ParseDate(value, r.loc)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidDate, field, value)
	}
	return day, nil
}

func validateYear(year int) error {
	if year < 1 || year > 9999 {
		return errors.ValidationError(errors.CodeOutOfRange, "year", year)
	}
	return nil
}

// ParseDate parses a calendar-day string and returns that day's midnight in loc.
// Timestamps carrying an offset are first converted to loc, so a late-evening
// UTC instant can land on the next day.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := models.ParseTimeWithFormats(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return CalendarDay(t, loc), nil
}

// CalendarDay truncates t to midnight of its calendar day as seen in loc
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// LoadLocation loads a reference zone by IANA name; an empty name loads DefaultTimezone
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "timezone", name, err)
	}
	return loc, nil
}
