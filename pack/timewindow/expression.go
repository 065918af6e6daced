package timewindow

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnresolvable indicates an expression outside the supported grammar.
	ErrUnresolvable = errors.New("could not resolve time expression")

	// ErrInvertedWindow indicates a window whose end precedes its start.
	ErrInvertedWindow = errors.New("time window ends before it starts")

	// ErrAmountOutOfRange indicates a relative amount larger than MaxAmount.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// Resolution names the grammar rule that produced a window.
type Resolution string

const (
	ResolutionInstant  Resolution = "instant"
	ResolutionRolling  Resolution = "rolling"
	ResolutionAgo      Resolution = "ago"
	ResolutionSince    Resolution = "since"
	ResolutionCalendar Resolution = "calendar"
	ResolutionWeekday  Resolution = "weekday"
	ResolutionRange    Resolution = "range"
	ResolutionAbsolute Resolution = "absolute"
)

// Window is a resolved time range.
type Window struct {
	Start      time.Time
	End        time.Time
	Resolution Resolution
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Unit is a calendar or clock unit used by relative expressions.
type Unit string

const (
	UnitSecond Unit = "seconds"
	UnitMinute Unit = "minutes"
	UnitHour   Unit = "hours"
	UnitDay    Unit = "days"
	UnitWeek   Unit = "weeks"
	UnitMonth  Unit = "months"
	UnitYear   Unit = "years"
)

// Units returns the canonical unit names.
func Units() []string {
	return []string{
		string(UnitSecond), string(UnitMinute), string(UnitHour), string(UnitDay),
		string(UnitWeek), string(UnitMonth), string(UnitYear),
	}
}

// maxAmounts caps relative amounts at roughly a century per unit, which keeps
// clock shifts inside time.Duration.
var maxAmounts = map[Unit]int{
	UnitSecond: 100 * 366 * 24 * 60 * 60,
	UnitMinute: 100 * 366 * 24 * 60,
	UnitHour:   100 * 366 * 24,
	UnitDay:    100 * 366,
	UnitWeek:   100 * 53,
	UnitMonth:  100 * 12,
	UnitYear:   100,
}

// MaxAmount returns the largest magnitude Shift accepts for unit.
func MaxAmount(unit Unit) int {
	return maxAmounts[unit]
}

// CheckAmount reports whether n units can be shifted without overflow.
func CheckAmount(n int, unit Unit) error {
	limit, ok := maxAmounts[unit]
	if !ok {
		return fmt.Errorf("%w: unknown unit %q", ErrUnresolvable, unit)
	}
	if n > limit || n < -limit {
		return fmt.Errorf("%w: %d %s exceeds %d", ErrAmountOutOfRange, n, unit, limit)
	}
	return nil
}

var unitAliases = map[string]Unit{
	"s": UnitSecond, "sec": UnitSecond, "secs": UnitSecond, "second": UnitSecond, "seconds": UnitSecond,
	"m": UnitMinute, "min": UnitMinute, "mins": UnitMinute, "minute": UnitMinute, "minutes": UnitMinute,
	"h": UnitHour, "hr": UnitHour, "hrs": UnitHour, "hour": UnitHour, "hours": UnitHour,
	"d": UnitDay, "day": UnitDay, "days": UnitDay,
	"w": UnitWeek, "wk": UnitWeek, "wks": UnitWeek, "week": UnitWeek, "weeks": UnitWeek,
	"mo": UnitMonth, "month": UnitMonth, "months": UnitMonth,
	"y": UnitYear, "yr": UnitYear, "yrs": UnitYear, "year": UnitYear, "years": UnitYear,
}

// ParseUnit maps a unit name or abbreviation to its canonical unit.
func ParseUnit(s string) (Unit, bool) {
	u, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]
	return u, ok
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"couple of": 2, "a couple of": 2,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

const numberPattern = `(\d+|a couple of|couple of|an|a|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	fillerPrefix = regexp.MustCompile(`^(?:(?:in|during|over|within|for)\s+)?the\s+`)
	rollingRe    = regexp.MustCompile(`^(?:last|past|previous)(?:\s+` + numberPattern + `)?\s*([a-z]+)$`)
	agoRe        = regexp.MustCompile(`^` + numberPattern + `\s*([a-z]+)\s+ago$`)
	sinceRe      = regexp.MustCompile(`^since\s+(.+)$`)
	rangeRe      = regexp.MustCompile(`^(?:between|from)\s+(.+?)\s+(?:and|to|until)\s+(.+)$`)
	weekdayRe    = regexp.MustCompile(`^(?:(last|on|this past)\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)$`)
)

// Resolve turns a free-text temporal expression into a window anchored on ref
// in loc. The same inputs always produce the same window, and a window never
// ends before it starts.
func Resolve(expr string, ref time.Time, loc *time.Location) (Window, error) {
	w, err := resolve(expr, ref, loc)
	if err != nil {
		return Window{}, err
	}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("%w: %q", ErrInvertedWindow, expr)
	}
	return w, nil
}

func resolve(expr string, ref time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)
	s := normalize(expr)
	if s == "" {
		return Window{}, fmt.Errorf("%w: empty expression", ErrUnresolvable)
	}

	switch s {
	case "now", "right now":
		return Window{Start: ref, End: ref, Resolution: ResolutionInstant}, nil
	case "today", "so far today":
		return Window{Start: startOfDay(ref), End: ref, Resolution: ResolutionCalendar}, nil
	case "yesterday":
		end := startOfDay(ref)
		return Window{Start: end.AddDate(0, 0, -1), End: end, Resolution: ResolutionCalendar}, nil
	case "this week":
		return Window{Start: startOfWeek(ref), End: ref, Resolution: ResolutionCalendar}, nil
	case "this month":
		y, m, _ := ref.Date()
		return Window{Start: time.Date(y, m, 1, 0, 0, 0, 0, loc), End: ref, Resolution: ResolutionCalendar}, nil
	case "this year":
		return Window{Start: time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc), End: ref, Resolution: ResolutionCalendar}, nil
	}

	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		day := mostRecent(ref, weekdays[m[2]], m[1] == "last" || m[1] == "this past")
		end := day.AddDate(0, 0, 1)
		if end.After(ref) {
			end = ref
		}
		return Window{Start: day, End: end, Resolution: ResolutionWeekday}, nil
	}

	if m := rollingRe.FindStringSubmatch(s); m != nil {
		n, unit, err := amountAndUnit(m[1], m[2], true)
		if err != nil {
			return Window{}, err
		}
		return Window{Start: Shift(ref, -n, unit), End: ref, Resolution: ResolutionRolling}, nil
	}

	if m := agoRe.FindStringSubmatch(s); m != nil {
		n, unit, err := amountAndUnit(m[1], m[2], false)
		if err != nil {
			return Window{}, err
		}
		return Window{Start: Shift(ref, -n, unit), End: ref, Resolution: ResolutionAgo}, nil
	}

	if m := sinceRe.FindStringSubmatch(s); m != nil {
		inner, err := Resolve(m[1], ref, loc)
		if err != nil {
			return Window{}, err
		}
		if inner.Start.After(ref) {
			return Window{}, fmt.Errorf("%w: %q starts after the reference time", ErrInvertedWindow, expr)
		}
		return Window{Start: inner.Start, End: ref, Resolution: ResolutionSince}, nil
	}

	if m := rangeRe.FindStringSubmatch(s); m != nil {
		from, ok := resolveBound(m[1], ref, loc, false)
		if !ok {
			return Window{}, fmt.Errorf("%w: %q", ErrUnresolvable, m[1])
		}
		to, ok := resolveBound(m[2], ref, loc, true)
		if !ok {
			return Window{}, fmt.Errorf("%w: %q", ErrUnresolvable, m[2])
		}
		if to.Before(from) {
			return Window{}, fmt.Errorf("%w: %q", ErrInvertedWindow, expr)
		}
		return Window{Start: from, End: to, Resolution: ResolutionRange}, nil
	}

	if t, dateOnly, ok := ParseInstant(s, loc); ok {
		if dateOnly {
			end := t.AddDate(0, 0, 1)
			if t.After(ref) {
				return Window{}, fmt.Errorf("%w: %q is after the reference time", ErrInvertedWindow, expr)
			}
			if end.After(ref) {
				end = ref
			}
			return Window{Start: t, End: end, Resolution: ResolutionAbsolute}, nil
		}
		if t.After(ref) {
			return Window{}, fmt.Errorf("%w: %q is after the reference time", ErrInvertedWindow, expr)
		}
		return Window{Start: t, End: ref, Resolution: ResolutionAbsolute}, nil
	}

	return Window{}, fmt.Errorf("%w: %q", ErrUnresolvable, expr)
}

// resolveBound resolves one side of a range. Dates used as an upper bound
// cover the whole day.
func resolveBound(s string, ref time.Time, loc *time.Location, upper bool) (time.Time, bool) {
	switch s {
	case "now":
		return ref, true
	case "today":
		if upper {
			return ref, true
		}
		return startOfDay(ref), true
	case "yesterday":
		if upper {
			return startOfDay(ref), true
		}
		return startOfDay(ref).AddDate(0, 0, -1), true
	}
	if m := agoRe.FindStringSubmatch(s); m != nil {
		n, unit, err := amountAndUnit(m[1], m[2], false)
		if err != nil {
			return time.Time{}, false
		}
		return Shift(ref, -n, unit), true
	}
	t, dateOnly, ok := ParseInstant(s, loc)
	if !ok {
		return time.Time{}, false
	}
	if dateOnly && upper {
		return t.AddDate(0, 0, 1), true
	}
	return t, true
}

func amountAndUnit(num, unit string, optional bool) (int, Unit, error) {
	n := 1
	switch {
	case num == "" && optional:
	case num == "":
		return 0, "", fmt.Errorf("%w: missing amount", ErrUnresolvable)
	default:
		if v, ok := numberWords[num]; ok {
			n = v
		} else {
			v, err := strconv.Atoi(num)
			if errors.Is(err, strconv.ErrRange) {
				return 0, "", fmt.Errorf("%w: %s", ErrAmountOutOfRange, num)
			}
			if err != nil || v < 0 {
				return 0, "", fmt.Errorf("%w: bad amount %q", ErrUnresolvable, num)
			}
			n = v
		}
	}
	u, ok := ParseUnit(unit)
	if !ok {
		return 0, "", fmt.Errorf("%w: unknown unit %q", ErrUnresolvable, unit)
	}
	if err := CheckAmount(n, u); err != nil {
		return 0, "", err
	}
	return n, u, nil
}

// Shift moves t by n units. Month and year shifts clamp the day to the
// target month, so Feb 29 plus one year is Feb 28. n must pass CheckAmount.
func Shift(t time.Time, n int, unit Unit) time.Time {
	switch unit {
	case UnitSecond:
		return t.Add(time.Duration(n) * time.Second)
	case UnitMinute:
		return t.Add(time.Duration(n) * time.Minute)
	case UnitHour:
		return t.Add(time.Duration(n) * time.Hour)
	case UnitDay:
		return t.AddDate(0, 0, n)
	case UnitWeek:
		return t.AddDate(0, 0, 7*n)
	case UnitMonth:
		return addMonthsClamped(t, n)
	case UnitYear:
		return addMonthsClamped(t, 12*n)
	default:
		return t
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	target := time.Month(tm + 1)
	if last := daysIn(ty, target, t.Location()); d > last {
		d = last
	}
	return time.Date(ty, target, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns midnight of the Monday on or before t.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

// mostRecent returns midnight of the latest day before or on ref's date
// falling on wd. With strict set, ref's own date is excluded.
func mostRecent(ref time.Time, wd time.Weekday, strict bool) time.Time {
	back := (int(ref.Weekday()) - int(wd) + 7) % 7
	if back == 0 && strict {
		back = 7
	}
	return startOfDay(ref).AddDate(0, 0, -back)
}

func normalize(expr string) string {
	s := strings.ToLower(strings.TrimSpace(expr))
	s = strings.TrimRight(s, ".!?,;")
	s = spaceRun.ReplaceAllString(s, " ")
	s = fillerPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

var instantLayouts = []struct {
	layout   string
	dateOnly bool
	zoned    bool
}{
	{time.RFC3339Nano, false, true},
	{time.RFC3339, false, true},
	{"2006-01-02T15:04:05", false, false},
	{"2006-01-02T15:04", false, false},
	{"2006-01-02 15:04:05", false, false},
	{"2006-01-02 15:04", false, false},
	{"2006-01-02", true, false},
}

// ParseInstant parses an absolute timestamp. Timestamps without an offset
// are read in loc; those with one keep it. dateOnly reports a bare date.
func ParseInstant(s string, loc *time.Location) (t time.Time, dateOnly bool, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, l := range instantLayouts {
		var err error
		if l.zoned {
			t, err = time.Parse(l.layout, strings.ToUpper(s))
		} else {
			t, err = time.ParseInLocation(l.layout, strings.ToUpper(s), loc)
		}
		if err == nil {
			return t, l.dateOnly, true
		}
	}
	return time.Time{}, false, false
}
