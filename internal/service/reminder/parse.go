package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// DefaultNote is used when a reminder command carries no text.
const DefaultNote = "Time's up! ⏰"

var (
	// ErrEmpty means the command had no arguments.
	ErrEmpty = errors.New("reminder: missing time")
	// ErrBadTime means the clock part could not be parsed.
	ErrBadTime = errors.New("reminder: invalid time")
	// ErrBadDate means the day/month part could not be parsed.
	ErrBadDate = errors.New("reminder: invalid date")
)

// clockPattern accepts "9", "9:30", "9h30", "9.30", "930" and "0930".
// Without a separator the last two digits are the minutes.
var clockPattern = regexp.MustCompile(`^(?:(\d{1,2})(?:[:hH.](\d{1,2})?)?|(\d{1,2})(\d{2}))$`)

// Parsed is a reminder request before it gets an id and owner.
type Parsed struct {
	Time time.Time
	Note string
	Type domain.ReminderType
}

func parseClock(s string) (h, m int, ok bool) {
	match := clockPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, false
	}
	hh, mm := match[1], match[2]
	if match[3] != "" {
		hh, mm = match[3], match[4]
	}
	h, _ = strconv.Atoi(hh)
	if mm != "" {
		m, _ = strconv.Atoi(mm)
	}
	if h > 23 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// ParseCommand interprets the arguments of a reminder command.
//
//	HH:MM [note]        daily, first occurrence today or tomorrow
//	HH:MM/DD/MM [note]  once, this year or next year if already past
//
// All wall-clock values are read in loc.
func ParseCommand(args string, now time.Time, loc *time.Location) (Parsed, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Parsed{}, ErrEmpty
	}
	timeStr := fields[0]
	note := strings.Join(fields[1:], " ")
	if note == "" {
		note = DefaultNote
	}
	local := now.In(loc)

	if strings.Contains(timeStr, "/") {
		parts := strings.Split(timeStr, "/")
		if len(parts) != 3 {
			return Parsed{}, fmt.Errorf("%w: %q", ErrBadDate, timeStr)
		}
		h, m, ok := parseClock(parts[0])
		if !ok {
			return Parsed{}, fmt.Errorf("%w: %q", ErrBadTime, parts[0])
		}
		day, errD := strconv.Atoi(parts[1])
		month, errM := strconv.Atoi(parts[2])
		if errD != nil || errM != nil {
			return Parsed{}, fmt.Errorf("%w: %q", ErrBadDate, timeStr)
		}
		target, ok := civilDate(local.Year(), month, day, h, m, loc)
		if !ok {
			return Parsed{}, fmt.Errorf("%w: %q", ErrBadDate, timeStr)
		}
		if target.Before(now) {
			// 29/02 may not exist next year
			if target, ok = civilDate(local.Year()+1, month, day, h, m, loc); !ok {
				return Parsed{}, fmt.Errorf("%w: %q", ErrBadDate, timeStr)
			}
		}
		return Parsed{Time: target, Note: note, Type: domain.ReminderOneTime}, nil
	}

	h, m, ok := parseClock(timeStr)
	if !ok {
		return Parsed{}, fmt.Errorf("%w: %q", ErrBadTime, timeStr)
	}
	target := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
	if target.Before(now) {
		target = target.AddDate(0, 0, 1)
	}
	return Parsed{Time: target, Note: note, Type: domain.ReminderDaily}, nil
}

// civilDate builds a wall-clock instant, rejecting dates time.Date would normalize.
func civilDate(year, month, day, h, m int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, h, m, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
