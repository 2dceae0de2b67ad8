package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedCommit is returned when a commit carries neither a committer nor an author date.
var ErrMalformedCommit = errors.New("commit has no committer or author date")

// RawCommit is a commit as delivered by a commit source, before qualification.
// Zero times mean the field was absent.
type RawCommit struct {
	SHA           string
	CommitterDate time.Time
	AuthorDate    time.Time
	Message       string
}

// IntegrationTime returns the committer date, falling back to the author date, in UTC.
func (c RawCommit) IntegrationTime() (time.Time, error) {
	switch {
	case !c.CommitterDate.IsZero():
		return c.CommitterDate.UTC(), nil
	case !c.AuthorDate.IsZero():
		return c.AuthorDate.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrMalformedCommit, c.SHA)
}

// CommitRecord is a qualifying commit collected for an accepted repository.
type CommitRecord struct {
	SHA     string    `json:"sha"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

// FirstLine returns the first line of a commit message.
func FirstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSuffix(line, "\r")
}

// MonthKey identifies a calendar month in UTC.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the UTC calendar month t falls in.
func MonthOf(t time.Time) MonthKey {
	t = t.UTC()
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Window is the half-open interval [Start, End) covering Months full calendar months.
type Window struct {
	Start  time.Time
	End    time.Time
	Months int
}

// NewWindow returns the window of the given number of full months that ends
// at the first instant of the month containing now. The current month is never included.
func NewWindow(now time.Time, months int) Window {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{
		Start:  end.AddDate(0, -months, 0),
		End:    end,
		Months: months,
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// MonthKeys returns every month of the window, oldest first.
func (w Window) MonthKeys() []MonthKey {
	keys := make([]MonthKey, 0, w.Months)
	for m := w.Start; m.Before(w.End); m = m.AddDate(0, 1, 0) {
		keys = append(keys, MonthOf(m))
	}
	return keys
}
