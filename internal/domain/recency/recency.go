// Package recency decides whether comparables are fresh and sound enough to
// take part in a valuation.
package recency

import (
	"fmt"
	"time"

	"github.com/okian/comparo/internal/domain/model"
)

const (
	// MaxAgeMonths is the hard limit; older comparables are excluded.
	MaxAgeMonths = 24
	// DefaultWarnMonths is the age above which a comparable is flagged.
	DefaultWarnMonths = 12
)

// Clock returns the current time.
type Clock func() time.Time

// Result is the freshness verdict of one date.
type Result struct {
	Valid     bool    `json:"valid"`
	AgeMonths int     `json:"ageMonths"`
	Warning   *string `json:"warning,omitempty"`
}

// Checker applies the recency and integrity rules.
type Checker struct {
	now        Clock
	warnMonths int
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(ch *Checker) {
		if c != nil {
			ch.now = c
		}
	}
}

// WithWarnMonths overrides the warning threshold.
func WithWarnMonths(m int) Option {
	return func(ch *Checker) {
		if m > 0 {
			ch.warnMonths = m
		}
	}
}

// New returns a Checker using the wall clock and the default threshold.
func New(opts ...Option) *Checker {
	c := &Checker{now: time.Now, warnMonths: DefaultWarnMonths}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the checker's current time.
func (c *Checker) Now() time.Time { return c.now() }

// AgeMonths counts whole calendar months elapsed from date to now.
func AgeMonths(date, now time.Time) int {
	date, now = date.UTC(), now.UTC()
	months := (now.Year()-date.Year())*12 + int(now.Month()-date.Month())
	// not a full month yet if the day (or time within the day) hasn't come round
	anniversary := date.AddDate(0, months, 0)
	if anniversary.After(now) {
		months--
	}
	return months
}

// Validate returns the verdict for date. warnMonths <= 0 uses the checker
// default. A date older than MaxAgeMonths is invalid; one older than the
// warning threshold is valid with a warning. A future date is invalid.
func (c *Checker) Validate(date time.Time, warnMonths int) Result {
	if warnMonths <= 0 {
		warnMonths = c.warnMonths
	}
	now := c.now()
	if date.After(now) {
		msg := "dated in the future"
		return Result{Valid: false, Warning: &msg}
	}
	age := AgeMonths(date, now)
	res := Result{Valid: age <= MaxAgeMonths, AgeMonths: age}
	if res.Valid && age > warnMonths {
		msg := fmt.Sprintf("comparable is %d months old (warning threshold %d)", age, warnMonths)
		res.Warning = &msg
	}
	return res
}

// Outcome of screening a set of candidates.
type Outcome struct {
	Kept          []model.Comparable
	Warnings      []model.Warning
	StaleExcluded int
	Invalid       int
}

// Screen drops stale and unsound comparables, keeping order.
// Stale ones are counted silently; unsound ones produce a warning.
func (c *Checker) Screen(cands []model.Comparable, warnMonths int) Outcome {
	now := c.now()
	var out Outcome
	out.Kept = make([]model.Comparable, 0, len(cands))
	for _, comp := range cands {
		if reason := integrity(comp, now); reason != "" {
			out.Invalid++
			out.Warnings = append(out.Warnings, model.Warning{
				Code: model.WarnInvalidComparable, CompID: comp.ID, Message: reason,
			})
			continue
		}
		res := c.Validate(comp.Date, warnMonths)
		if !res.Valid {
			out.StaleExcluded++
			continue
		}
		if res.Warning != nil {
			out.Warnings = append(out.Warnings, model.Warning{
				Code: model.WarnRecency, CompID: comp.ID, Message: *res.Warning,
			})
		}
		out.Kept = append(out.Kept, comp)
	}
	return out
}

func integrity(c model.Comparable, now time.Time) string {
	switch {
	case c.Date.IsZero():
		return "missing date"
	case c.Date.After(now):
		return "dated in the future"
	case c.Price <= 0:
		return "non-positive price"
	case c.Sqm <= 0:
		return "non-positive sqm"
	}
	return ""
}
