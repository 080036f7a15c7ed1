package model

import (
	"strings"
	"time"
)

// MaxCompSetNameLen bounds CompSet.Name.
const MaxCompSetNameLen = 200

// CompSet is a named, curated collection of comparable ids.
type CompSet struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CompIDs         []string  `json:"compIds"`
	Client          *string   `json:"client,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	IsDefaultForAvm bool      `json:"isDefaultForAvm"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Validate checks the user supplied fields.
func (c CompSet) Validate() error {
	var errs ValidationErrors
	name := strings.TrimSpace(c.Name)
	if name == "" {
		errs = append(errs, NewValidationError("name", "is required"))
	} else if len(name) > MaxCompSetNameLen {
		errs = append(errs, NewValidationError("name", "must be at most 200 characters"))
	}
	if len(c.CompIDs) == 0 {
		errs = append(errs, NewValidationError("compIds", "must contain at least 1 id"))
	}
	for _, id := range c.CompIDs {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, NewValidationError("compIds", "must not contain blank ids"))
			break
		}
	}
	if c.Client != nil && strings.TrimSpace(*c.Client) == "" {
		errs = append(errs, NewValidationError("client", "must not be blank when set"))
	}
	return errs.errOrNil()
}
