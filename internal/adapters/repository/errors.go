package repository

import (
	"fmt"

	"github.com/okian/comparo/internal/domain/model"
)

// Sentinel kinds for repository errors. Both satisfy errors.Is(err, model.ErrNotFound).
var (
	ErrComparableNotFound = fmt.Errorf("comparable %w", model.ErrNotFound)
	ErrCompSetNotFound    = fmt.Errorf("comp set %w", model.ErrNotFound)
)
