package timespan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goodtune/worklog/internal/storage"
)

// ErrInvalidRequest is returned when an operation is rejected before any
// state changes.
var ErrInvalidRequest = errors.New("invalid request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func missingFields(fields []string) error {
	return invalidf("missing required fields: %s", strings.Join(fields, ", "))
}

func entryNotFound(id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("log entry %d: %w", id, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to load log entry %d: %w", id, err)
}

func spanNotFound(id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("time span %d: %w", id, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to load time span %d: %w", id, err)
}
