package sheets

import (
	"context"

	"cashbook/internal/export"
)

// Ports for outbound adapters.
type (
	// TablePublisher replaces the contents of a named tab with a report table.
	TablePublisher interface {
		Publish(ctx context.Context, tab string, t export.Table) error
	}
)
