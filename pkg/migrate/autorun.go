package migrate

import (
	"context"

	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// Ensure brings the store to the latest schema. Stores call it from Init
// before serving any other operation.
func Ensure(ctx context.Context, client *db.Client, logg *logger.Logger) (Report, error) {
	m, err := NewManager(client, logg)
	if err != nil {
		return Report{}, err
	}
	report, err := m.Run(ctx)
	if err != nil {
		return report, err
	}
	if logg != nil && report.From != report.To {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"from_version": report.From,
			"to_version":   report.To,
			"applied":      len(report.Applied),
			"skipped":      len(report.Skipped),
		}), "local schema migrated")
	}
	return report, nil
}
