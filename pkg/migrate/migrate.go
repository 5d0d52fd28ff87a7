package migrate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Manager walks the local schema from its stored version to the end of the ladder.
type Manager struct {
	client *db.Client
	logg   *logger.Logger
	steps  []Step
}

// Report summarises one Run.
type Report struct {
	From    int
	To      int
	Applied []string
	Skipped []string
}

// Status describes where the schema stands without changing it.
type Status struct {
	Current int
	Target  int
	Pending []string
}

// NewManager validates the ladder and binds it to a connection. When no steps
// are provided the built-in Ladder is used.
func NewManager(client *db.Client, logg *logger.Logger, steps ...Step) (*Manager, error) {
	if client == nil || client.DB() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStorageUnavailable, "db client is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if len(steps) == 0 {
		steps = Ladder()
	}
	if err := Validate(steps); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMigrationFailed, err, "invalid migration ladder")
	}
	return &Manager{client: client, logg: logg, steps: steps}, nil
}

// Target is the version the ladder ends at.
func (m *Manager) Target() int {
	return m.steps[len(m.steps)-1].Version
}

// CurrentVersion reads the persisted marker, treating a fresh store as 0.
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	return readVersion(m.client.DB().WithContext(ctx))
}

// Status reports the current version and the names of pending steps.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Current: current, Target: m.Target()}
	for _, step := range m.steps {
		if step.Version > current {
			st.Pending = append(st.Pending, fmt.Sprintf("%d_%s", step.Version, step.Name))
		}
	}
	return st, nil
}

// Run applies every pending step inside one transaction and writes the new
// version only after all of them succeed. A failure leaves the stored version
// untouched. Objects that already exist are logged and skipped.
func (m *Manager) Run(ctx context.Context) (Report, error) {
	dialect := m.client.Driver()
	var report Report

	err := m.client.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := readVersion(tx)
		if err != nil {
			return err
		}
		report.From = current
		report.To = current

		target := m.Target()
		if current >= target {
			if current > target {
				m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
					"current_version": current,
					"target_version":  target,
				}), "schema is newer than this build; leaving version as is")
			}
			return nil
		}

		for _, step := range m.steps {
			if step.Version <= current {
				continue
			}
			stepCtx := m.logg.WithFields(ctx, map[string]any{"step": step.Name, "version": step.Version})
			for i, change := range step.Changes {
				applied, err := m.apply(tx, dialect, step.Version, i, change)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeMigrationFailed, err,
						fmt.Sprintf("step %d (%s): %s", step.Version, step.Name, change.Describe())).
						WithDetails(map[string]any{"version": step.Version, "change": change.Describe()})
				}
				if applied {
					report.Applied = append(report.Applied, change.Describe())
				} else {
					report.Skipped = append(report.Skipped, change.Describe())
					m.logg.Info(m.logg.WithField(stepCtx, "change", change.Describe()), "schema object already exists; skipping")
				}
			}
			m.logg.Info(stepCtx, "migration step applied")
		}

		if err := writeVersion(tx, target); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeMigrationFailed, err, "persist schema version")
		}
		report.To = target
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeMigrationFailed, err, "run migrations")
		}
		return Report{From: report.From, To: report.From}, err
	}
	return report, nil
}

// apply runs one change under a savepoint so an "already exists" failure does
// not poison the surrounding transaction on postgres.
func (m *Manager) apply(tx *gorm.DB, dialect string, version, idx int, change Change) (bool, error) {
	stmt, err := change.SQL(dialect)
	if err != nil {
		return false, err
	}
	sp := fmt.Sprintf("mig_%d_%d", version, idx)
	if err := tx.SavePoint(sp).Error; err != nil {
		return false, err
	}
	if err := tx.Exec(stmt).Error; err != nil {
		if !db.IsAlreadyExists(err) {
			return false, err
		}
		if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
			return false, rbErr
		}
		return false, nil
	}
	return true, nil
}

func readVersion(conn *gorm.DB) (int, error) {
	if !conn.Migrator().HasTable(models.Meta{}.TableName()) {
		return 0, nil
	}
	var row models.Meta
	err := conn.Where("key = ?", models.MetaKeySchemaVersion).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "read schema version")
	}
	v, err := strconv.Atoi(row.Value)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeMigrationFailed, err, "schema version is not an integer")
	}
	return v, nil
}

func writeVersion(tx *gorm.DB, version int) error {
	row := models.Meta{Key: models.MetaKeySchemaVersion, Value: strconv.Itoa(version)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}
