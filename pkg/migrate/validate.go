package migrate

import (
	"fmt"
	"regexp"
)

var destructiveRe = regexp.MustCompile(`(?i)\b(drop|rename|truncate|delete|alter\s+column)\b`)

// Validate checks that versions start at 1 and are contiguous, and that
// every change only adds schema.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("ladder has no steps")
	}
	for i, step := range steps {
		if step.Version != i+1 {
			return fmt.Errorf("step %q has version %d, expected %d", step.Name, step.Version, i+1)
		}
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", step.Version)
		}
		if len(step.Changes) == 0 {
			return fmt.Errorf("step %d (%s) has no changes", step.Version, step.Name)
		}
		for _, change := range step.Changes {
			if err := validateChange(change); err != nil {
				return fmt.Errorf("step %d (%s): %w", step.Version, step.Name, err)
			}
		}
	}
	return nil
}

func validateChange(c Change) error {
	switch c.Kind {
	case KindCreateTable, KindAddColumn, KindCreateIndex:
		// Rendering against one dialect catches structural problems.
		_, err := c.SQL(DialectSQLite)
		return err
	case KindRaw:
		if destructiveRe.MatchString(c.Raw) {
			return fmt.Errorf("change %q is not additive", c.Raw)
		}
		_, err := c.SQL(DialectSQLite)
		return err
	}
	return fmt.Errorf("unknown change kind %q", c.Kind)
}
