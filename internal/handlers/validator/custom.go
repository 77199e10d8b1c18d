package validator

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// Names must start with an alphanumeric character. Spaces are fine in
	// the middle, operators name campaigns like "august provisioning run".
	resourceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ._-]*$`)

	// Node ids travel in task reports, keep them url and log friendly.
	nodeIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)
)

// stringField reads the field as a string regardless of the named string
// type the api layer declares for it.
func stringField(fl validator.FieldLevel) (string, bool) {
	if fl.Field().Kind() != reflect.String {
		return "", false
	}
	return fl.Field().String(), true
}

func nameValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}

	return resourceNameRegex.MatchString(val)
}

func nodeIDValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}

	return nodeIDRegex.MatchString(val)
}

func executionModeValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "sequential", "parallel":
		return true
	default:
		return false
	}
}

func deviceStrategyValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "round_robin", "random", "manual":
		return true
	default:
		return false
	}
}

func runModeValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "once", "repeat", "conditional":
		return true
	default:
		return false
	}
}

func poolModeValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "random", "sequential":
		return true
	default:
		return false
	}
}

func taskStatusValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "running":
		fallthrough
	case "completed":
		fallthrough
	case "failed":
		fallthrough
	case "skipped":
		return true
	default:
		return false
	}
}

func logLevelValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// deviceStatusValidator accepts the statuses a device may report about
// itself. Offline is derived server side from heartbeat age, never reported.
func deviceStatusValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	switch val {
	case "online", "busy":
		return true
	default:
		return false
	}
}
