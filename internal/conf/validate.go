// validate.go: settings validation run after unmarshaling.
package conf

import (
	"github.com/jviitala/labelkit/internal/errors"
)

// ValidateSettings checks the loaded settings for values the rest of the
// application cannot work with.
func ValidateSettings(settings *Settings) error {
	if settings.Server.Port < 1 || settings.Server.Port > 65535 {
		return errors.Newf("server port %d out of range", settings.Server.Port).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Server.DataDir == "" {
		return errors.Newf("server data directory must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Server.ProjectsDir == "" {
		return errors.Newf("projects directory must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Export.TrainSplit < 0 || settings.Export.TrainSplit > 1 {
		return errors.Newf("export train split %.2f out of range [0,1]", settings.Export.TrainSplit).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Export.ValSplit < 0 || settings.Export.ValSplit > 1 {
		return errors.Newf("export val split %.2f out of range [0,1]", settings.Export.ValSplit).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Export.TrainSplit+settings.Export.ValSplit > 1.0 {
		return errors.Newf("export splits sum to %.2f, must not exceed 1.0",
			settings.Export.TrainSplit+settings.Export.ValSplit).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}
