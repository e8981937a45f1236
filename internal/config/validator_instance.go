package config

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	pipelineNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	stageNamePattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

	cronParser = cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// validatorInstance configures and returns the shared validator instance used
// across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("pipeline_name", func(fl validator.FieldLevel) bool {
			return pipelineNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("stage_name", func(fl validator.FieldLevel) bool {
			return stageNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
			expr := fl.Field().String()
			if expr == "" {
				return true
			}
			_, err := cronParser.Parse(expr)
			return err == nil
		})

		validateInst = v
	})

	return validateInst
}

// ParseCron parses a five-field cron expression with the parser shared by the
// config validator and the scheduler, so both accept the same grammar.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}
