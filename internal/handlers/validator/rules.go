package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewFlowValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("flow_name", nameValidator),
		},
		{
			Rule: registerFn("node_id", nodeIDValidator),
		},
	}
}

func NewCampaignValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("campaign_name", nameValidator),
		},
		{
			Rule: registerFn("execution_mode", executionModeValidator),
		},
		{
			Rule: registerFn("device_strategy", deviceStrategyValidator),
		},
		{
			Rule: registerFn("run_mode", runModeValidator),
		},
		{
			Rule: registerFn("pool_mode", poolModeValidator),
		},
	}
}

func NewCollectionValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("collection_name", nameValidator),
		},
	}
}

func NewDeviceReportValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("task_status", taskStatusValidator),
		},
		{
			Rule: registerFn("log_level", logLevelValidator),
		},
		{
			Rule: registerFn("device_status", deviceStatusValidator),
		},
	}
}
