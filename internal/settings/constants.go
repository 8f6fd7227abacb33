package settings

// Database-backed setting keys.
const (
	// AlertLadderKey maps alert levels to dollar thresholds in micros.
	AlertLadderKey = "alerts.ladder_micros"
	// AlertRetentionDaysKey bounds how long acknowledged alerts are kept.
	AlertRetentionDaysKey = "alerts.retention_days"
	// ExpensiveModelsKey lists models blocked by restrict_expensive actions.
	ExpensiveModelsKey = "enforcement.expensive_models"
)

// Defaults applied when a key is absent from the settings collection.
const (
	// DefaultAlertRetentionDays keeps acknowledged alerts for one quarter.
	DefaultAlertRetentionDays = 90
)
