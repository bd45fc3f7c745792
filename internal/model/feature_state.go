package model

const FeatureMaintenanceMode = "MaintenanceMode"

// FeatureState is a named on/off switch persisted in feature_states.
type FeatureState struct {
	ID        string `db:"id"`
	IsEnabled bool   `db:"is_enabled"`
}
