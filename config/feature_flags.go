package config

// Features toggles the background components main wires up. Everything is on
// by default; the toggles exist so a maintenance run or an incident can shut
// one path down without a rebuild.
type Features struct {
	// CatalogRefresh registers the periodic catalog sync job.
	CatalogRefresh bool

	// WaitingMonitor registers the vacancy-polling job for Waiting courses.
	WaitingMonitor bool

	// OperatorBot starts the long-polling command interface. Notifications
	// are delivered either way; with the bot off the inline buttons simply
	// have no consumer.
	OperatorBot bool

	// HealthServer exposes the liveness and readiness endpoints.
	HealthServer bool
}

// loadFeatures reads the toggles from the environment.
func loadFeatures() Features {
	return Features{
		CatalogRefresh: getEnvBool("FEATURE_CATALOG_REFRESH", true),
		WaitingMonitor: getEnvBool("FEATURE_WAITING_MONITOR", true),
		OperatorBot:    getEnvBool("FEATURE_OPERATOR_BOT", true),
		HealthServer:   getEnvBool("FEATURE_HEALTH_SERVER", true),
	}
}
