package database

import "context"

// Provider is the uniform contract every backend implements for one
// connection. All layers above this package talk only to this interface,
// they never import a backend package directly.
//
// Every method may be called concurrently on the same instance.
type Provider interface {
	// Connect opens the backend's pool. Calling it while connected is a no-op.
	Connect(ctx context.Context) error

	// Disconnect releases every resource. Safe when never connected.
	Disconnect(ctx context.Context) error

	IsConnected() bool
	State() ConnectionState
	Descriptor() Descriptor

	// Validate checks the descriptor has the fields this backend needs.
	Validate() error

	// Query runs a command in the backend's native language. Failures are
	// always *errs.Error values; Query never retries.
	Query(ctx context.Context, command string, params ...any) (*QueryResult, error)

	GetSchema(ctx context.Context) ([]TableSchema, error)
	GetHealth(ctx context.Context) (*HealthInfo, error)

	// RunMaintenance performs an administrative action. An empty target
	// means everything, except for kill which requires one.
	RunMaintenance(ctx context.Context, kind MaintenanceKind, target string) (*MaintenanceResult, error)

	MonitoringSource
}

// MonitoringSource supplies the individual sections of a monitoring
// snapshot. Metrics a backend cannot provide come back empty rather than
// failing the call.
type MonitoringSource interface {
	GetOverview(ctx context.Context) (*Overview, error)
	GetPerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error)
	GetSlowQueries(ctx context.Context, limit int) ([]SlowQuery, error)
	GetActiveSessions(ctx context.Context, limit int) ([]ActiveSession, error)
	GetTableStats(ctx context.Context, schemaFilter string) ([]TableStats, error)
	GetIndexStats(ctx context.Context, schemaFilter string) ([]IndexStats, error)
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// SQLProvider is implemented by backends that speak SQL.
type SQLProvider interface {
	Provider
	Dialect() Dialect
}
