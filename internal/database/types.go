package database

import (
	"fmt"
	"time"

	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/pool"
)

// Type identifies the database engine behind a connection.
type Type string

const (
	TypePostgres Type = "postgres"
	TypeMySQL    Type = "mysql"
	TypeSQLite   Type = "sqlite"
	TypeMongoDB  Type = "mongodb"
	TypeRedis    Type = "redis"
	TypeDemo     Type = "demo"
)

// KnownTypes lists every type a descriptor may carry, implemented or not.
var KnownTypes = []Type{TypePostgres, TypeMySQL, TypeSQLite, TypeMongoDB, TypeRedis, TypeDemo}

// Known reports whether t is one of KnownTypes.
func (t Type) Known() bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Descriptor identifies a database to connect to. It is a value: the
// providers never modify it.
type Descriptor struct {
	ID               string    `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	Type             Type      `json:"type" yaml:"type"`
	Host             string    `json:"host,omitempty" yaml:"host"`
	Port             int       `json:"port,omitempty" yaml:"port"`
	User             string    `json:"user,omitempty" yaml:"user"`
	Password         string    `json:"password,omitempty" yaml:"password"`
	Database         string    `json:"database,omitempty" yaml:"database"`
	ConnectionString string    `json:"connectionString,omitempty" yaml:"connection_string"`
	CreatedAt        time.Time `json:"createdAt,omitempty" yaml:"created_at"`
	IsDemo           bool      `json:"isDemo,omitempty" yaml:"is_demo"`
}

// Redacted returns a copy that is safe to log.
func (d Descriptor) Redacted() Descriptor {
	if d.Password != "" {
		d.Password = logger.Redacted
	}
	d.ConnectionString = logger.RedactConnectionString(d.ConnectionString)
	return d
}

// Target is a short host:port/database label for log lines.
func (d Descriptor) Target() string {
	switch {
	case d.ConnectionString != "":
		return logger.RedactConnectionString(d.ConnectionString)
	case d.Host == "":
		return d.Database
	case d.Port == 0:
		return fmt.Sprintf("%s/%s", d.Host, d.Database)
	default:
		return fmt.Sprintf("%s:%d/%s", d.Host, d.Port, d.Database)
	}
}

// Options tune a provider at construction time.
type Options struct {
	Pool         *pool.Overrides `json:"pool,omitempty" yaml:"pool"`
	QueryTimeout time.Duration   `json:"queryTimeout,omitempty" yaml:"query_timeout"`
	SSL          bool            `json:"ssl,omitempty" yaml:"ssl"`
	Timezone     string          `json:"timezone,omitempty" yaml:"timezone"`
}

// State is the lifecycle position of a provider.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ConnectionState is a point-in-time copy of a provider's lifecycle fields.
type ConnectionState struct {
	State         State     `json:"state"`
	Connected     bool      `json:"connected"`
	LastConnected time.Time `json:"lastConnected,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	ActiveQueries int64     `json:"activeQueries"`
}

// QueryResult is the outcome of a single Query call.
type QueryResult struct {
	Rows            []map[string]any `json:"rows"`
	Fields          []string         `json:"fields"`
	RowCount        int              `json:"rowCount"`
	RowsAffected    int64            `json:"rowsAffected,omitempty"`
	ExecutionTimeMs int64            `json:"executionTime"`
	Plan            any              `json:"plan,omitempty"`
}

// TableSchema describes a table, view or collection.
type TableSchema struct {
	Schema      string             `json:"schema,omitempty"`
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	Columns     []ColumnSchema     `json:"columns"`
	Indexes     []IndexSchema      `json:"indexes"`
	ForeignKeys []ForeignKeySchema `json:"foreignKeys"`
	RowCount    *int64             `json:"rowCount,omitempty"`
}

type ColumnSchema struct {
	Name       string  `json:"name"`
	DataType   string  `json:"dataType"`
	Nullable   bool    `json:"nullable"`
	PrimaryKey bool    `json:"primaryKey"`
	Unique     bool    `json:"unique"`
	Default    *string `json:"default,omitempty"`
	MaxLength  *int    `json:"maxLength,omitempty"`
}

type IndexSchema struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Primary bool     `json:"primary"`
}

type ForeignKeySchema struct {
	Name      string `json:"name"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefTable  string `json:"refTable"`
	RefColumn string `json:"refColumn"`
}

// HealthInfo is the simple health snapshot returned by GetHealth.
type HealthInfo struct {
	Status            string    `json:"status"`
	Version           string    `json:"version"`
	Uptime            string    `json:"uptime"`
	ActiveConnections int       `json:"activeConnections"`
	MaxConnections    int       `json:"maxConnections"`
	DatabaseSize      string    `json:"databaseSize"`
	ResponseTimeMs    int64     `json:"responseTime"`
	CheckedAt         time.Time `json:"checkedAt"`
}

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// MaintenanceKind is an administrative action distinct from a data query.
type MaintenanceKind string

const (
	MaintenanceVacuum   MaintenanceKind = "vacuum"
	MaintenanceAnalyze  MaintenanceKind = "analyze"
	MaintenanceReindex  MaintenanceKind = "reindex"
	MaintenanceKill     MaintenanceKind = "kill"
	MaintenanceOptimize MaintenanceKind = "optimize"
	MaintenanceCheck    MaintenanceKind = "check"
)

var maintenanceKinds = []MaintenanceKind{
	MaintenanceVacuum, MaintenanceAnalyze, MaintenanceReindex,
	MaintenanceKill, MaintenanceOptimize, MaintenanceCheck,
}

// Valid reports whether k is one of the six maintenance kinds.
func (k MaintenanceKind) Valid() bool {
	for _, m := range maintenanceKinds {
		if m == k {
			return true
		}
	}
	return false
}

// MaintenanceResult reports the outcome of RunMaintenance.
type MaintenanceResult struct {
	Kind       MaintenanceKind `json:"type"`
	Target     string          `json:"target,omitempty"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	DurationMs int64           `json:"duration"`
	Details    []string        `json:"details,omitempty"`
}

// Overview is the headline section of a monitoring snapshot.
type Overview struct {
	Version           string `json:"version"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
	Uptime            string `json:"uptime"`
	ActiveConnections int    `json:"activeConnections"`
	IdleConnections   int    `json:"idleConnections"`
	MaxConnections    int    `json:"maxConnections"`
	DatabaseSize      int64  `json:"databaseSizeBytes"`
	DatabaseSizeHuman string `json:"databaseSize"`
	TableCount        int    `json:"tableCount"`
	IndexCount        int    `json:"indexCount"`
}

type PerformanceMetrics struct {
	CacheHitRatio       float64 `json:"cacheHitRatio"`
	TransactionsPerSec  float64 `json:"transactionsPerSecond"`
	QueriesPerSec       float64 `json:"queriesPerSecond"`
	BufferPoolUsage     float64 `json:"bufferPoolUsage"`
	Deadlocks           int64   `json:"deadlocks"`
	Commits             int64   `json:"commits"`
	Rollbacks           int64   `json:"rollbacks"`
	TempFiles           int64   `json:"tempFiles"`
	CheckpointsRequired int64   `json:"checkpointsRequired"`
}

type SlowQuery struct {
	Query       string  `json:"query"`
	Calls       int64   `json:"calls"`
	TotalTimeMs float64 `json:"totalTime"`
	MeanTimeMs  float64 `json:"meanTime"`
	MaxTimeMs   float64 `json:"maxTime"`
	Rows        int64   `json:"rows"`
}

type ActiveSession struct {
	ID         string     `json:"id"`
	User       string     `json:"user"`
	Database   string     `json:"database"`
	ClientAddr string     `json:"clientAddr,omitempty"`
	State      string     `json:"state"`
	Query      string     `json:"query"`
	DurationMs int64      `json:"duration"`
	WaitEvent  string     `json:"waitEvent,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
}

type TableStats struct {
	Schema      string     `json:"schema"`
	Name        string     `json:"name"`
	RowCount    int64      `json:"rowCount"`
	TotalSize   int64      `json:"totalSize"`
	TableSize   int64      `json:"tableSize"`
	IndexSize   int64      `json:"indexSize"`
	SeqScans    int64      `json:"seqScans"`
	IndexScans  int64      `json:"indexScans"`
	DeadRows    int64      `json:"deadRows"`
	LastVacuum  *time.Time `json:"lastVacuum,omitempty"`
	LastAnalyze *time.Time `json:"lastAnalyze,omitempty"`
}

type IndexStats struct {
	Schema        string `json:"schema"`
	Table         string `json:"table"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	Scans         int64  `json:"scans"`
	TuplesRead    int64  `json:"tuplesRead"`
	TuplesFetched int64  `json:"tuplesFetched"`
	Unique        bool   `json:"unique"`
	Unused        bool   `json:"unused"`
}

// StorageStats carries sizes in bytes. Zero means the backend cannot tell.
type StorageStats struct {
	DatabaseSize int64 `json:"databaseSize"`
	DataSize     int64 `json:"dataSize"`
	IndexSize    int64 `json:"indexSize"`
	LogSize      int64 `json:"logSize"`
	FreeSpace    int64 `json:"freeSpace"`
}

// MonitoringData is one timestamped monitoring snapshot. The optional
// sections are nil when they were not requested.
type MonitoringData struct {
	Timestamp      time.Time           `json:"timestamp"`
	Overview       *Overview           `json:"overview"`
	Performance    *PerformanceMetrics `json:"performance"`
	SlowQueries    []SlowQuery         `json:"slowQueries"`
	ActiveSessions []ActiveSession     `json:"activeSessions"`
	Tables         []TableStats        `json:"tables"`
	Indexes        []IndexStats        `json:"indexes"`
	Storage        *StorageStats       `json:"storage,omitempty"`
	SectionErrors  map[string]string   `json:"sectionErrors,omitempty"`
}
