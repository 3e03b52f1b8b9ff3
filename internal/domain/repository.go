// Package domain defines the core interfaces and types for SnapNEarn.
package domain

import (
	"context"
	"time"
)

// ReportStore is the persistence collaborator for reports and disputes.
//
// Update methods take the version the caller read. Implementations must
// write only if the stored version still matches, bump the version and
// return ErrConflict otherwise. Missing records yield *NotFoundError.
type ReportStore interface {
	// Report operations
	CreateReport(ctx context.Context, r *ViolationReport) error
	GetReport(ctx context.Context, id string) (*ViolationReport, error)
	UpdateReport(ctx context.Context, r *ViolationReport, expectedVersion int64) error
	ListReports(ctx context.Context, f ReportFilter) ([]*ViolationReport, error)
	CountReports(ctx context.Context, f ReportFilter) (int64, error)
	NearbyReports(ctx context.Context, q NearbyQuery) ([]*NearbyReport, error)
	ReportStats(ctx context.Context, since time.Time) (*ReportStats, error)
	DailyCounts(ctx context.Context, since time.Time) ([]DailyCount, error)
	PurgeReport(ctx context.Context, id string) error

	// Dispute operations. CreateDispute fails with ErrConflict when the
	// report already has a dispute.
	CreateDispute(ctx context.Context, d *Dispute) error
	GetDispute(ctx context.Context, id string) (*Dispute, error)
	GetDisputeByReport(ctx context.Context, reportID string) (*Dispute, error)
	UpdateDispute(ctx context.Context, d *Dispute, expectedVersion int64) error
	ListDisputes(ctx context.Context, f DisputeFilter) ([]*Dispute, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// SortField names a sortable report column.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
)

// ReportFilter selects reports for listing and counting.
type ReportFilter struct {
	Status        ReportStatus
	ViolationType ViolationType
	ReporterID    string
	NumberPlate   string
	ExcludeStatus ReportStatus
	CreatedFrom   time.Time
	CreatedTo     time.Time

	Page    int // 1-based
	Limit   int
	SortBy  SortField
	SortAsc bool
}

// Default and maximum page sizes for listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps paging and fills sort defaults.
func (f ReportFilter) Normalize() ReportFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.SortBy != SortUpdatedAt {
		f.SortBy = SortCreatedAt
	}
	return f
}

// Offset returns the number of rows skipped for the current page.
func (f ReportFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// DisputeFilter selects disputes for listing.
type DisputeFilter struct {
	Status DisputeStatus
	Limit  int
	Page   int
}

// NearbyQuery finds reports around a point.
type NearbyQuery struct {
	Longitude    float64
	Latitude     float64
	MaxDistanceM float64
	Limit        int
}

// Defaults for nearby lookups.
const (
	DefaultNearbyDistanceM = 5000
	DefaultNearbyLimit     = 20
)

// NearbyReport pairs a report with its distance from the query point.
type NearbyReport struct {
	Report    *ViolationReport `json:"report"`
	DistanceM float64          `json:"distanceMeters"`
}

// ReportStats summarises reports for the officer dashboard.
type ReportStats struct {
	Total        int64                   `json:"total"`
	ByStatus     map[ReportStatus]int64  `json:"byStatus"`
	ByType       map[ViolationType]int64 `json:"byType"`
	TotalFines   int64                   `json:"totalFines"`
	TotalRewards int64                   `json:"totalRewards"`
}

// DailyCount is one point of the daily submission trend.
type DailyCount struct {
	Day   string `json:"day"` // YYYY-MM-DD, UTC
	Count int64  `json:"count"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the store driver: "sqlite", "postgres", "mongo" or "memory"
	Driver string `mapstructure:"driver" json:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host" json:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgresPort"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgresUser"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDB       string `mapstructure:"postgres_db" json:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgresSslMode"`

	// MongoDB specific
	MongoURI      string `mapstructure:"mongo_uri" json:"-"`
	MongoDatabase string `mapstructure:"mongo_database" json:"mongoDatabase"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"connMaxLifetime"`
}
