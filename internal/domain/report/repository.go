// internal/domain/report/repository.go
package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
)

var (
	ErrConfigNotFound    = errors.New("report config not found")
	ErrGeneratedNotFound = errors.New("generated report not found")
)

// Repository defines persistence for report configs and generated reports.
type Repository interface {
	// Config methods
	GetConfigByID(ctx context.Context, id uuid.UUID) (*Config, error)
	// SaveConfig inserts the config when its ID is zero, otherwise updates it.
	SaveConfig(ctx context.Context, c *Config) error
	ListDueConfigs(ctx context.Context, now time.Time) ([]*Config, error)
	ListConfigsByStatus(ctx context.Context, status ConfigStatus) ([]*Config, error)

	// Generated report methods
	CreateGenerated(ctx context.Context, g *Generated) error
	UpdateGeneratedDelivery(ctx context.Context, g *Generated) error
	GetGeneratedByID(ctx context.Context, id uuid.UUID) (*Generated, error)
}

// Aggregator is the opaque data-aggregation collaborator.
// It must carry its own timeout; the pipeline only passes ctx through.
type Aggregator interface {
	Aggregate(ctx context.Context, window schedule.Window, orgID uuid.NullUUID) (json.RawMessage, error)
}
