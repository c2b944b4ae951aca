package services

import (
	"fmt"

	"github.com/localnerve/librarydb/internal/config"
	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Authorizer   string            `json:"authorizer"`
	Broker       string            `json:"broker"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(component, message string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	if r.ErrorMessage == "" {
		r.ErrorMessage = fmt.Sprintf("%s: %v", message, err)
	} else {
		r.ErrorMessage += fmt.Sprintf("; %s: %v", message, err)
	}
}

// HealthCheck performs a comprehensive health check of the service.
// Optional collaborators that are not configured report "disabled".
// publisher may be nil when the caller has no broker connection of its own.
func HealthCheck(cfg *config.Config, db *gorm.DB, publisher events.Publisher, log *zap.Logger) HealthCheckResult {
	result := HealthCheckResult{
		Status:     "healthy",
		Authorizer: "disabled",
		Broker:     "disabled",
		Details:    make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.fail("database", "Database connection error", err)
		log.Warn("Health check failed - database connection", zap.Error(err))
	} else if err := sqlDB.Ping(); err != nil {
		result.Database = "unreachable"
		result.fail("database_ping", "Database ping failed", err)
		log.Warn("Health check failed - database ping", zap.Error(err))
	} else {
		result.Database = "ok"
		result.Details["database_type"] = cfg.DBType
		result.Details["database_name"] = cfg.DBAppDatabase
	}

	// Check Authorizer connectivity
	if cfg.AuthorizerEnabled() {
		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			result.fail("authorizer", "Authorizer ping failed", err)
			log.Warn("Health check failed - authorizer ping", zap.Error(err))
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = cfg.AuthzURL
		}
	}

	// Check the event broker
	if cfg.RabbitMQURL != "" {
		err := utils.PingBroker(cfg.RabbitMQURL)
		if err == nil && publisher != nil && !publisher.IsHealthy() {
			err = fmt.Errorf("publisher connection closed")
		}
		if err != nil {
			result.Broker = "unreachable"
			result.fail("broker", "Broker check failed", err)
			log.Warn("Health check failed - broker", zap.Error(err))
		} else {
			result.Broker = "ok"
		}
	}

	if result.Status == "healthy" {
		log.Debug("Health check passed - all systems operational")
	}

	return result
}
