package alerts

import (
	"fmt"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

const maxTitleLength = 500

// validateIngest checks a candidate alert before it enters the engine.
func validateIngest(req *IngestRequest) error {
	if req.Type == "" {
		return fmt.Errorf("type is required")
	}
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(req.Title) > maxTitleLength {
		return fmt.Errorf("title exceeds %d characters", maxTitleLength)
	}
	if req.SourceEntityType == "" || req.SourceEntityID == "" {
		return fmt.Errorf("source_entity_type and source_entity_id are required")
	}
	switch models.Severity(req.Severity) {
	case "", models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		return fmt.Errorf("unknown severity %q", req.Severity)
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		return fmt.Errorf("risk_score must be between 0 and 100")
	}
	if req.ImpactScore < 0 || req.ImpactScore > 100 {
		return fmt.Errorf("impact_score must be between 0 and 100")
	}
	return nil
}
