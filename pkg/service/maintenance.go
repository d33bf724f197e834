package service

import (
	"context"
	"fmt"

	"onelink/pkg/logging"
	"onelink/pkg/storage"
)

// securedTables must all have row level security and at least one policy.
var securedTables = []string{
	"users",
	"accounts",
	"sessions",
	"verification_tokens",
	"onelinks",
	"text_contents",
	"code_contents",
	"file_contents",
	"bio_links",
}

type SecuritySummary struct {
	TablesWithRLS int `json:"tablesWithRLS"`
	TotalTables   int `json:"totalTables"`
	TotalPolicies int `json:"totalPolicies"`
}

type SecurityReport struct {
	Status  []storage.TableSecurity `json:"status"`
	Healthy bool                    `json:"healthy"`
	Summary SecuritySummary         `json:"summary"`
}

type MaintenanceService struct {
	inspector storage.SecurityInspector
	logger    *logging.Logger
}

func NewMaintenanceService(inspector storage.SecurityInspector, logger *logging.Logger) *MaintenanceService {
	return &MaintenanceService{inspector: inspector, logger: logger}
}

// SecurityStatus reports row level security coverage of the application tables.
func (s *MaintenanceService) SecurityStatus(ctx context.Context) (*SecurityReport, error) {
	status, err := s.inspector.TableSecurity(ctx, securedTables)
	if err != nil {
		return nil, fmt.Errorf("security status: %w", err)
	}

	report := &SecurityReport{Status: status, Healthy: true}
	report.Summary.TotalTables = len(status)
	for _, ts := range status {
		if ts.RLSEnabled {
			report.Summary.TablesWithRLS++
		} else {
			report.Healthy = false
		}
		if ts.PolicyCount == 0 {
			report.Healthy = false
		}
		report.Summary.TotalPolicies += ts.PolicyCount
	}

	if !report.Healthy {
		s.logger.Warn(ctx, "row level security incomplete",
			"tables_with_rls", report.Summary.TablesWithRLS,
			"total_tables", report.Summary.TotalTables,
		)
	}
	return report, nil
}
