package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/models"
)

// HeadcountReport summarizes one employee-linking pass.
type HeadcountReport struct {
	AssetsLinked      int `json:"assets_linked"`
	AssetsUnlinked    int `json:"assets_unlinked"`
	DepartmentsLinked int `json:"departments_linked"`
}

// LinkEmployees pairs staged assets with active employees by name similarity
// and backfills each employee's department link. Asset name fields are
// free text from the ITSM platform (logged-in user, requester), so both are
// cleaned and fuzzy-matched against the roster.
func (e *Engine) LinkEmployees(ctx context.Context) (*HeadcountReport, error) {
	ctx, span := e.tracer.Start(ctx, "recon.link_employees")
	defer span.End()

	employees, err := models.GetActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}
	assets, err := models.GetAssets(ctx)
	if err != nil {
		return nil, err
	}

	report := &HeadcountReport{}
	for _, asset := range assets {
		employeeId, ok := matchEmployee(asset, employees, e.headcount)
		if !ok {
			report.AssetsUnlinked++
			continue
		}
		if asset.EmployeeId != nil && *asset.EmployeeId == employeeId {
			report.AssetsLinked++
			continue
		}
		if err := models.SetAssetEmployee(ctx, asset.ID, &employeeId); err != nil {
			config.LogError(e.logger, "workflow", "LinkEmployees", "asset employee update failed", map[string]any{
				"asset_id":    asset.ID,
				"employee_id": employeeId,
			}, err)
			report.AssetsUnlinked++
			continue
		}
		report.AssetsLinked++
	}

	for _, emp := range employees {
		if emp.DepartmentName == "" || emp.DepartmentId != nil {
			continue
		}
		dept, err := models.GetDepartmentByName(ctx, emp.DepartmentName)
		if err != nil {
			config.LogError(e.logger, "workflow", "LinkEmployees", "department lookup failed", map[string]any{
				"employee_id": emp.ID,
				"department":  emp.DepartmentName,
			}, err)
			continue
		}
		if dept == nil {
			continue
		}
		if err := models.SetEmployeeDepartment(ctx, emp.ID, &dept.ID); err != nil {
			config.LogError(e.logger, "workflow", "LinkEmployees", "employee department update failed", map[string]any{
				"employee_id":   emp.ID,
				"department_id": dept.ID,
			}, err)
			continue
		}
		report.DepartmentsLinked++
	}

	return report, nil
}

// matchEmployee compares the asset's user name fields against every active
// employee. The best score wins; ties go to the lower employee id so repeated
// passes always produce the same link. Below the threshold nothing links.
func matchEmployee(asset models.Asset, employees []models.Employee, threshold int) (int, bool) {
	names := []string{
		matching.CleanText(asset.LastLoggedUsername),
		matching.CleanText(asset.RequesterName),
	}

	bestScore := 0
	bestId := 0
	for _, emp := range employees {
		full := matching.CleanText(emp.FullName)
		if full == "" {
			continue
		}
		for _, name := range names {
			if name == "" {
				continue
			}
			score := matching.Ratio(name, full)
			if score > bestScore || (score == bestScore && bestId != 0 && emp.ID < bestId) {
				bestScore = score
				bestId = emp.ID
			}
		}
	}

	if bestScore < threshold || bestId == 0 {
		return 0, false
	}
	return bestId, true
}
