package store

// query.go serves the read endpoints for imported records: paginated,
// sorted and searchable listings over the employees and projects tables.
// Identifiers are whitelisted and quoted; user input only ever travels as
// query arguments.

import (
	"context"
	"fmt"
	"strings"

	"github.com/rkowalik/staffimport/internal/ingest"
)

// ListParams selects a page of imported records.
type ListParams struct {
	Page   int    // 1-based
	Size   int
	SortBy string // whitelisted column, default is the natural key
	Order  string // asc or desc
	Search string // substring match on the name column
	Filter string // department_name for employees, status for projects
}

// ListResult carries one page plus the unpaginated total.
type ListResult[T any] struct {
	Items []T
	Total int64
	Page  int
	Size  int
}

var employeeSortColumns = map[string]bool{
	"employee_id":       true,
	"name":              true,
	"department_name":   true,
	"salary":            true,
	"annual_salary_eur": true,
	"hire_date":         true,
	"tenure_years":      true,
}

var projectSortColumns = map[string]bool{
	"project_id":   true,
	"project_name": true,
	"budget_usd":   true,
	"start_date":   true,
	"status":       true,
}

// ListEmployees returns a page of imported employees. Search matches the
// name, filter matches department_name exactly.
func (s *Store) ListEmployees(ctx context.Context, params ListParams) (*ListResult[ingest.EmployeeRecord], error) {
	where, args := buildListWhere(params, "name", "department_name")
	orderBy := buildOrderBy(params, employeeSortColumns, "employee_id")
	page, size, limitArgs := pageArgs(params, len(args))

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM employees`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count employees: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT employee_id, name, department_code, salary, hire_date,
			department_name, annual_salary_eur, tenure_years
		FROM employees%s ORDER BY %s %s`, where, orderBy, limitArgs)
	args = append(args, size, (page-1)*size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	items := []ingest.EmployeeRecord{}
	for rows.Next() {
		var rec ingest.EmployeeRecord
		err := rows.Scan(
			&rec.EmployeeID, &rec.Name, &rec.DepartmentCode, &rec.Salary, &rec.HireDate,
			&rec.DepartmentName, &rec.AnnualSalaryEUR, &rec.TenureYears,
		)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &ListResult[ingest.EmployeeRecord]{Items: items, Total: total, Page: page, Size: size}, nil
}

// ListProjects returns a page of imported projects. Search matches the
// project_name, filter matches status exactly.
func (s *Store) ListProjects(ctx context.Context, params ListParams) (*ListResult[ingest.ProjectRecord], error) {
	where, args := buildListWhere(params, "project_name", "status")
	orderBy := buildOrderBy(params, projectSortColumns, "project_id")
	page, size, limitArgs := pageArgs(params, len(args))

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT project_id, project_name, budget_usd, start_date, status
		FROM projects%s ORDER BY %s %s`, where, orderBy, limitArgs)
	args = append(args, size, (page-1)*size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	items := []ingest.ProjectRecord{}
	for rows.Next() {
		var rec ingest.ProjectRecord
		err := rows.Scan(&rec.ProjectID, &rec.ProjectName, &rec.BudgetUSD, &rec.StartDate, &rec.Status)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &ListResult[ingest.ProjectRecord]{Items: items, Total: total, Page: page, Size: size}, nil
}

func buildListWhere(params ListParams, searchColumn, filterColumn string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if params.Search != "" {
		args = append(args, "%"+params.Search+"%")
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", quoteIdentifier(searchColumn), len(args)))
	}
	if params.Filter != "" {
		args = append(args, params.Filter)
		conds = append(conds, fmt.Sprintf("%s = $%d", quoteIdentifier(filterColumn), len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildOrderBy(params ListParams, allowed map[string]bool, fallback string) string {
	col := params.SortBy
	if !allowed[col] {
		col = fallback
	}
	dir := strings.ToLower(params.Order)
	if dir != "asc" && dir != "desc" {
		dir = "asc"
	}
	return quoteIdentifier(col) + " " + dir
}

// pageArgs normalizes paging and renders the LIMIT/OFFSET placeholders that
// follow the filter arguments.
func pageArgs(params ListParams, argCount int) (page, size int, clause string) {
	page, size = params.Page, params.Size
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	return page, size, fmt.Sprintf("LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
