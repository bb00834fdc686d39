package store

import "testing"

func TestBuildListWhere(t *testing.T) {
	where, args := buildListWhere(ListParams{}, "name", "department_name")
	if where != "" || len(args) != 0 {
		t.Errorf("empty params built %q with %d args", where, len(args))
	}

	where, args = buildListWhere(ListParams{Search: "nowak"}, "name", "department_name")
	if where != ` WHERE "name" ILIKE $1` {
		t.Errorf("search clause = %q", where)
	}
	if len(args) != 1 || args[0] != "%nowak%" {
		t.Errorf("search args = %v", args)
	}

	where, args = buildListWhere(ListParams{Search: "a", Filter: "Finance"}, "name", "department_name")
	if where != ` WHERE "name" ILIKE $1 AND "department_name" = $2` {
		t.Errorf("combined clause = %q", where)
	}
	if len(args) != 2 || args[1] != "Finance" {
		t.Errorf("combined args = %v", args)
	}
}

func TestBuildOrderBy(t *testing.T) {
	tests := []struct {
		name   string
		params ListParams
		want   string
	}{
		{"default", ListParams{}, `"employee_id" asc`},
		{"allowed column", ListParams{SortBy: "salary", Order: "desc"}, `"salary" desc`},
		{"unknown column falls back", ListParams{SortBy: "password", Order: "desc"}, `"employee_id" desc`},
		{"bad direction falls back", ListParams{SortBy: "name", Order: "sideways"}, `"name" asc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildOrderBy(tt.params, employeeSortColumns, "employee_id"); got != tt.want {
				t.Errorf("buildOrderBy = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageArgs(t *testing.T) {
	page, size, clause := pageArgs(ListParams{}, 0)
	if page != 1 || size != 20 {
		t.Errorf("defaults = page %d size %d, want 1 and 20", page, size)
	}
	if clause != "LIMIT $1 OFFSET $2" {
		t.Errorf("clause = %q", clause)
	}

	page, size, clause = pageArgs(ListParams{Page: 3, Size: 50}, 2)
	if page != 3 || size != 50 {
		t.Errorf("page %d size %d, want 3 and 50", page, size)
	}
	if clause != "LIMIT $3 OFFSET $4" {
		t.Errorf("clause = %q", clause)
	}

	if _, size, _ = pageArgs(ListParams{Size: 5000}, 0); size != 20 {
		t.Errorf("oversized page size = %d, want clamped to 20", size)
	}
}
