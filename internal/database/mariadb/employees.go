package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// EmployeeRepository reads employees and their reference images
type EmployeeRepository struct {
	pool    *Pool
	company string
}

// NewEmployeeRepository creates a repository scoped to company (all companies when empty)
func NewEmployeeRepository(pool *Pool, company string) *EmployeeRepository {
	return &EmployeeRepository{pool: pool, company: company}
}

// ListIdentitiesWithImages returns every employee of the company that has a reference image
func (r *EmployeeRepository) ListIdentitiesWithImages(ctx context.Context) ([]database.EmployeeImage, error) {
	query := `
		SELECT CAST(id AS CHAR), name, company, image
		FROM employees
		WHERE image IS NOT NULL AND LENGTH(image) > 0
		  AND (? = '' OR company = ?)
		ORDER BY id
	`

	rows, err := r.pool.db.QueryContext(ctx, query, r.company, r.company)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var images []database.EmployeeImage
	for rows.Next() {
		var img database.EmployeeImage
		if err := rows.Scan(&img.EmployeeID, &img.Name, &img.Company, &img.Image); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return images, nil
}

// CreateEmployee inserts an employee with a reference image and returns its ID
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, name, company string, image []byte) (string, error) {
	result, err := r.pool.db.ExecContext(ctx,
		"INSERT INTO employees (name, company, image) VALUES (?, ?, ?)",
		name, company, image,
	)
	if err != nil {
		return "", fmt.Errorf("create employee: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("create employee: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}
