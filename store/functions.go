package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planforge/planforge/fault"
)

// NextFunctionCode returns the zero-padded successor of the project's
// highest function code ("F001" when the project has none).
func (s *Store) NextFunctionCode(ctx context.Context, projectID uuid.UUID) (string, error) {
	return nextFunctionCode(s.db.WithContext(ctx), projectID)
}

// nextFunctionCode computes the successor inside the caller's transaction so
// concurrent inserts cannot race past each other.
func nextFunctionCode(tx *gorm.DB, projectID uuid.UUID) (string, error) {
	var codes []string
	err := tx.Model(&StructuredFunction{}).
		Where("project_id = ?", projectID).
		Order("LENGTH(function_code) DESC, function_code DESC").
		Limit(1).
		Pluck("function_code", &codes).Error
	if err != nil {
		return "", fmt.Errorf("query max function code: %w", err)
	}
	if len(codes) == 0 {
		return "F001", nil
	}

	n, err := strconv.Atoi(strings.TrimPrefix(codes[0], "F"))
	if err != nil {
		return "", fmt.Errorf("malformed function code %q: %w", codes[0], err)
	}
	return fmt.Sprintf("F%03d", n+1), nil
}

// CreateFunction persists one manually authored function, assigning its code
// within the insert transaction.
func (s *Store) CreateFunction(ctx context.Context, f *StructuredFunction) error {
	if f.ProjectID == uuid.Nil {
		return fault.NewValidationError("project_id", "must not be empty")
	}
	if f.FunctionName == "" {
		return fault.NewValidationError("function_name", "must not be empty")
	}
	if !IsValidCategory(f.Category) {
		return fault.NewValidationErrorf("category", "unknown category %q", f.Category)
	}
	if !IsValidPriority(f.Priority) {
		return fault.NewValidationErrorf("priority", "unknown priority %q", f.Priority)
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockProject(tx, f.ProjectID); err != nil {
			return err
		}
		code, err := nextFunctionCode(tx, f.ProjectID)
		if err != nil {
			return err
		}
		f.FunctionCode = code
		if err := tx.Create(f).Error; err != nil {
			return fmt.Errorf("create function: %w", err)
		}
		return nil
	})
}

// BulkCreateFunctions persists a structuring run's functions and their
// dependency edges in one transaction. Codes continue from the project's
// current maximum in slice order. Functions may carry pre-assigned IDs so
// that edges can reference them; edges must connect functions of this batch
// or existing functions of the same project.
func (s *Store) BulkCreateFunctions(ctx context.Context, projectID uuid.UUID, functions []StructuredFunction, dependencies []FunctionDependency) error {
	for i := range functions {
		f := &functions[i]
		if !IsValidCategory(f.Category) {
			return fault.NewValidationErrorf("category", "unknown category %q", f.Category)
		}
		if !IsValidPriority(f.Priority) {
			return fault.NewValidationErrorf("priority", "unknown priority %q", f.Priority)
		}
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}

		known := make(map[uuid.UUID]bool)
		var existing []uuid.UUID
		if err := tx.Model(&StructuredFunction{}).Where("project_id = ?", projectID).
			Pluck("id", &existing).Error; err != nil {
			return fmt.Errorf("list existing functions: %w", err)
		}
		for _, id := range existing {
			known[id] = true
		}

		code, err := nextFunctionCode(tx, projectID)
		if err != nil {
			return err
		}
		n, _ := strconv.Atoi(strings.TrimPrefix(code, "F"))

		for i := range functions {
			f := &functions[i]
			f.ProjectID = projectID
			f.FunctionCode = fmt.Sprintf("F%03d", n+i)
			if f.ID == uuid.Nil {
				f.ID = uuid.New()
			}
			known[f.ID] = true
			if err := tx.Create(f).Error; err != nil {
				return fmt.Errorf("create function %s: %w", f.FunctionCode, err)
			}
		}

		for i := range dependencies {
			d := &dependencies[i]
			d.ProjectID = projectID
			if d.SourceFunctionID == d.TargetFunctionID {
				return fault.NewConsistencyViolation("function_dependency", "self-loop")
			}
			if !known[d.SourceFunctionID] || !known[d.TargetFunctionID] {
				return fault.NewConsistencyViolationf("function_dependency",
					"edge references a function outside project %s", projectID)
			}
			if err := tx.Create(d).Error; err != nil {
				return fmt.Errorf("create dependency: %w", err)
			}
		}
		return nil
	})
}

// GetFunction retrieves a function by ID.
func (s *Store) GetFunction(ctx context.Context, id uuid.UUID) (*StructuredFunction, error) {
	var f StructuredFunction
	err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NewValidationErrorf("function_id", "function %s not found", id)
		}
		return nil, fmt.Errorf("get function: %w", err)
	}
	return &f, nil
}

// ListFunctions returns a project's functions in display order.
func (s *Store) ListFunctions(ctx context.Context, projectID uuid.UUID) ([]StructuredFunction, error) {
	var functions []StructuredFunction
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("order_index ASC, function_code ASC").
		Find(&functions).Error
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	return functions, nil
}

// FunctionChanges carries a partial update; nil fields are left untouched.
type FunctionChanges struct {
	FunctionName         *string
	Description          *string
	Category             *string
	Priority             *string
	ExtractionConfidence *float64
	OrderIndex           *int
}

// UpdateFunction applies a partial update to one function.
func (s *Store) UpdateFunction(ctx context.Context, id uuid.UUID, changes FunctionChanges) error {
	updates := map[string]any{}
	if changes.FunctionName != nil {
		if *changes.FunctionName == "" {
			return fault.NewValidationError("function_name", "must not be empty")
		}
		updates["function_name"] = *changes.FunctionName
	}
	if changes.Description != nil {
		updates["description"] = *changes.Description
	}
	if changes.Category != nil {
		if !IsValidCategory(*changes.Category) {
			return fault.NewValidationErrorf("category", "unknown category %q", *changes.Category)
		}
		updates["category"] = *changes.Category
	}
	if changes.Priority != nil {
		if !IsValidPriority(*changes.Priority) {
			return fault.NewValidationErrorf("priority", "unknown priority %q", *changes.Priority)
		}
		updates["priority"] = *changes.Priority
	}
	if changes.ExtractionConfidence != nil {
		updates["extraction_confidence"] = clamp01(*changes.ExtractionConfidence)
	}
	if changes.OrderIndex != nil {
		updates["order_index"] = *changes.OrderIndex
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Model(&StructuredFunction{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update function: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("function_id", "function %s not found", id)
	}
	return nil
}

// DeleteFunction removes a function and every edge touching it.
func (s *Store) DeleteFunction(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var f StructuredFunction
		if err := tx.First(&f, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NewValidationErrorf("function_id", "function %s not found", id)
			}
			return fmt.Errorf("get function: %w", err)
		}
		if err := tx.Where("source_function_id = ? OR target_function_id = ?", id, id).
			Delete(&FunctionDependency{}).Error; err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		if err := tx.Delete(&f).Error; err != nil {
			return fmt.Errorf("delete function: %w", err)
		}
		return nil
	})
}

// CreateFunctionDependency persists one edge after validating both
// endpoints exist in the same project and the edge is not a self-loop.
func (s *Store) CreateFunctionDependency(ctx context.Context, d *FunctionDependency) error {
	if d.SourceFunctionID == d.TargetFunctionID {
		return fault.NewConsistencyViolation("function_dependency", "self-loop")
	}
	switch d.DependencyType {
	case "", DependencyRequires, DependencyBlocks, DependencyRelates:
	default:
		return fault.NewValidationErrorf("dependency_type", "unknown type %q", d.DependencyType)
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var endpoints []StructuredFunction
		if err := tx.Where("id IN ?", []uuid.UUID{d.SourceFunctionID, d.TargetFunctionID}).
			Find(&endpoints).Error; err != nil {
			return fmt.Errorf("load endpoints: %w", err)
		}
		if len(endpoints) != 2 {
			return fault.NewValidationError("function_dependency", "both endpoints must exist")
		}
		if endpoints[0].ProjectID != endpoints[1].ProjectID {
			return fault.NewConsistencyViolation("function_dependency", "endpoints belong to different projects")
		}
		d.ProjectID = endpoints[0].ProjectID
		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("create dependency: %w", err)
		}
		return nil
	})
}

// ListFunctionDependencies returns a project's function edges.
func (s *Store) ListFunctionDependencies(ctx context.Context, projectID uuid.UUID) ([]FunctionDependency, error) {
	var deps []FunctionDependency
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&deps).Error
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	return deps, nil
}

// DeleteFunctionDependency removes one edge.
func (s *Store) DeleteFunctionDependency(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&FunctionDependency{})
	if result.Error != nil {
		return fmt.Errorf("delete dependency: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NewValidationErrorf("dependency_id", "dependency %s not found", id)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
