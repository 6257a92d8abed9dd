package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planforge/planforge/fault"
)

// SeedTechCatalog loads master data idempotently: domains are keyed by
// name, stacks by (domain, name). Existing rows are left as-is.
func (s *Store) SeedTechCatalog(ctx context.Context, domains []TechDomain, stacks map[string][]TechStack) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		byName := make(map[string]uuid.UUID, len(domains))
		for i := range domains {
			d := domains[i]
			var existing TechDomain
			err := tx.Where("name = ?", d.Name).First(&existing).Error
			switch {
			case err == nil:
				byName[d.Name] = existing.ID
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&d).Error; err != nil {
					return fmt.Errorf("seed domain %q: %w", d.Name, err)
				}
				byName[d.Name] = d.ID
			default:
				return fmt.Errorf("check domain %q: %w", d.Name, err)
			}
		}

		for domainName, options := range stacks {
			domainID, ok := byName[domainName]
			if !ok {
				return fault.NewValidationErrorf("stacks", "unknown domain %q", domainName)
			}
			for i := range options {
				st := options[i]
				st.DomainID = domainID
				var count int64
				if err := tx.Model(&TechStack{}).
					Where("domain_id = ? AND name = ?", domainID, st.Name).
					Count(&count).Error; err != nil {
					return fmt.Errorf("check stack %q: %w", st.Name, err)
				}
				if count > 0 {
					continue
				}
				if err := tx.Create(&st).Error; err != nil {
					return fmt.Errorf("seed stack %q: %w", st.Name, err)
				}
			}
		}
		return nil
	})
}

// ListTechDomains returns all decision points in display order.
func (s *Store) ListTechDomains(ctx context.Context) ([]TechDomain, error) {
	var domains []TechDomain
	err := s.db.WithContext(ctx).Order("display_order ASC, name ASC").Find(&domains).Error
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return domains, nil
}

// ListTechStacks returns the option set of one domain.
func (s *Store) ListTechStacks(ctx context.Context, domainID uuid.UUID) ([]TechStack, error) {
	var stacks []TechStack
	err := s.db.WithContext(ctx).Where("domain_id = ?", domainID).
		Order("name ASC").Find(&stacks).Error
	if err != nil {
		return nil, fmt.Errorf("list stacks: %w", err)
	}
	return stacks, nil
}

// UpsertTechSelection writes a project's choice for one domain, replacing
// any previous selection.
func (s *Store) UpsertTechSelection(ctx context.Context, sel *TechSelection) error {
	if sel.ProjectID == uuid.Nil || sel.DomainID == uuid.Nil || sel.StackID == uuid.Nil {
		return fault.NewValidationError("tech_selection", "project, domain, and stack are required")
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var existing TechSelection
		err := tx.Where("project_id = ? AND domain_id = ?", sel.ProjectID, sel.DomainID).
			First(&existing).Error
		switch {
		case err == nil:
			sel.ID = existing.ID
			return tx.Model(&existing).Updates(map[string]any{
				"stack_id":   sel.StackID,
				"reason":     sel.Reason,
				"references": sel.References,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(sel).Error; err != nil {
				return fmt.Errorf("create selection: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("check selection: %w", err)
		}
	})
}

// ListTechSelections returns a project's selections.
func (s *Store) ListTechSelections(ctx context.Context, projectID uuid.UUID) ([]TechSelection, error) {
	var selections []TechSelection
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("created_at ASC").Find(&selections).Error
	if err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	return selections, nil
}
