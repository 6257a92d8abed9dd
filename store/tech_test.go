package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/planforge/planforge/fault"
)

func seedCatalog(t *testing.T, s *Store) []TechDomain {
	t.Helper()
	domains := []TechDomain{
		{Name: "database", Description: "Primary datastore", DisplayOrder: 2},
		{Name: "frontend", Description: "UI framework", DisplayOrder: 1},
	}
	stacks := map[string][]TechStack{
		"database": {
			{Name: "PostgreSQL", Homepage: "https://www.postgresql.org"},
			{Name: "SQLite", Homepage: "https://sqlite.org"},
		},
		"frontend": {
			{Name: "React", Homepage: "https://react.dev"},
		},
	}
	require.NoError(t, s.SeedTechCatalog(context.Background(), domains, stacks))

	got, err := s.ListTechDomains(context.Background())
	require.NoError(t, err)
	return got
}

func TestSeedTechCatalogIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seedCatalog(t, s)
	seedCatalog(t, s)

	domains, err := s.ListTechDomains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, 2)

	var stacks int64
	require.NoError(t, s.db.Model(&TechStack{}).Count(&stacks).Error)
	assert.Equal(t, int64(3), stacks)
}

func TestSeedTechCatalogRejectsUnknownDomain(t *testing.T) {
	s := testStore(t)

	err := s.SeedTechCatalog(context.Background(), nil, map[string][]TechStack{
		"backend": {{Name: "Gin"}},
	})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestListTechDomainsDisplayOrder(t *testing.T) {
	s := testStore(t)
	domains := seedCatalog(t, s)

	require.Len(t, domains, 2)
	assert.Equal(t, "frontend", domains[0].Name)
	assert.Equal(t, "database", domains[1].Name)
}

func TestListTechStacks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	domains := seedCatalog(t, s)

	var database TechDomain
	for _, d := range domains {
		if d.Name == "database" {
			database = d
		}
	}

	stacks, err := s.ListTechStacks(ctx, database.ID)
	require.NoError(t, err)
	require.Len(t, stacks, 2)
	assert.Equal(t, "PostgreSQL", stacks[0].Name)
	assert.Equal(t, "SQLite", stacks[1].Name)
}

func TestUpsertTechSelectionReplacesChoice(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	domains := seedCatalog(t, s)

	var database TechDomain
	for _, d := range domains {
		if d.Name == "database" {
			database = d
		}
	}
	stacks, err := s.ListTechStacks(ctx, database.ID)
	require.NoError(t, err)
	postgres, sqlite := stacks[0], stacks[1]

	require.NoError(t, s.UpsertTechSelection(ctx, &TechSelection{
		ProjectID: p.ID,
		DomainID:  database.ID,
		StackID:   sqlite.ID,
		Reason:    "Single-binary deploy, no ops burden",
	}))

	require.NoError(t, s.UpsertTechSelection(ctx, &TechSelection{
		ProjectID:  p.ID,
		DomainID:   database.ID,
		StackID:    postgres.ID,
		Reason:     "Concurrent writers expected",
		References: datatypes.JSON(`[{"url":"https://www.postgresql.org/docs/"}]`),
	}))

	selections, err := s.ListTechSelections(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, selections, 1, "one selection per domain")
	assert.Equal(t, postgres.ID, selections[0].StackID)
	assert.Equal(t, "Concurrent writers expected", selections[0].Reason)
	assert.NotEmpty(t, selections[0].References)
}

func TestUpsertTechSelectionValidation(t *testing.T) {
	s := testStore(t)

	err := s.UpsertTechSelection(context.Background(), &TechSelection{
		ProjectID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestTechSelectionsPerProject(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	pA := seedProject(t, s)
	pB := seedProject(t, s)
	domains := seedCatalog(t, s)

	stacks, err := s.ListTechStacks(ctx, domains[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, stacks)

	require.NoError(t, s.UpsertTechSelection(ctx, &TechSelection{
		ProjectID: pA.ID, DomainID: domains[0].ID, StackID: stacks[0].ID,
	}))

	selections, err := s.ListTechSelections(ctx, pB.ID)
	require.NoError(t, err)
	assert.Empty(t, selections)
}
