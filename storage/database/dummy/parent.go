package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/parent"
)

type parentRepository struct {
	db *DB
}

var _ parent.Repository = (*parentRepository)(nil) // interface compliance check

func NewParentRepository(db *DB) *parentRepository {
	return &parentRepository{db: db}
}

func (repo *parentRepository) CreateParent(_ context.Context, prt parent.Parent, exec ...core.DBExecutor) (parent.Parent, error) {
	err := repo.db.write(exec, func(t *tables) error {
		t.parentSeq++
		prt.ID = t.parentSeq
		t.parents[prt.ID] = prt
		return nil
	})
	return prt, err
}

func (repo *parentRepository) GetParent(_ context.Context, id int64, _ ...core.DBExecutor) (parent.Parent, error) {
	var prt parent.Parent
	err := repo.db.read(func(t *tables) error {
		p, ok := t.parents[id]
		if !ok {
			return parent.ErrNotFound
		}
		prt = p
		return nil
	})
	return prt, err
}

func (repo *parentRepository) QueryParents(_ context.Context, filter *parent.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]parent.Parent, error) {
	parents := make([]parent.Parent, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, p := range t.parents {
			parents = append(parents, p)
		}
		return nil
	})

	// parents with search keyword matching any Name, Email or Phone ?
	if filter != nil && filter.Search != "" {
		search := strings.ToLower(filter.Search)
		filtered := make([]parent.Parent, 0, len(parents))
		for _, p := range parents {
			if strings.Contains(strings.ToLower(p.Name), search) ||
				strings.Contains(strings.ToLower(p.Email), search) ||
				strings.Contains(p.Phone, search) {
				filtered = append(filtered, p)
			}
		}
		parents = filtered
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "id", Ascending: true}}
	}
	sort.SliceStable(parents, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareParents(parents[i], parents[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return parents, nil
}

func compareParents(a, b parent.Parent, field string) int {
	switch field {
	case "id":
		return compareInt64(a.ID, b.ID)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
