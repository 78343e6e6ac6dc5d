//go:build integration

package boiledrepos_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/parent"
	"github.com/trezcool/masomo-fees/storage/database/sqlboiler"
	"github.com/trezcool/masomo-fees/tests"
)

func TestParentRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := boiledrepos.NewParentRepository(db)
	ctx := context.Background()

	jane := testutil.CreateParent(t, repo, "Jane Doe", "jane@test.cd")
	john := testutil.CreateParent(t, repo, "John Smith", "")
	amani, err := repo.CreateParent(ctx, parent.Parent{Name: "Amani", Phone: "+243810000000", CreatedAt: core.Now()})
	require.NoError(t, err)

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetParent(ctx, jane.ID)
		require.NoError(t, err)
		assert.Equal(t, jane.Name, got.Name)
		assert.Equal(t, jane.Email, got.Email)
		assert.Empty(t, got.Phone)

		got, err = repo.GetParent(ctx, amani.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Email)
		assert.Equal(t, "+243810000000", got.Phone)

		_, err = repo.GetParent(ctx, 9999)
		assert.Equal(t, parent.ErrNotFound, err)
	})

	ids := func(parents []parent.Parent) []int64 {
		res := make([]int64, 0, len(parents))
		for _, p := range parents {
			res = append(res, p.ID)
		}
		return res
	}

	tests := []struct {
		name     string
		filter   *parent.QueryFilter
		ordering []core.DBOrdering
		want     []int64
	}{
		{name: "all by name", ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, want: []int64{amani.ID, jane.ID, john.ID}},
		{name: "all by -id", ordering: []core.DBOrdering{{Field: "id"}}, want: []int64{amani.ID, john.ID, jane.ID}},
		{name: "search name", filter: &parent.QueryFilter{Search: "SMITH"}, want: []int64{john.ID}},
		{name: "search email", filter: &parent.QueryFilter{Search: "jane@"}, want: []int64{jane.ID}},
		{name: "search phone", filter: &parent.QueryFilter{Search: "810"}, want: []int64{amani.ID}},
		{name: "no match", filter: &parent.QueryFilter{Search: "lol"}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryParents(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("search wildcards match literally", func(t *testing.T) {
		kasa := testutil.CreateParent(t, repo, "Kasa 100%", "kasa_m@test.cd")

		for _, search := range []string{"_", "%", "a_m", "100%"} {
			got, err := repo.QueryParents(ctx, &parent.QueryFilter{Search: search}, nil)
			require.NoError(t, err)
			assert.Equal(t, []int64{kasa.ID}, ids(got), search)
		}

		got, err := repo.QueryParents(ctx, &parent.QueryFilter{Search: `\`}, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
