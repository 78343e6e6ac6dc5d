//go:build integration

package sqlxrepos_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
	"github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/storage/database"
	"github.com/trezcool/masomo-fees/storage/database/sqlboiler"
	"github.com/trezcool/masomo-fees/storage/database/sqlx"
	"github.com/trezcool/masomo-fees/tests"
)

func TestFeeRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	conf := testutil.NewConfig()
	repo := sqlxrepos.NewFeeRepository(db, conf)
	prtRepo := boiledrepos.NewParentRepository(db)
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("categories", func(t *testing.T) {
		testutil.ResetDB(t, db)
		books := testutil.CreateCategory(t, repo, "Books", 2, "500")
		tuition := testutil.CreateCategory(t, repo, "Tuition", 1, "1000")
		uniforms := testutil.CreateCategory(t, repo, "Uniforms", 2, "150.50")

		cats, err := repo.QueryCategories(ctx)
		require.NoError(t, err)
		var ids []int
		for _, c := range cats {
			ids = append(ids, c.ID)
		}
		assert.Equal(t, []int{tuition.ID, books.ID, uniforms.ID}, ids)
		assert.True(t, testutil.Dec(t, "150.5").Equal(cats[2].CapAmount))

		_, err = repo.CreateCategory(ctx, fee.Category{Name: "BOOKS", CapAmount: decimal.Zero, CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, fee.ErrCategoryExists, err)

		books.CapAmount = testutil.Dec(t, "650")
		books.Priority = 0
		_, err = repo.UpdateCategory(ctx, books)
		require.NoError(t, err)
		got, err := repo.GetCategory(ctx, books.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Priority)
		assert.True(t, testutil.Dec(t, "650").Equal(got.CapAmount))

		books.Name = "tuition"
		_, err = repo.UpdateCategory(ctx, books)
		assert.Equal(t, fee.ErrCategoryExists, err)

		_, err = repo.GetCategory(ctx, 9999)
		assert.Equal(t, fee.ErrCategoryNotFound, err)
		_, err = repo.UpdateCategory(ctx, fee.Category{ID: 9999, Name: "Ghost", CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, fee.ErrCategoryNotFound, err)
	})

	t.Run("payments & allocations", func(t *testing.T) {
		testutil.ResetDB(t, db)
		jane := testutil.CreateParent(t, prtRepo, "Jane", "jane@test.cd")
		john := testutil.CreateParent(t, prtRepo, "John", "")
		tuition := testutil.CreateCategory(t, repo, "Tuition", 1, "1000")
		books := testutil.CreateCategory(t, repo, "Books", 2, "500")

		pmt, err := repo.CreatePayment(ctx, fee.Payment{
			ParentID: jane.ID, Amount: testutil.Dec(t, "700"), TransactionRef: "TXN-1", PaymentMethod: "cash", CreatedAt: now,
		})
		require.NoError(t, err)
		assert.NotZero(t, pmt.ID)

		_, err = repo.CreatePayment(ctx, fee.Payment{
			ParentID: john.ID, Amount: testutil.Dec(t, "1"), TransactionRef: "TXN-1", PaymentMethod: "cash", CreatedAt: now,
		})
		assert.Equal(t, fee.ErrTransactionRefExists, err)
		_, err = repo.CreatePayment(ctx, fee.Payment{
			ParentID: 9999, Amount: testutil.Dec(t, "1"), TransactionRef: "TXN-2", PaymentMethod: "cash", CreatedAt: now,
		})
		assert.Equal(t, fee.ErrParentNotFound, err)

		got, err := repo.GetPayment(ctx, pmt.ID)
		require.NoError(t, err)
		assert.Equal(t, pmt.TransactionRef, got.TransactionRef)
		assert.True(t, pmt.Amount.Equal(got.Amount))
		assert.True(t, now.Equal(got.CreatedAt))
		_, err = repo.GetPayment(ctx, 9999)
		assert.Equal(t, fee.ErrPaymentNotFound, err)

		for _, a := range []fee.Allocation{
			{PaymentID: pmt.ID, CategoryID: tuition.ID, AmountAllocated: testutil.Dec(t, "600.25"), CreatedAt: now},
			{PaymentID: pmt.ID, CategoryID: books.ID, AmountAllocated: testutil.Dec(t, "99.75"), CreatedAt: now},
		} {
			_, err = repo.CreateAllocation(ctx, a)
			require.NoError(t, err)
		}
		_, err = repo.CreateAllocation(ctx, fee.Allocation{PaymentID: pmt.ID, CategoryID: 9999, AmountAllocated: decimal.New(1, 0), CreatedAt: now})
		assert.Equal(t, fee.ErrCategoryNotFound, err)
		_, err = repo.CreateAllocation(ctx, fee.Allocation{PaymentID: 9999, CategoryID: tuition.ID, AmountAllocated: decimal.New(1, 0), CreatedAt: now})
		assert.Equal(t, fee.ErrPaymentNotFound, err)

		paid, err := repo.SumAllocated(ctx, jane.ID, tuition.ID)
		require.NoError(t, err)
		assert.True(t, testutil.Dec(t, "600.25").Equal(paid))
		paid, err = repo.SumAllocated(ctx, john.ID, tuition.ID)
		require.NoError(t, err)
		assert.True(t, paid.IsZero())

		sums, err := repo.SumAllocatedByCategory(ctx, jane.ID)
		require.NoError(t, err)
		require.Len(t, sums, 2)
		assert.True(t, testutil.Dec(t, "99.75").Equal(sums[books.ID]))

		allocs, err := repo.QueryAllocationsByPayment(ctx, pmt.ID)
		require.NoError(t, err)
		require.Len(t, allocs, 2)
		assert.Equal(t, tuition.ID, allocs[0].CategoryID)

		recs, err := repo.QueryAllocationsByParent(ctx, jane.ID)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Books", recs[0].CategoryName)
		assert.Equal(t, "TXN-1", recs[0].TransactionRef)
		assert.True(t, testutil.Dec(t, "700").Equal(recs[0].PaymentAmount))

		recs, err = repo.QueryAllocationsByParent(ctx, john.ID)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestService_SubmitPayment_postgres(t *testing.T) {
	db := testutil.PrepareDB(t)
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	validate, _ := testutil.NewValidator()

	repo := sqlxrepos.NewFeeRepository(db, conf)
	prtRepo := boiledrepos.NewParentRepository(db)
	prtSvc := parent.NewService(prtRepo, validate)
	svc := fee.NewService(database.NewTxRunner(db), repo, prtSvc, emailsvc.NewConsoleServiceMock(conf, logger), logger, validate, conf)
	ctx := context.Background()

	t.Run("rolls back on failure", func(t *testing.T) {
		testutil.ResetDB(t, db)
		jane := testutil.CreateParent(t, prtRepo, "Jane", "")
		testutil.CreateCategory(t, repo, "Tuition", 1, "1000")

		_, err := svc.SubmitPayment(ctx, fee.NewPayment{ParentID: jane.ID, Amount: testutil.DecPtr(t, "100"), TransactionRef: "TXN-A"})
		require.NoError(t, err)

		_, err = svc.SubmitPayment(ctx, fee.NewPayment{ParentID: jane.ID, Amount: testutil.DecPtr(t, "100"), TransactionRef: "TXN-A"})
		vErr, ok := err.(*core.ValidationError)
		require.True(t, ok, "got %T: %v", err, err)
		assert.Equal(t, "transaction_ref", vErr.Fields[0].Field)

		var payments int
		require.NoError(t, db.Get(&payments, "SELECT count(*) FROM payments"))
		assert.Equal(t, 1, payments)
	})

	t.Run("concurrent submissions never exceed caps", func(t *testing.T) {
		testutil.ResetDB(t, db)
		jane := testutil.CreateParent(t, prtRepo, "Jane", "")
		tuition := testutil.CreateCategory(t, repo, "Tuition", 1, "1000")
		books := testutil.CreateCategory(t, repo, "Books", 2, "500")

		const workers = 12
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.SubmitPayment(ctx, fee.NewPayment{
					ParentID:       jane.ID,
					Amount:         testutil.DecPtr(t, "150"),
					TransactionRef: fmt.Sprintf("TXN-C%d", i),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		sums, err := repo.SumAllocatedByCategory(ctx, jane.ID)
		require.NoError(t, err)
		assert.True(t, testutil.Dec(t, "1000").Equal(sums[tuition.ID]), "tuition: %s", sums[tuition.ID])
		assert.True(t, testutil.Dec(t, "500").Equal(sums[books.ID]), "books: %s", sums[books.ID])
	})
}
