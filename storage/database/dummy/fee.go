package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
)

type feeRepository struct {
	db *DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) *feeRepository {
	return &feeRepository{db: db}
}

// LockParent is a no-op: transactions are already serialized.
func (repo *feeRepository) LockParent(context.Context, int64, ...core.DBExecutor) error {
	return nil
}

func sortedCategories(t *tables) []fee.Category {
	cats := make([]fee.Category, 0, len(t.categories))
	for _, c := range t.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Priority != cats[j].Priority {
			return cats[i].Priority < cats[j].Priority
		}
		return cats[i].ID < cats[j].ID
	})
	return cats
}

func nameTaken(t *tables, name string, exceptID int) bool {
	for _, c := range t.categories {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (repo *feeRepository) QueryCategories(_ context.Context, _ ...core.DBExecutor) ([]fee.Category, error) {
	var cats []fee.Category
	err := repo.db.read(func(t *tables) error {
		cats = sortedCategories(t)
		return nil
	})
	return cats, err
}

func (repo *feeRepository) GetCategory(_ context.Context, id int, _ ...core.DBExecutor) (fee.Category, error) {
	var cat fee.Category
	err := repo.db.read(func(t *tables) error {
		c, ok := t.categories[id]
		if !ok {
			return fee.ErrCategoryNotFound
		}
		cat = c
		return nil
	})
	return cat, err
}

func (repo *feeRepository) CreateCategory(_ context.Context, cat fee.Category, exec ...core.DBExecutor) (fee.Category, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if nameTaken(t, cat.Name, 0) {
			return fee.ErrCategoryExists
		}
		t.categorySeq++
		cat.ID = t.categorySeq
		t.categories[cat.ID] = cat
		return nil
	})
	if err != nil {
		return fee.Category{}, err
	}
	return cat, nil
}

func (repo *feeRepository) UpdateCategory(_ context.Context, cat fee.Category, exec ...core.DBExecutor) (fee.Category, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.categories[cat.ID]; !ok {
			return fee.ErrCategoryNotFound
		}
		if nameTaken(t, cat.Name, cat.ID) {
			return fee.ErrCategoryExists
		}
		t.categories[cat.ID] = cat
		return nil
	})
	if err != nil {
		return fee.Category{}, err
	}
	return cat, nil
}

func (repo *feeRepository) CreatePayment(_ context.Context, pmt fee.Payment, exec ...core.DBExecutor) (fee.Payment, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.parents[pmt.ParentID]; !ok {
			return fee.ErrParentNotFound
		}
		for _, p := range t.payments {
			if p.TransactionRef == pmt.TransactionRef {
				return fee.ErrTransactionRefExists
			}
		}
		t.paymentSeq++
		pmt.ID = t.paymentSeq
		pmt.Allocations = nil
		t.payments[pmt.ID] = pmt
		return nil
	})
	if err != nil {
		return fee.Payment{}, err
	}
	return pmt, nil
}

func (repo *feeRepository) GetPayment(_ context.Context, id int64, _ ...core.DBExecutor) (fee.Payment, error) {
	var pmt fee.Payment
	err := repo.db.read(func(t *tables) error {
		p, ok := t.payments[id]
		if !ok {
			return fee.ErrPaymentNotFound
		}
		pmt = p
		return nil
	})
	return pmt, err
}

func (repo *feeRepository) CreateAllocation(_ context.Context, alloc fee.Allocation, exec ...core.DBExecutor) (fee.Allocation, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.payments[alloc.PaymentID]; !ok {
			return fee.ErrPaymentNotFound
		}
		if _, ok := t.categories[alloc.CategoryID]; !ok {
			return fee.ErrCategoryNotFound
		}
		t.allocationSeq++
		alloc.ID = t.allocationSeq
		t.allocations[alloc.ID] = alloc
		return nil
	})
	if err != nil {
		return fee.Allocation{}, err
	}
	return alloc, nil
}

func (repo *feeRepository) SumAllocated(_ context.Context, parentID int64, categoryID int, _ ...core.DBExecutor) (decimal.Decimal, error) {
	total := decimal.Zero
	err := repo.db.read(func(t *tables) error {
		for _, a := range t.allocations {
			if a.CategoryID == categoryID && t.payments[a.PaymentID].ParentID == parentID {
				total = total.Add(a.AmountAllocated)
			}
		}
		return nil
	})
	return total, err
}

func (repo *feeRepository) SumAllocatedByCategory(_ context.Context, parentID int64, _ ...core.DBExecutor) (map[int]decimal.Decimal, error) {
	sums := make(map[int]decimal.Decimal)
	err := repo.db.read(func(t *tables) error {
		for _, a := range t.allocations {
			if t.payments[a.PaymentID].ParentID != parentID {
				continue
			}
			sum, ok := sums[a.CategoryID]
			if !ok {
				sum = decimal.Zero
			}
			sums[a.CategoryID] = sum.Add(a.AmountAllocated)
		}
		return nil
	})
	return sums, err
}

func (repo *feeRepository) QueryAllocationsByPayment(_ context.Context, paymentID int64, _ ...core.DBExecutor) ([]fee.Allocation, error) {
	allocs := make([]fee.Allocation, 0)
	err := repo.db.read(func(t *tables) error {
		for _, a := range t.allocations {
			if a.PaymentID == paymentID {
				allocs = append(allocs, a)
			}
		}
		return nil
	})
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].ID < allocs[j].ID })
	return allocs, err
}

func (repo *feeRepository) QueryAllocationsByParent(_ context.Context, parentID int64, _ ...core.DBExecutor) ([]fee.AllocationRecord, error) {
	recs := make([]fee.AllocationRecord, 0)
	err := repo.db.read(func(t *tables) error {
		for _, a := range t.allocations {
			pmt := t.payments[a.PaymentID]
			if pmt.ParentID != parentID {
				continue
			}
			recs = append(recs, fee.AllocationRecord{
				ID:               a.ID,
				PaymentID:        a.PaymentID,
				ParentID:         pmt.ParentID,
				CategoryID:       a.CategoryID,
				CategoryName:     t.categories[a.CategoryID].Name,
				AmountAllocated:  a.AmountAllocated,
				CreatedAt:        a.CreatedAt,
				TransactionRef:   pmt.TransactionRef,
				PaymentMethod:    pmt.PaymentMethod,
				PaymentAmount:    pmt.Amount,
				PaymentCreatedAt: pmt.CreatedAt,
			})
		}
		return nil
	})
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
	return recs, err
}
