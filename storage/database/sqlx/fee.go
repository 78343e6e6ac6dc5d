package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
)

// postgres error codes & constraint names
const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	paymentsParentFK        = "payments_parent_id_fkey"
	paymentsTxnRefKey       = "payments_transaction_ref_key"
	feeCategoriesNameKey    = "fee_categories_name_key"
	feeAllocationsCategory  = "fee_allocations_category_id_fkey"
	feeAllocationsPaymentFK = "fee_allocations_payment_id_fkey"
)

type (
	categoryRow struct {
		ID        int             `db:"id"`
		Name      string          `db:"name"`
		Priority  int             `db:"priority"`
		CapAmount decimal.Decimal `db:"cap_amount"`
		CreatedAt time.Time       `db:"created_at"`
		UpdatedAt time.Time       `db:"updated_at"`
	}

	paymentRow struct {
		ID             int64           `db:"id"`
		ParentID       int64           `db:"parent_id"`
		Amount         decimal.Decimal `db:"amount"`
		TransactionRef string          `db:"transaction_ref"`
		PaymentMethod  string          `db:"payment_method"`
		CreatedAt      time.Time       `db:"created_at"`
	}

	allocationRow struct {
		ID              int64           `db:"id"`
		PaymentID       int64           `db:"payment_id"`
		CategoryID      int             `db:"category_id"`
		AmountAllocated decimal.Decimal `db:"amount_allocated"`
		CreatedAt       time.Time       `db:"created_at"`
	}

	allocationRecordRow struct {
		allocationRow
		ParentID         int64           `db:"parent_id"`
		CategoryName     string          `db:"category_name"`
		TransactionRef   string          `db:"transaction_ref"`
		PaymentMethod    string          `db:"payment_method"`
		PaymentAmount    decimal.Decimal `db:"payment_amount"`
		PaymentCreatedAt time.Time       `db:"payment_created_at"`
	}

	categorySumRow struct {
		CategoryID int             `db:"category_id"`
		Total      decimal.Decimal `db:"total"`
	}
)

const (
	categoryColumns   = "id, name, priority, cap_amount, created_at, updated_at"
	paymentColumns    = "id, parent_id, amount, transaction_ref, payment_method, created_at"
	allocationColumns = "id, payment_id, category_id, amount_allocated, created_at"

	lockParentQuery = `SELECT pg_advisory_xact_lock($1::int4, ($2::bigint % 2147483647)::int4)`

	queryCategoriesQuery = `SELECT ` + categoryColumns + ` FROM fee_categories ORDER BY priority ASC, id ASC`
	getCategoryQuery     = `SELECT ` + categoryColumns + ` FROM fee_categories WHERE id = $1`
	createCategoryQuery  = `INSERT INTO fee_categories (name, priority, cap_amount, created_at, updated_at)
		VALUES (:name, :priority, :cap_amount, :created_at, :updated_at) RETURNING id`
	updateCategoryQuery = `UPDATE fee_categories SET name = :name, priority = :priority, cap_amount = :cap_amount, updated_at = :updated_at
		WHERE id = :id`

	createPaymentQuery = `INSERT INTO payments (parent_id, amount, transaction_ref, payment_method, created_at)
		VALUES (:parent_id, :amount, :transaction_ref, :payment_method, :created_at) RETURNING id`
	getPaymentQuery = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	createAllocationQuery = `INSERT INTO fee_allocations (payment_id, category_id, amount_allocated, created_at)
		VALUES (:payment_id, :category_id, :amount_allocated, :created_at) RETURNING id`
	sumAllocatedQuery = `SELECT COALESCE(SUM(fa.amount_allocated), 0)
		FROM fee_allocations fa
		JOIN payments p ON p.id = fa.payment_id
		WHERE p.parent_id = $1 AND fa.category_id = $2`
	sumAllocatedByCategoryQuery = `SELECT fa.category_id, COALESCE(SUM(fa.amount_allocated), 0) AS total
		FROM fee_allocations fa
		JOIN payments p ON p.id = fa.payment_id
		WHERE p.parent_id = $1
		GROUP BY fa.category_id`
	allocationsByPaymentQuery = `SELECT ` + allocationColumns + ` FROM fee_allocations WHERE payment_id = $1 ORDER BY id ASC`
	allocationsByParentQuery  = `SELECT fa.id, fa.payment_id, fa.category_id, fa.amount_allocated, fa.created_at,
			p.parent_id, fc.name AS category_name, p.transaction_ref, p.payment_method,
			p.amount AS payment_amount, p.created_at AS payment_created_at
		FROM fee_allocations fa
		JOIN payments p ON p.id = fa.payment_id
		JOIN fee_categories fc ON fc.id = fa.category_id
		WHERE p.parent_id = $1
		ORDER BY fa.created_at DESC, fa.id DESC`
)

type feeRepository struct {
	exec          core.DBExecutor
	lockNamespace int
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(exec core.DBExecutor, conf *core.Config) *feeRepository {
	return &feeRepository{exec: exec, lockNamespace: conf.Fees.LockNamespace}
}

func (repo feeRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// selectRows scans all rows of the query into dest, a pointer to a slice of structs.
func selectRows(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// insertReturningID runs a named INSERT ... RETURNING id.
func insertReturningID(ctx context.Context, exec core.DBExecutor, query string, arg interface{}) (int64, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return 0, err
	}
	var id int64
	err = exec.QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...).Scan(&id)
	return id, err
}

// trapErr maps postgres errors to fee errors.
func (repo feeRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return err
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch {
		case pqErr.Code == foreignKeyViolation && pqErr.Constraint == paymentsParentFK:
			return fee.ErrParentNotFound
		case pqErr.Code == foreignKeyViolation && pqErr.Constraint == feeAllocationsCategory:
			return fee.ErrCategoryNotFound
		case pqErr.Code == foreignKeyViolation && pqErr.Constraint == feeAllocationsPaymentFK:
			return fee.ErrPaymentNotFound
		case pqErr.Code == uniqueViolation && pqErr.Constraint == paymentsTxnRefKey:
			return fee.ErrTransactionRefExists
		case pqErr.Code == uniqueViolation && pqErr.Constraint == feeCategoriesNameKey:
			return fee.ErrCategoryExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo feeRepository) LockParent(ctx context.Context, parentID int64, exec ...core.DBExecutor) error {
	if _, err := repo.getExec(exec).ExecContext(ctx, lockParentQuery, repo.lockNamespace, parentID); err != nil {
		return errors.Wrap(err, "acquiring parent lock")
	}
	return nil
}

func (repo feeRepository) QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]fee.Category, error) {
	var rows []categoryRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, queryCategoriesQuery); err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	cats := make([]fee.Category, 0, len(rows))
	for _, r := range rows {
		cats = append(cats, r.toCategory())
	}
	return cats, nil
}

func (repo feeRepository) GetCategory(ctx context.Context, id int, exec ...core.DBExecutor) (fee.Category, error) {
	var rows []categoryRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, getCategoryQuery, id); err != nil {
		return fee.Category{}, errors.Wrap(err, "finding category")
	}
	if len(rows) == 0 {
		return fee.Category{}, fee.ErrCategoryNotFound
	}
	return rows[0].toCategory(), nil
}

func (repo feeRepository) CreateCategory(ctx context.Context, cat fee.Category, exec ...core.DBExecutor) (fee.Category, error) {
	id, err := insertReturningID(ctx, repo.getExec(exec), createCategoryQuery, newCategoryRow(cat))
	if err != nil {
		return fee.Category{}, repo.trapErr(err, "inserting category")
	}
	cat.ID = int(id)
	return cat, nil
}

func (repo feeRepository) UpdateCategory(ctx context.Context, cat fee.Category, exec ...core.DBExecutor) (fee.Category, error) {
	q, args, err := sqlx.Named(updateCategoryQuery, newCategoryRow(cat))
	if err != nil {
		return fee.Category{}, errors.Wrap(err, "binding category")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return fee.Category{}, repo.trapErr(err, "updating category")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fee.Category{}, fee.ErrCategoryNotFound
	}
	return cat, nil
}

func (repo feeRepository) CreatePayment(ctx context.Context, pmt fee.Payment, exec ...core.DBExecutor) (fee.Payment, error) {
	row := paymentRow{
		ParentID:       pmt.ParentID,
		Amount:         pmt.Amount,
		TransactionRef: pmt.TransactionRef,
		PaymentMethod:  pmt.PaymentMethod,
		CreatedAt:      pmt.CreatedAt.UTC(),
	}
	id, err := insertReturningID(ctx, repo.getExec(exec), createPaymentQuery, row)
	if err != nil {
		return fee.Payment{}, repo.trapErr(err, "inserting payment")
	}
	pmt.ID = id
	return pmt, nil
}

func (repo feeRepository) GetPayment(ctx context.Context, id int64, exec ...core.DBExecutor) (fee.Payment, error) {
	var rows []paymentRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, getPaymentQuery, id); err != nil {
		return fee.Payment{}, errors.Wrap(err, "finding payment")
	}
	if len(rows) == 0 {
		return fee.Payment{}, fee.ErrPaymentNotFound
	}
	r := rows[0]
	return fee.Payment{
		ID:             r.ID,
		ParentID:       r.ParentID,
		Amount:         r.Amount,
		TransactionRef: r.TransactionRef,
		PaymentMethod:  r.PaymentMethod,
		CreatedAt:      r.CreatedAt.UTC(),
	}, nil
}

func (repo feeRepository) CreateAllocation(ctx context.Context, alloc fee.Allocation, exec ...core.DBExecutor) (fee.Allocation, error) {
	row := allocationRow{
		PaymentID:       alloc.PaymentID,
		CategoryID:      alloc.CategoryID,
		AmountAllocated: alloc.AmountAllocated,
		CreatedAt:       alloc.CreatedAt.UTC(),
	}
	id, err := insertReturningID(ctx, repo.getExec(exec), createAllocationQuery, row)
	if err != nil {
		return fee.Allocation{}, repo.trapErr(err, "inserting allocation")
	}
	alloc.ID = id
	return alloc, nil
}

func (repo feeRepository) SumAllocated(ctx context.Context, parentID int64, categoryID int, exec ...core.DBExecutor) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := repo.getExec(exec).QueryRowContext(ctx, sumAllocatedQuery, parentID, categoryID).Scan(&total); err != nil {
		return decimal.Zero, errors.Wrap(err, "summing allocations")
	}
	return total, nil
}

func (repo feeRepository) SumAllocatedByCategory(ctx context.Context, parentID int64, exec ...core.DBExecutor) (map[int]decimal.Decimal, error) {
	var rows []categorySumRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, sumAllocatedByCategoryQuery, parentID); err != nil {
		return nil, errors.Wrap(err, "summing allocations by category")
	}
	sums := make(map[int]decimal.Decimal, len(rows))
	for _, r := range rows {
		sums[r.CategoryID] = r.Total
	}
	return sums, nil
}

func (repo feeRepository) QueryAllocationsByPayment(ctx context.Context, paymentID int64, exec ...core.DBExecutor) ([]fee.Allocation, error) {
	var rows []allocationRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, allocationsByPaymentQuery, paymentID); err != nil {
		return nil, errors.Wrap(err, "querying payment allocations")
	}
	allocs := make([]fee.Allocation, 0, len(rows))
	for _, r := range rows {
		allocs = append(allocs, r.toAllocation())
	}
	return allocs, nil
}

func (repo feeRepository) QueryAllocationsByParent(ctx context.Context, parentID int64, exec ...core.DBExecutor) ([]fee.AllocationRecord, error) {
	var rows []allocationRecordRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, allocationsByParentQuery, parentID); err != nil {
		return nil, errors.Wrap(err, "querying parent allocations")
	}
	recs := make([]fee.AllocationRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, fee.AllocationRecord{
			ID:               r.ID,
			PaymentID:        r.PaymentID,
			ParentID:         r.ParentID,
			CategoryID:       r.CategoryID,
			CategoryName:     r.CategoryName,
			AmountAllocated:  r.AmountAllocated,
			CreatedAt:        r.CreatedAt.UTC(),
			TransactionRef:   r.TransactionRef,
			PaymentMethod:    r.PaymentMethod,
			PaymentAmount:    r.PaymentAmount,
			PaymentCreatedAt: r.PaymentCreatedAt.UTC(),
		})
	}
	return recs, nil
}

func newCategoryRow(cat fee.Category) categoryRow {
	return categoryRow{
		ID:        cat.ID,
		Name:      cat.Name,
		Priority:  cat.Priority,
		CapAmount: cat.CapAmount,
		CreatedAt: cat.CreatedAt.UTC(),
		UpdatedAt: cat.UpdatedAt.UTC(),
	}
}

func (r categoryRow) toCategory() fee.Category {
	return fee.Category{
		ID:        r.ID,
		Name:      r.Name,
		Priority:  r.Priority,
		CapAmount: r.CapAmount,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r allocationRow) toAllocation() fee.Allocation {
	return fee.Allocation{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		CategoryID:      r.CategoryID,
		AmountAllocated: r.AmountAllocated,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}
