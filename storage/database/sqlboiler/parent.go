package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/parent"
)

const parentColumns = "id, name, email, phone, created_at"

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

type parentRow struct {
	ID        int64       `boil:"id"`
	Name      string      `boil:"name"`
	Email     null.String `boil:"email"`
	Phone     null.String `boil:"phone"`
	CreatedAt time.Time   `boil:"created_at"`
}

type parentRepository struct {
	exec core.DBExecutor
}

var _ parent.Repository = (*parentRepository)(nil) // interface compliance check

func NewParentRepository(exec core.DBExecutor) *parentRepository {
	return &parentRepository{exec: exec}
}

func (repo parentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo parentRepository) boil(prt parent.Parent) parentRow {
	return parentRow{
		ID:        prt.ID,
		Name:      prt.Name,
		Email:     null.NewString(prt.Email, prt.Email != ""),
		Phone:     null.NewString(prt.Phone, prt.Phone != ""),
		CreatedAt: prt.CreatedAt.UTC(),
	}
}

func (repo parentRepository) unboil(row parentRow) parent.Parent {
	return parent.Parent{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email.String,
		Phone:     row.Phone.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to parent.ErrNotFound
func (repo parentRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return parent.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo parentRepository) CreateParent(ctx context.Context, prt parent.Parent, exec ...core.DBExecutor) (parent.Parent, error) {
	p := repo.boil(prt)
	var row parentRow
	err := queries.Raw(
		"INSERT INTO parents (name, email, phone, created_at) VALUES ($1, $2, $3, $4) RETURNING "+parentColumns,
		p.Name, p.Email, p.Phone, p.CreatedAt,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return parent.Parent{}, errors.Wrap(err, "inserting parent")
	}
	return repo.unboil(row), nil
}

func (repo parentRepository) GetParent(ctx context.Context, id int64, exec ...core.DBExecutor) (parent.Parent, error) {
	var row parentRow
	err := queries.Raw("SELECT "+parentColumns+" FROM parents WHERE id = $1", id).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return parent.Parent{}, repo.trapNoRowsErr(err, "finding parent")
	}
	if row.ID == 0 {
		return parent.Parent{}, parent.ErrNotFound
	}
	return repo.unboil(row), nil
}

func (repo parentRepository) QueryParents(ctx context.Context, filter *parent.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]parent.Parent, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter != nil {
		// parents with Name, Email or Phone matching the search keyword
		if filter.Search != "" {
			args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
			n := len(args)
			where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", n, n, n))
		}
	}

	query := "SELECT " + parentColumns + " FROM parents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// fields are whitelisted by the service
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []parentRow
	if err := queries.Raw(query, args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	parents := make([]parent.Parent, 0, len(rows))
	for _, r := range rows {
		parents = append(parents, repo.unboil(r))
	}
	return parents, nil
}
