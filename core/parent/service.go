package parent

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
)

var (
	// errors
	ErrNotFound = errors.New("parent not found")

	// OrderingFields lists the fields parents can be sorted by.
	OrderingFields = map[string]bool{"id": true, "name": true, "email": true, "created_at": true}

	defaultOrdering = []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "id", Ascending: true}}
)

type (
	Repository interface {
		CreateParent(ctx context.Context, p Parent, exec ...core.DBExecutor) (Parent, error)
		GetParent(ctx context.Context, id int64, exec ...core.DBExecutor) (Parent, error)
		QueryParents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Parent, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, np NewParent) (Parent, error)
		GetByID(ctx context.Context, id int64) (Parent, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Parent, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, np NewParent) (Parent, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Parent{}, err
	}
	return svc.repo.CreateParent(ctx, Parent{
		Name:      np.Name,
		Email:     np.Email,
		Phone:     np.Phone,
		CreatedAt: core.Now(),
	})
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Parent, error) {
	if id <= 0 {
		return Parent{}, ErrNotFound
	}
	return svc.repo.GetParent(ctx, id)
}

// Query filters parents; unknown ordering fields are ignored.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Parent, error) {
	if filter != nil {
		filter.Clean()
		if filter.IsEmpty() {
			filter = nil
		}
	}

	ords := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if OrderingFields[ord.Field] {
			ords = append(ords, ord)
		}
	}
	if len(ords) == 0 {
		ords = defaultOrdering
	}
	return svc.repo.QueryParents(ctx, filter, ords)
}
