package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core/parent"
)

type parentApi struct {
	svc parent.ServiceInterface
}

func registerParentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc parent.ServiceInterface) {
	api := parentApi{svc: svc}

	pg := g.Group("/parents", jwt)
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.GET("/:id", api.retrieve)
}

// Handlers

func (api *parentApi) query(ctx echo.Context) error {
	var filter parent.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	var ord Ordering
	ord.Bind(ctx)

	parents, err := api.svc.Query(ctx.Request().Context(), &filter, ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying parents")
	}
	return ctx.JSON(http.StatusOK, parents)
}

func (api *parentApi) create(ctx echo.Context) error {
	var data parent.NewParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParent")
	}

	prt, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating parent")
	}
	return ctx.JSON(http.StatusCreated, prt)
}

func (api *parentApi) retrieve(ctx echo.Context) error {
	id, ok := parseID(ctx, "id")
	if !ok {
		return errHttpNotFound
	}

	prt, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting parent")
	}
	return ctx.JSON(http.StatusOK, prt)
}
