package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-fees/apps/api/echo"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
	emailsvc "github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/services/idempotency"
	logsvc "github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/storage/database"
	boiledrepos "github.com/trezcool/masomo-fees/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/masomo-fees/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	FeeSvc      fee.ServiceInterface
	ParentSvc   parent.ServiceInterface
	Idempotency idempotency.Store
	Validate    *validator.Validate
	Translator  ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

// newDB creates & migrates the database if needed. Repositories share the *sqlx.DB.
func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, *sqlx.DB, core.DBExecutor) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	dbx := sqlx.NewDb(db, conf.Database.Engine)
	return db, dbx, dbx
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate, translator
}

// newIdempotencyStore keeps idempotency keys in redis when configured, in memory otherwise.
func newIdempotencyStore(conf *core.Config, logger core.Logger) idempotency.Store {
	if conf.Redis.Address == "" {
		logger.Warn("redis is not configured: idempotency keys are kept in memory")
		return idempotency.NewMemoryStore()
	}
	client, err := idempotency.NewRedisClient(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return idempotency.NewRedisStore(client)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		FeeSvc:      p.FeeSvc,
		ParentSvc:   p.ParentSvc,
		Idempotency: p.Idempotency,
		Validate:    p.Validate,
		Translator:  p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(database.NewTxRunner, dig.As(new(core.TxRunner))))
	must(c.Provide(emailsvc.New))
	must(c.Provide(newIdempotencyStore))
	must(c.Provide(newValidator))
	must(c.Provide(boiledrepos.NewParentRepository, dig.As(new(parent.Repository))))
	must(c.Provide(sqlxrepos.NewFeeRepository, dig.As(new(fee.Repository))))
	must(c.Provide(parent.NewService, dig.As(new(parent.ServiceInterface), new(fee.ParentFinder))))
	must(c.Provide(fee.NewService, dig.As(new(fee.ServiceInterface))))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
