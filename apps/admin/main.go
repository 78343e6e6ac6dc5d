package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
	"github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/storage/database"
	"github.com/trezcool/masomo-fees/storage/database/sqlboiler"
	"github.com/trezcool/masomo-fees/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()
	dbx := sqlx.NewDb(db, conf.Database.Engine)

	// set up services
	validate, translator := newValidator()
	core.ParseEmailTemplates(conf, logger)
	prtSvc := parent.NewService(boiledrepos.NewParentRepository(dbx), validate)
	feeSvc := fee.NewService(
		database.NewTxRunner(dbx),
		sqlxrepos.NewFeeRepository(dbx, conf),
		prtSvc,
		emailsvc.New(conf, logger),
		logger,
		validate,
		conf,
	)

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db,
		out:        os.Stdout,
		translator: translator,
		prtSvc:     prtSvc,
		feeSvc:     feeSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
