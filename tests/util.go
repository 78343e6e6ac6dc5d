// Package testutil holds the helpers shared by the tests of every package.
package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
	logsvc "github.com/trezcool/masomo-fees/services/logger"
)

// NewConfig returns the TEST configuration, quiet & without debug output.
func NewConfig() *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Server.DisableRequestLogs = true
	return conf
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a logger writing nowhere.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), conf)
	logger.Enable(false)
	return logger
}

func Dec(t *testing.T, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Dec(%q) failed: %v", s, err)
	}
	return d
}

func DecPtr(t *testing.T, s string) *decimal.Decimal {
	d := Dec(t, s)
	return &d
}

func CreateParent(t *testing.T, repo parent.Repository, name, email string) parent.Parent {
	prt, err := repo.CreateParent(context.Background(), parent.Parent{
		Name:      name,
		Email:     email,
		CreatedAt: core.Now(),
	})
	if err != nil {
		t.Fatalf("CreateParent() failed: %v", err)
	}
	return prt
}

func CreateCategory(t *testing.T, repo fee.Repository, name string, priority int, capAmount string) fee.Category {
	now := core.Now()
	cat, err := repo.CreateCategory(context.Background(), fee.Category{
		Name:      name,
		Priority:  priority,
		CapAmount: Dec(t, capAmount),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}
