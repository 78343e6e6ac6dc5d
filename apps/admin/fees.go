package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	echoapi "github.com/trezcool/masomo-fees/apps/api/echo"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
)

// describe flattens validation errors into a single line.
func (cli *commandLine) describe(err error) error {
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		msgs := make([]string, 0, len(vErr))
		for _, fe := range vErr {
			msgs = append(msgs, fe.Translate(cli.translator))
		}
		return errors.New(strings.Join(msgs, "; "))
	case *core.ValidationError:
		if len(vErr.Fields) > 0 {
			msgs := make([]string, 0, len(vErr.Fields))
			for _, fe := range vErr.Fields {
				msgs = append(msgs, fe.Field+": "+fe.Error)
			}
			return errors.New(strings.Join(msgs, "; "))
		}
	}
	return err
}

func (cli *commandLine) addParent(name, email, phone string) error {
	prt, err := cli.prtSvc.Create(context.Background(), parent.NewParent{Name: name, Email: email, Phone: phone})
	if err != nil {
		return cli.describe(err)
	}
	fmt.Fprintf(cli.out, "parent #%d created: %s\n", prt.ID, prt.Name)
	return nil
}

func (cli *commandLine) addCategory(name string, priority int, capAmount string) error {
	amount, err := decimal.NewFromString(strings.TrimSpace(capAmount))
	if err != nil {
		return errors.Errorf("cap: %q is not an amount", capAmount)
	}
	cat, err := cli.feeSvc.CreateCategory(context.Background(), fee.NewCategory{Name: name, Priority: priority, CapAmount: &amount})
	if err != nil {
		return cli.describe(err)
	}
	fmt.Fprintf(cli.out, "category #%d created: %s\n", cat.ID, cat.Name)
	return nil
}

func (cli *commandLine) listCategories() error {
	cats, err := cli.feeSvc.ListCategories(context.Background())
	if err != nil {
		return errors.Wrap(err, "listing categories")
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tNAME\tCAP")
	for _, cat := range cats {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", cat.ID, cat.Priority, cat.Name, cat.CapAmount.StringFixed(2))
	}
	return w.Flush()
}

func (cli *commandLine) issueToken(subject, name, email string, isAdmin bool) error {
	claims := echoapi.NewClaims(cli.conf, core.CleanString(subject), core.CleanString(name), core.CleanString(email, true), isAdmin)
	token, err := echoapi.GenerateToken(cli.conf.SecretKey, claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
