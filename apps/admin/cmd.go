package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf       *core.Config
	db         *sql.DB
	out        io.Writer
	translator ut.Translator
	prtSvc     parent.ServiceInterface
	feeSvc     fee.ServiceInterface
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate, translator
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addparent -name NAME [-email EMAIL] [-phone PHONE] - register a parent")
	fmt.Fprintln(cli.out, "  addcategory -name NAME -priority N -cap AMOUNT - add a fee category")
	fmt.Fprintln(cli.out, "  categories - list the fee categories by allocation order")
	fmt.Fprintln(cli.out, "  token -subject ID [-name NAME] [-email EMAIL] [-admin] - issue an API token")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses args, answering usage requests & missing required flags with errHelp.
func parse(fs *flag.FlagSet, args []string, required ...*string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	for _, val := range required {
		if *val == "" {
			fs.Usage()
			return errHelp
		}
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addparent":
		cmd := cli.newFlagSet("addparent")
		name := cmd.String("name", "", "The parent's full name.")
		email := cmd.String("email", "", "Where payment receipts are sent.")
		phone := cmd.String("phone", "", "The parent's phone number.")
		if err := parse(cmd, args[2:], name); err != nil {
			return err
		}
		return cli.addParent(*name, *email, *phone)

	case "addcategory":
		cmd := cli.newFlagSet("addcategory")
		name := cmd.String("name", "", "The category name, unique.")
		priority := cmd.Int("priority", 0, "Categories are paid by ascending priority.")
		capAmount := cmd.String("cap", "", "The most a parent may pay towards the category.")
		if err := parse(cmd, args[2:], name, capAmount); err != nil {
			return err
		}
		return cli.addCategory(*name, *priority, *capAmount)

	case "categories":
		return cli.listCategories()

	case "token":
		cmd := cli.newFlagSet("token")
		subject := cmd.String("subject", "", "Who the token is issued to; idempotency keys are scoped to it.")
		name := cmd.String("name", "", "A display name.")
		email := cmd.String("email", "", "A contact email.")
		isAdmin := cmd.Bool("admin", false, "Allow managing fee categories.")
		if err := parse(cmd, args[2:], subject); err != nil {
			return err
		}
		return cli.issueToken(*subject, *name, *email, *isAdmin)

	default:
		cli.printUsage()
		return errHelp
	}
}
