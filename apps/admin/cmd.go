package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/user"
	"github.com/trezcool/careercompass/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrSvc    *user.Service
	courseSvc *course.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose command (up, down, status, redo, ...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-role ROLE]    - create a user, the password is prompted next")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                      - reset a user's password")
	fmt.Fprintln(cli.out, "  setrole -email EMAIL -role ROLE                 - change a user's role")
	fmt.Fprintln(cli.out, "  reconcile                                       - recompute the enrollment counts of all courses")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "One of student, instructor or admin.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	setRoleCmd := flag.NewFlagSet("setrole", flag.ContinueOnError)
	setRoleCmd.SetOutput(cli.out)
	setRoleEmail := setRoleCmd.String("email", "", "The user's email.")
	setRoleRole := setRoleCmd.String("role", "", "One of student, instructor or admin.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "setrole":
		if err := setRoleCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *setRoleEmail == "" || *setRoleRole == "" {
			setRoleCmd.Usage()
			return errHelp
		}
		return cli.setRole(*setRoleEmail, *setRoleRole)

	case "reconcile":
		return cli.reconcile()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}

func (cli *commandLine) addUser(name, email, role, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	if !user.IsValidRole(role) {
		return fmt.Errorf("%q: no such role", role)
	}
	if err := cli.usrSvc.CheckUniqueness(ctx, email); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, user.NewUser{Name: name, Email: email, Role: role, Password: pwd})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %s (%s)\n", usr.Role, usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
	return err
}

func (cli *commandLine) setRole(email, role string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr, err = cli.usrSvc.SetRole(ctx, usr, role); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s is now %s\n", usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) reconcile() error {
	fixed, err := cli.courseSvc.ReconcileEnrollmentCounts(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d course(s) fixed\n", fixed)
	return nil
}
