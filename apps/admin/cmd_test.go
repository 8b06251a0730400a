package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	inmemdb "github.com/trezcool/careercompass/storage/database/inmem"
	"github.com/trezcool/careercompass/tests"
)

var (
	db         *inmemdb.DB
	usrRepo    user.Repository
	courseRepo course.Repository
	out        *bytes.Buffer
)

func setup(t *testing.T) *commandLine {
	conf := testutil.NewConfig()
	db = inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	courseRepo = inmemdb.NewCourseRepository(db)
	out = new(bytes.Buffer)

	return &commandLine{
		usrSvc:    user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, &testutil.Logger{}), conf),
		courseSvc: course.NewService(courseRepo),
		out:       out,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantAnyErr bool
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantAnyErr:
		assert.Error(t, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotArgs []string
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		gotArgs = append([]string{command}, args...)
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_coupons", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotArgs = nil
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if len(tt.args) > 1 {
				assert.Equal(t, tt.args[1:], gotArgs)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, usrRepo, "Taken", "taken@test.cd", "", "", true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no flags", args: []string{"adduser"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol", "x"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-name", "Awe"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Awe", "-email", "awe@test.cd"}, wantErr: errHelp},
		{
			name:       "invalid role",
			args:       []string{"adduser", "-name", "Awe", "-email", "awe@test.cd", "-role", "root"},
			extra:      "s3cr3t-pwd",
			wantErrStr: "\"root\": no such role",
		},
		{
			name:       "email taken",
			args:       []string{"adduser", "-name", "Awe", "-email", " Taken@Test.cd "},
			extra:      "s3cr3t-pwd",
			wantErrStr: user.ErrEmailExists.Error(),
		},
		{name: "student", args: []string{"adduser", "-name", "Awe", "-email", "Awe@Test.cd"}, extra: "s3cr3t-pwd"},
		{
			name:  "instructor",
			args:  []string{"adduser", "-name", "Prof", "-email", "prof@test.cd", "-role", user.RoleInstructor},
			extra: "s3cr3t-pwd",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ctx := context.Background()
	usr, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "awe@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("s3cr3t-pwd"))

	prof, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "prof@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleInstructor, prof.Role)
	assert.Contains(t, out.String(), "created instructor prof@test.cd")
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "User", "awe@test.cd", "mdr", "", true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.Error(t, refreshed.CheckPassword("mdr"))
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_setRole(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "User", "awe@test.cd", "", "", true)

	tests := []cliTest{
		{name: "no args", args: []string{"setrole"}, wantErr: errHelp},
		{name: "no role", args: []string{"setrole", "-email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"setrole", "-email", "lol@test.cd", "-role", "admin"}, wantErr: user.ErrNotFound},
		{name: "invalid role", args: []string{"setrole", "-email", usr.Email, "-role", "root"}, wantAnyErr: true},
		{name: "promote", args: []string{"setrole", "-email", usr.Email, "-role", user.RoleInstructor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.Equal(t, user.RoleInstructor, refreshed.Role)
	assert.Contains(t, out.String(), "awe@test.cd is now instructor")
}

func Test_commandLine_reconcile(t *testing.T) {
	cli := setup(t)
	instructor := testutil.CreateUser(t, usrRepo, "Prof", "prof@test.cd", "", user.RoleInstructor, true)
	c1 := testutil.CreateCourse(t, courseRepo, instructor.ID, "Go 101", 0, true)
	testutil.CreateCourse(t, courseRepo, instructor.ID, "Go 201", 0, true)
	db.SetEnrollmentCount(c1.ID, 3)

	require.NoError(t, cli.run([]string{"admin", "reconcile"}))
	assert.Equal(t, "1 course(s) fixed\n", out.String())

	got, err := courseRepo.GetCourse(context.Background(), course.GetFilter{ID: c1.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.EnrollmentCount)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "reconcile"}))
	assert.Equal(t, "0 course(s) fixed\n", out.String())
}
