package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	logsvc "github.com/trezcool/careercompass/services/logger"
	"github.com/trezcool/careercompass/storage/database"
	sqlxrepos "github.com/trezcool/careercompass/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	if conf.Database.InMemory() {
		logger.Fatal("the admin CLI needs a postgres database (database.engine=postgres)")
	}

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:        db.DB,
		usrSvc:    user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf),
		courseSvc: course.NewService(sqlxrepos.NewCourseRepository(db)),
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		logger.Close()
		os.Exit(1)
	}
}
