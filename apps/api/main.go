package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"
	"path/filepath"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/careercompass/apps/api/echo"
	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	logsvc "github.com/trezcool/careercompass/services/logger"
	paymentsvc "github.com/trezcool/careercompass/services/payment"
	"github.com/trezcool/careercompass/services/scheduler"
	"github.com/trezcool/careercompass/storage/database"
	inmemdb "github.com/trezcool/careercompass/storage/database/inmem"
	sqlxrepos "github.com/trezcool/careercompass/storage/database/sqlx"
)

type repositories struct {
	users       user.Repository
	courses     course.Repository
	enrollments enrollment.Repository
	progress    progress.Repository
	lectures    lecture.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	repos, closeDB, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// an unset gateway must stay a nil interface
	var gateway enrollment.PaymentGateway
	if conf.Stripe.SecretKey != "" {
		gateway = paymentsvc.NewStripeGateway(conf)
	} else {
		logger.Warn("no Stripe secret key configured: paid enrollments are disabled")
	}

	usrSvc := user.NewService(repos.users, mailSvc, conf)
	courseSvc := course.NewService(repos.courses)
	engine := enrollment.NewEngine(enrollment.EngineDeps{
		Repo:    repos.enrollments,
		Courses: courseSvc,
		Users:   usrSvc,
		Gateway: gateway,
		MailSvc: mailSvc,
		Logger:  logger,
		Conf:    conf,
	})
	aggregator := progress.NewAggregator(progress.AggregatorDeps{
		Repo:        repos.progress,
		Catalog:     courseSvc,
		Enrollments: engine,
		Users:       usrSvc,
		MailSvc:     mailSvc,
		Logger:      logger,
	})
	lectureSvc := lecture.NewService(repos.lectures)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(filepath.Join(conf.WorkDir, "assets", "common-passwords.txt.gz"), logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Enrollment Count Reconciliation

	sched, err := scheduler.New(conf.ReconcileSchedule, courseSvc, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}
	sched.Start()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		UserSvc:     usrSvc,
		CourseSvc:   courseSvc,
		Enrollments: engine,
		Progress:    aggregator,
		LectureSvc:  lectureSvc,
	})

	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Host))
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
	if err = sched.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop scheduler gracefully: %v", err), err)
	}
}

// setUpStorage returns the repositories of the configured engine & a func releasing them.
func setUpStorage(conf *core.Config) (repositories, func() error, error) {
	if conf.Database.InMemory() {
		db := inmemdb.NewDB()
		return repositories{
			users:       inmemdb.NewUserRepository(db),
			courses:     inmemdb.NewCourseRepository(db),
			enrollments: inmemdb.NewEnrollmentRepository(db),
			progress:    inmemdb.NewProgressRepository(db),
			lectures:    inmemdb.NewLectureRepository(db),
		}, func() error { return nil }, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return repositories{}, nil, err
	}
	return repositories{
		users:       sqlxrepos.NewUserRepository(db),
		courses:     sqlxrepos.NewCourseRepository(db),
		enrollments: sqlxrepos.NewEnrollmentRepository(db),
		progress:    sqlxrepos.NewProgressRepository(db),
		lectures:    sqlxrepos.NewLectureRepository(db),
	}, db.Close, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
