package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/rmtbiph/ratemyteacher/apps/api/echo"
	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/admin"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
	"github.com/rmtbiph/ratemyteacher/core/user"
	emailsvc "github.com/rmtbiph/ratemyteacher/services/email"
	jobsvc "github.com/rmtbiph/ratemyteacher/services/jobs"
	logsvc "github.com/rmtbiph/ratemyteacher/services/logger"
	"github.com/rmtbiph/ratemyteacher/storage/database"
	sqlxrepos "github.com/rmtbiph/ratemyteacher/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.New(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.New(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)
	defer func() {
		_ = dbLogger.Close()
		_ = logger.Close()
	}()

	if err := conf.Validate(); err != nil {
		logger.Fatal(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	guard := access.NewGuard(access.EmailSuffix(conf.AllowedEmailDomain))
	teacherRepo := sqlxrepos.NewTeacherRepository(db)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), guard)
	teacherSvc := teacher.NewService(db, teacherRepo)
	reviewSvc := review.NewService(db, sqlxrepos.NewReviewRepository(db), teacherRepo, guard)
	deviceSvc := review.NewDeviceService(sqlxrepos.NewDeviceRepository(db), reviewSvc)
	ticketSvc := ticket.NewService(sqlxrepos.NewTicketRepository(db), guard, mailSvc, conf.Admin.NotifyEmail)
	adminSigner := admin.NewSigner(conf.Admin.CookieSecret, conf.Admin.Username, conf.Admin.Password, conf.Admin.SessionMaxAge)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	review.InitValidators(validate, translator)
	ticket.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Scheduled Jobs

	if conf.Jobs.Enabled {
		scheduler := jobsvc.NewScheduler(conf.Jobs, ticketSvc, logger)
		if err = scheduler.Register(); err != nil {
			logger.Fatal(fmt.Sprintf("registering jobs: %v", err), err)
		}
		scheduler.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			scheduler.Stop(ctx)
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			DB:          db,
			UserSvc:     usrSvc,
			TeacherSvc:  teacherSvc,
			ReviewSvc:   reviewSvc,
			DeviceSvc:   deviceSvc,
			TicketSvc:   ticketSvc,
			AdminSigner: adminSigner,
			Validate:    validate,
			Translator:  translator,
		},
	)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics of the API server.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", server.Metrics())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

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
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
