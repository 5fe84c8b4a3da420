package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/mentora/apps/api/echo"
	"github.com/trezcool/mentora/core"
	"github.com/trezcool/mentora/core/attendance"
	logsvc "github.com/trezcool/mentora/services/logger"
	"github.com/trezcool/mentora/storage/database"
	inmemdb "github.com/trezcool/mentora/storage/database/inmem"
	sqlxrepos "github.com/trezcool/mentora/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBParam holds the DB, absent when sessions are kept in memory only.
type DBParam struct {
	dig.In
	DB *sqlx.DB `optional:"true"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
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

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
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

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newSessionRepository(conf *core.Config, dbParam DBParam) attendance.Repository {
	if conf.Database.InMemory || dbParam.DB == nil {
		return inmemdb.NewSessionRepository()
	}
	return sqlxrepos.NewSessionRepository(dbParam.DB)
}

func newManager() *attendance.Manager {
	return attendance.NewManager(attendance.SystemClock, attendance.UUIDGenerator)
}

func newTokenCodec(conf *core.Config) *attendance.TokenCodec {
	return attendance.NewTokenCodec(conf.SecretKey, conf.AppName)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	svc attendance.ServiceInterface,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		AttendanceSvc: svc,
		Validate:      validate,
		Translator:    translator,
	})
}

// New returns a new dependency injection dig.Container
func New(conf *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(func() *core.Config { return conf }))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	if !conf.Database.InMemory {
		must(c.Provide(newDB))
	}
	must(c.Provide(newSessionRepository))
	must(c.Provide(newManager))
	must(c.Provide(newTokenCodec))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(attendance.NewService, dig.As(new(attendance.ServiceInterface))))
	must(c.Provide(newServer))

	if conf.Debug {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
