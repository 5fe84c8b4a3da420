package echoapi_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/mentora/apps/api/echo"
	"github.com/trezcool/mentora/core"
	"github.com/trezcool/mentora/core/attendance"
	"github.com/trezcool/mentora/storage/database/inmem"
	"github.com/trezcool/mentora/testutil"
)

// brokenRepository fails every load with err.
type brokenRepository struct {
	attendance.Repository
	err error
}

func (repo brokenRepository) LoadSession(context.Context, string) (attendance.Session, error) {
	return attendance.Session{}, repo.err
}

func newBrokenServer(err error) (*Server, *testutil.Logger) {
	conf := testutil.Config()
	conf.Server.DisableReqLogs = true

	clock := testutil.NewClock()
	logger := &testutil.Logger{}
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	svc := attendance.NewService(
		attendance.NewManager(clock.Now, testutil.SequentialIDs("id")),
		brokenRepository{Repository: inmemdb.NewSessionRepository(), err: err},
		attendance.NewTokenCodec(conf.SecretKey, conf.AppName),
		logger,
		conf,
	)
	app := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		AttendanceSvc: svc,
		Validate:      validate,
		Translator:    translator,
	})
	return app, logger
}

func TestErrorHandler_Shutdown(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantShutdown bool
	}{
		{name: "lost database", err: core.NewShutdownError(driver.ErrBadConn), wantShutdown: true},
		{name: "other failure", err: errors.New("timeout"), wantShutdown: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, logger := newBrokenServer(tt.err)
			defer func() { _ = app.Shutdown(context.Background()) }()

			rec := httptest.NewRecorder()
			app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1", nil))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, logger.Messages, "error: Internal Server Error")

			select {
			case <-app.ShutdownSignal():
				assert.True(t, tt.wantShutdown, "unexpected shutdown")
			case <-time.After(50 * time.Millisecond):
				assert.False(t, tt.wantShutdown, "shutdown not signaled")
			}
		})
	}
}
