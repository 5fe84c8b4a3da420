package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/mentora/core/attendance"
)

type (
	sessionResponse struct {
		Session          attendance.Session `json:"session"`
		Token            string             `json:"token,omitempty"`
		RemainingSeconds int                `json:"remaining_seconds"`
	}

	remainingResponse struct {
		RemainingSeconds int `json:"remaining_seconds"`
	}
)

// seconds rounds d up, so that an open session never shows 0.
func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

type attendanceApi struct {
	svc      attendance.ServiceInterface
	validate *validator.Validate
	qrSize   int
}

func registerAttendanceAPI(g *echo.Group, svc attendance.ServiceInterface, validate *validator.Validate, qrSize int) {
	api := attendanceApi{
		svc:      svc,
		validate: validate,
		qrSize:   qrSize,
	}

	// participants
	g.POST("/check-ins", api.checkInWithToken)

	// operators
	sg := g.Group("/sessions")
	sg.POST("", api.start)

	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.discard)
	dg.POST("/refresh", api.refresh)
	dg.POST("/stop", api.stop)
	dg.POST("/resume", api.resume)
	dg.GET("/roster", api.roster)
	dg.GET("/remaining", api.remaining)
	dg.GET("/qr.png", api.qrCode)
	dg.POST("/check-ins", api.checkIn)
}

// Handlers

func (api *attendanceApi) start(ctx echo.Context) error {
	var data attendance.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	issued, err := api.svc.Start(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusCreated, sessionResponse{
		Session:          issued.Session,
		Token:            issued.Token,
		RemainingSeconds: seconds(issued.Remaining),
	})
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	id := ctx.Param("id")
	sess, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}

	var remaining time.Duration
	if sess.State == attendance.StateActive {
		// not loaded: eg. persisted by a previous process and not resumed yet
		if remaining, err = api.svc.Remaining(ctx.Request().Context(), id); err != nil && !errors.Is(err, attendance.ErrNotFound) {
			return errors.Wrap(err, "getting remaining time")
		}
	}
	return ctx.JSON(http.StatusOK, sessionResponse{Session: sess, RemainingSeconds: seconds(remaining)})
}

func (api *attendanceApi) refresh(ctx echo.Context) error {
	var data attendance.RefreshSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	issued, err := api.svc.Refresh(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "refreshing session")
	}
	return ctx.JSON(http.StatusOK, sessionResponse{
		Session:          issued.Session,
		Token:            issued.Token,
		RemainingSeconds: seconds(issued.Remaining),
	})
}

func (api *attendanceApi) stop(ctx echo.Context) error {
	if err := api.svc.Stop(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "stopping session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) discard(ctx echo.Context) error {
	if err := api.svc.Discard(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "discarding session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) resume(ctx echo.Context) error {
	id := ctx.Param("id")
	sess, err := api.svc.Resume(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "resuming session")
	}
	remaining, err := api.svc.Remaining(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting remaining time")
	}
	return ctx.JSON(http.StatusOK, sessionResponse{Session: sess, RemainingSeconds: seconds(remaining)})
}

func (api *attendanceApi) roster(ctx echo.Context) error {
	roster, err := api.svc.Roster(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting roster")
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *attendanceApi) remaining(ctx echo.Context) error {
	remaining, err := api.svc.Remaining(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting remaining time")
	}
	return ctx.JSON(http.StatusOK, remainingResponse{RemainingSeconds: seconds(remaining)})
}

// qrCode renders the current session token as a PNG QR code.
func (api *attendanceApi) qrCode(ctx echo.Context) error {
	token, err := api.svc.Token(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting token")
	}
	png, err := qrcode.Encode(token, qrcode.Medium, api.qrSize)
	if err != nil {
		return errors.Wrap(err, "encoding QR code")
	}
	ctx.Response().Header().Set("Cache-Control", "no-store")
	return ctx.Blob(http.StatusOK, "image/png", png)
}

// checkIn is the manual check-in, by session ID.
func (api *attendanceApi) checkIn(ctx echo.Context) error {
	var data attendance.NewCheckIn
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckIn")
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}

	res, err := api.svc.CheckIn(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "checking in")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) checkInWithToken(ctx echo.Context) error {
	var data attendance.NewCheckIn
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckIn")
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}

	res, err := api.svc.CheckInWithToken(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "checking in")
	}
	return ctx.JSON(http.StatusOK, res)
}
