package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mentora/core"
)

type (
	// Repository persists Sessions, roster included.
	Repository interface {
		// SaveSession inserts or replaces the Session and its roster.
		SaveSession(ctx context.Context, sess Session) error
		// LoadSession returns ErrNotFound if no Session has the given ID.
		LoadSession(ctx context.Context, id string) (Session, error)
	}

	ServiceInterface interface {
		Start(ctx context.Context, ns NewSession) (IssuedSession, error)
		Refresh(ctx context.Context, id string, rs RefreshSession) (IssuedSession, error)
		Token(ctx context.Context, id string) (string, error)
		CheckIn(ctx context.Context, id string, nc NewCheckIn) (CheckInResult, error)
		CheckInWithToken(ctx context.Context, nc NewCheckIn) (CheckInResult, error)
		Stop(ctx context.Context, id string) error
		Discard(ctx context.Context, id string) error
		Resume(ctx context.Context, id string) (Session, error)
		Get(ctx context.Context, id string) (Session, error)
		Roster(ctx context.Context, id string) ([]CheckIn, error)
		Remaining(ctx context.Context, id string) (time.Duration, error)
	}

	Service struct {
		mgr    *Manager
		repo   Repository
		tokens *TokenCodec
		logger core.Logger
		conf   core.AttendanceConfig
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(mgr *Manager, repo Repository, tokens *TokenCodec, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		mgr:    mgr,
		repo:   repo,
		tokens: tokens,
		logger: logger,
		conf:   conf.Attendance,
	}
}

// ttl converts the requested TTL, 0 meaning the default one.
func (svc *Service) ttl(seconds int) (time.Duration, error) {
	if seconds == 0 {
		return svc.conf.DefaultTTL, nil
	}
	ttl := time.Duration(seconds) * time.Second
	if svc.conf.MaxTTL > 0 && ttl > svc.conf.MaxTTL {
		return 0, core.NewValidationError(nil, core.FieldError{
			Field: "ttl_seconds",
			Error: fmt.Sprintf("must be %d or less", int(svc.conf.MaxTTL/time.Second)),
		})
	}
	return ttl, nil
}

// save writes the Session's latest state. It runs under the Session's lock so that
// a slow save never overwrites a newer one.
func (svc *Service) save(ctx context.Context, id string) error {
	err := svc.mgr.Persist(id, func(sess Session) error {
		return svc.repo.SaveSession(ctx, sess)
	})
	if err != nil {
		return errors.Wrap(err, "saving session")
	}
	return nil
}

func (svc *Service) issue(sess Session) (IssuedSession, error) {
	token, err := svc.tokens.Issue(sess)
	if err != nil {
		return IssuedSession{}, errors.Wrap(err, "issuing token")
	}
	remaining, err := svc.mgr.Remaining(sess.ID)
	if err != nil {
		return IssuedSession{}, errors.Wrap(err, "getting remaining time")
	}
	return IssuedSession{Session: sess, Token: token, Remaining: remaining}, nil
}

func (svc *Service) Start(ctx context.Context, ns NewSession) (IssuedSession, error) {
	ttl, err := svc.ttl(ns.TTLSeconds)
	if err != nil {
		return IssuedSession{}, err
	}
	sess, err := svc.mgr.Start(ns.MeetingID, ttl, StartOptions{ExpectedAttendees: ns.ExpectedAttendees})
	if err != nil {
		return IssuedSession{}, errors.Wrap(err, "starting session")
	}
	if err = svc.save(ctx, sess.ID); err != nil {
		// the caller never learns the session, don't let it hold the meeting
		svc.mgr.abort(sess.ID)
		return IssuedSession{}, err
	}
	svc.logger.Info(fmt.Sprintf("session %s started for meeting %q; expires at %s",
		sess.ID, sess.MeetingID, sess.ExpiresAt.Format(time.RFC3339)))
	return svc.issue(sess)
}

func (svc *Service) Refresh(ctx context.Context, id string, rs RefreshSession) (IssuedSession, error) {
	ttl, err := svc.ttl(rs.TTLSeconds)
	if err != nil {
		return IssuedSession{}, err
	}
	sess, err := svc.mgr.Refresh(id, ttl)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			if sErr := svc.save(ctx, id); sErr != nil {
				svc.logger.Warn("could not persist session expiry", sErr)
			}
		}
		return IssuedSession{}, errors.Wrap(err, "refreshing session")
	}
	if err = svc.save(ctx, id); err != nil {
		return IssuedSession{}, err
	}
	svc.logger.Info(fmt.Sprintf("session %s refreshed; expires at %s", sess.ID, sess.ExpiresAt.Format(time.RFC3339)))
	return svc.issue(sess)
}

// Token returns the current token of an active Session.
func (svc *Service) Token(_ context.Context, id string) (string, error) {
	sess, err := svc.mgr.Get(id)
	if err != nil {
		return "", errors.Wrap(err, "getting session")
	}
	switch sess.State {
	case StateActive:
	case StateExpired:
		return "", errors.Wrapf(ErrExpired, "session %s", id)
	default:
		return "", errors.Wrapf(ErrSessionClosed, "session %s is %s", id, sess.State)
	}
	return svc.tokens.Issue(sess)
}

func (svc *Service) checkedIn(ctx context.Context, id string, nc NewCheckIn, res CheckInResult, err error) (CheckInResult, error) {
	if err != nil {
		if errors.Is(err, ErrExpired) {
			if sErr := svc.save(ctx, id); sErr != nil {
				svc.logger.Warn("could not persist session expiry", sErr)
			}
		}
		return CheckInResult{}, errors.Wrap(err, "checking in")
	}
	if res.Duplicate {
		return res, nil
	}
	if err = svc.save(ctx, id); err != nil {
		return CheckInResult{}, err
	}
	svc.logger.Debug(fmt.Sprintf("session %s: %d checked in", id, res.RosterSize),
		core.Participant{ID: nc.ParticipantID, Name: nc.ParticipantName})
	return res, nil
}

// CheckIn marks the participant present, by Session ID (manual attendance marking).
func (svc *Service) CheckIn(ctx context.Context, id string, nc NewCheckIn) (CheckInResult, error) {
	res, err := svc.mgr.CheckIn(id, nc.ParticipantID, nc.ParticipantName)
	return svc.checkedIn(ctx, id, nc, res, err)
}

// CheckInWithToken marks the participant present using a scanned session token.
func (svc *Service) CheckInWithToken(ctx context.Context, nc NewCheckIn) (CheckInResult, error) {
	claims, err := svc.tokens.Parse(nc.Token)
	if err != nil {
		return CheckInResult{}, errors.Wrap(err, "parsing token")
	}
	res, err := svc.mgr.CheckInWithTokenID(claims.Subject, claims.Id, nc.ParticipantID, nc.ParticipantName)
	return svc.checkedIn(ctx, claims.Subject, nc, res, err)
}

func (svc *Service) Stop(ctx context.Context, id string) error {
	if err := svc.mgr.Stop(id); err != nil {
		return errors.Wrap(err, "stopping session")
	}
	if err := svc.save(ctx, id); err != nil {
		return err
	}
	svc.logger.Info(fmt.Sprintf("session %s stopped", id))
	return nil
}

// Discard releases a terminal Session from memory. Its persisted copy is kept.
func (svc *Service) Discard(ctx context.Context, id string) error {
	err := svc.mgr.Persist(id, func(sess Session) error {
		if !sess.State.IsTerminal() {
			return nil // refused by the Manager below
		}
		// keep the final state (eg. a lazily detected expiry) before letting go
		return svc.repo.SaveSession(ctx, sess)
	})
	if err != nil {
		return errors.Wrap(err, "saving session")
	}
	if err = svc.mgr.Discard(id); err != nil {
		return errors.Wrap(err, "discarding session")
	}
	return nil
}

// Resume loads a persisted Session back into the Manager, eg. after a restart.
func (svc *Service) Resume(ctx context.Context, id string) (Session, error) {
	sess, err := svc.repo.LoadSession(ctx, id)
	if err != nil {
		return Session{}, errors.Wrap(err, "loading session")
	}
	sess, err = svc.mgr.Restore(sess)
	if err != nil {
		return Session{}, errors.Wrap(err, "restoring session")
	}
	svc.logger.Info(fmt.Sprintf("session %s resumed (%s)", sess.ID, sess.State))
	return sess, nil
}

// Get returns a live Session, or its persisted copy once discarded.
func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	sess, err := svc.mgr.Get(id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, errors.Wrap(err, "getting session")
	}
	sess, err = svc.repo.LoadSession(ctx, id)
	if err != nil {
		return Session{}, errors.Wrap(err, "loading session")
	}
	return sess, nil
}

func (svc *Service) Roster(ctx context.Context, id string) ([]CheckIn, error) {
	roster, err := svc.mgr.Roster(id)
	if err == nil {
		return roster, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "getting roster")
	}
	sess, err := svc.repo.LoadSession(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "loading session")
	}
	return sess.Roster, nil
}

func (svc *Service) Remaining(_ context.Context, id string) (time.Duration, error) {
	d, err := svc.mgr.Remaining(id)
	if err != nil {
		return 0, errors.Wrap(err, "getting remaining time")
	}
	return d, nil
}
