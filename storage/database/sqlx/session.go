package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mentora/core"
	"github.com/trezcool/mentora/core/attendance"
)

type (
	sessionRow struct {
		ID                string       `db:"id"`
		MeetingID         string       `db:"meeting_id"`
		TokenID           string       `db:"token_id"`
		ExpectedAttendees int          `db:"expected_attendees"`
		State             string       `db:"state"`
		IssuedAt          time.Time    `db:"issued_at"`
		ExpiresAt         time.Time    `db:"expires_at"`
		EndedAt           sql.NullTime `db:"ended_at"`
	}

	checkInRow struct {
		SessionID       string    `db:"session_id"`
		ParticipantID   string    `db:"participant_id"`
		ParticipantName string    `db:"participant_name"`
		RecordedAt      time.Time `db:"recorded_at"`
	}
)

const (
	upsertSessionQuery = `INSERT INTO attendance_sessions
	(id, meeting_id, token_id, expected_attendees, state, issued_at, expires_at, ended_at, updated_at)
VALUES (:id, :meeting_id, :token_id, :expected_attendees, :state, :issued_at, :expires_at, :ended_at, NOW())
ON CONFLICT (id) DO UPDATE SET
	token_id = EXCLUDED.token_id,
	state = EXCLUDED.state,
	issued_at = EXCLUDED.issued_at,
	expires_at = EXCLUDED.expires_at,
	ended_at = EXCLUDED.ended_at,
	updated_at = NOW()`

	insertCheckInQuery = `INSERT INTO attendance_check_ins (session_id, participant_id, participant_name, recorded_at)
VALUES (:session_id, :participant_id, :participant_name, :recorded_at)
ON CONFLICT (session_id, participant_id) DO NOTHING`

	selectSessionQuery = `SELECT id, meeting_id, token_id, expected_attendees, state, issued_at, expires_at, ended_at
FROM attendance_sessions WHERE id = $1`

	selectCheckInsQuery = `SELECT session_id, participant_id, participant_name, recorded_at
FROM attendance_check_ins WHERE session_id = $1 ORDER BY %s`
)

var rosterOrdering = []core.DBOrdering{
	{Field: "recorded_at", Ascending: true},
	{Field: "participant_id", Ascending: true},
}

type sessionRepository struct {
	db core.DB
}

var _ attendance.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db core.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func toRow(sess attendance.Session) sessionRow {
	return sessionRow{
		ID:                sess.ID,
		MeetingID:         sess.MeetingID,
		TokenID:           sess.TokenID,
		ExpectedAttendees: sess.ExpectedAttendees,
		State:             string(sess.State),
		IssuedAt:          sess.IssuedAt.UTC(),
		ExpiresAt:         sess.ExpiresAt.UTC(),
		EndedAt:           sql.NullTime{Time: sess.EndedAt.UTC(), Valid: !sess.EndedAt.IsZero()},
	}
}

func (row sessionRow) session(checkIns []checkInRow) attendance.Session {
	sess := attendance.Session{
		ID:                row.ID,
		MeetingID:         row.MeetingID,
		TokenID:           row.TokenID,
		ExpectedAttendees: row.ExpectedAttendees,
		State:             attendance.State(row.State),
		IssuedAt:          row.IssuedAt.UTC(),
		ExpiresAt:         row.ExpiresAt.UTC(),
		Roster:            make([]attendance.CheckIn, 0, len(checkIns)),
	}
	if row.EndedAt.Valid {
		sess.EndedAt = row.EndedAt.Time.UTC()
	}
	for _, ci := range checkIns {
		sess.Roster = append(sess.Roster, attendance.CheckIn{
			ParticipantID:   ci.ParticipantID,
			ParticipantName: ci.ParticipantName,
			RecordedAt:      ci.RecordedAt.UTC(),
		})
	}
	return sess
}

// unrecoverable flags a connection database/sql already gave up on, after its own retries.
func unrecoverable(err error) error {
	if errors.Is(err, driver.ErrBadConn) {
		return core.NewShutdownError(err)
	}
	return err
}

// SaveSession upserts the session; check-ins are only ever added.
func (repo *sessionRepository) SaveSession(ctx context.Context, sess attendance.Session) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(unrecoverable(err), "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = unrecoverable(err)
		}
	}()

	if _, err = sqlx.NamedExecContext(ctx, tx, upsertSessionQuery, toRow(sess)); err != nil {
		return errors.Wrap(err, "upserting session")
	}
	for _, ci := range sess.Roster {
		row := checkInRow{
			SessionID:       sess.ID,
			ParticipantID:   ci.ParticipantID,
			ParticipantName: ci.ParticipantName,
			RecordedAt:      ci.RecordedAt.UTC(),
		}
		if _, err = sqlx.NamedExecContext(ctx, tx, insertCheckInQuery, row); err != nil {
			return errors.Wrapf(err, "inserting check-in of %s", ci.ParticipantID)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func (repo *sessionRepository) LoadSession(ctx context.Context, id string) (attendance.Session, error) {
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, selectSessionQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Session{}, errors.Wrapf(attendance.ErrNotFound, "session %q", id)
		}
		return attendance.Session{}, errors.Wrap(unrecoverable(err), "selecting session")
	}

	var checkIns []checkInRow
	if err := repo.db.SelectContext(ctx, &checkIns, fmt.Sprintf(selectCheckInsQuery, orderBy(rosterOrdering)), id); err != nil {
		return attendance.Session{}, errors.Wrap(unrecoverable(err), "selecting check-ins")
	}
	return row.session(checkIns), nil
}

func orderBy(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return strings.Join(orderList, ", ")
}
