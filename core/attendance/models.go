package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mentora/core"
)

// State of a Session.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateExpired  State = "expired" // terminal
	StateStopped  State = "stopped" // terminal
)

func (s State) IsTerminal() bool {
	return s == StateExpired || s == StateStopped
}

// Session is a time-boxed window during which check-ins for one meeting are accepted.
type Session struct {
	ID                string    `json:"id"`
	MeetingID         string    `json:"meeting_id"`
	TokenID           string    `json:"-"` // rotates on refresh
	ExpectedAttendees int       `json:"expected_attendees"`
	State             State     `json:"state"`
	IssuedAt          time.Time `json:"issued_at"`  // UTC
	ExpiresAt         time.Time `json:"expires_at"` // UTC
	EndedAt           time.Time `json:"ended_at"`   // UTC; zero while not terminal
	Roster            []CheckIn `json:"roster"`
}

// CheckIn is a recorded attendance claim.
type CheckIn struct {
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	RecordedAt      time.Time `json:"recorded_at"` // UTC
}

type CheckInResult struct {
	CheckIn    CheckIn `json:"check_in"`
	RosterSize int     `json:"roster_size"`
	Duplicate  bool    `json:"duplicate"`
}

// StartOptions holds optional Session settings.
type StartOptions struct {
	ExpectedAttendees int
}

// IssuedSession is a Session along with the token to hand out to participants.
type IssuedSession struct {
	Session   Session       `json:"session"`
	Token     string        `json:"token"`
	Remaining time.Duration `json:"-"`
}

// NewSession contains information needed to start a new Session.
type NewSession struct {
	MeetingID         string `json:"meeting_id" validate:"required,notblank,max=64,alphanum_"`
	TTLSeconds        int    `json:"ttl_seconds" validate:"gte=0"` // 0: default TTL
	ExpectedAttendees int    `json:"expected_attendees" validate:"gte=0"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.MeetingID = core.CleanString(ns.MeetingID)
	return validate.Struct(ns)
}

// RefreshSession defines what may be provided when refreshing an active Session.
type RefreshSession struct {
	TTLSeconds int `json:"ttl_seconds" validate:"gte=0"` // 0: default TTL
}

func (rs *RefreshSession) Validate(validate *validator.Validate) error {
	return validate.Struct(rs)
}

// NewCheckIn contains information needed to check a participant in.
type NewCheckIn struct {
	Token           string `json:"token,omitempty"`
	ParticipantID   string `json:"participant_id" validate:"required,notblank,max=64"`
	ParticipantName string `json:"participant_name" validate:"max=128"`
}

func (nc *NewCheckIn) Validate(validate *validator.Validate, tokenRequired bool) error {
	nc.Token = core.CleanString(nc.Token)
	nc.ParticipantID = core.CleanString(nc.ParticipantID)
	nc.ParticipantName = core.CleanString(nc.ParticipantName)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if tokenRequired && nc.Token == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: "this field is required"})
	}
	return nil
}
