package attendance

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/mentora/core"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func fieldErrors(err error) []string {
	var fields []string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range e {
			fields = append(fields, fe.Field())
		}
	case *core.ValidationError:
		for _, fe := range e.Fields {
			fields = append(fields, fe.Field)
		}
	}
	return fields
}

func TestNewSession_Validate(t *testing.T) {
	validate := newValidator()
	tests := []struct {
		name       string
		ns         NewSession
		wantFields []string
	}{
		{name: "ok", ns: NewSession{MeetingID: " cs-101_a ", TTLSeconds: 60}},
		{name: "default ttl", ns: NewSession{MeetingID: "cs101"}},
		{name: "no meeting", ns: NewSession{}, wantFields: []string{"meeting_id"}},
		{name: "bad meeting", ns: NewSession{MeetingID: "cs/101"}, wantFields: []string{"meeting_id"}},
		{name: "negative values", ns: NewSession{MeetingID: "cs101", TTLSeconds: -1, ExpectedAttendees: -1}, wantFields: []string{"ttl_seconds", "expected_attendees"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ns.Validate(validate)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			assert.ElementsMatch(t, tt.wantFields, fieldErrors(err))
		})
	}
}

func TestNewCheckIn_Validate(t *testing.T) {
	validate := newValidator()
	tests := []struct {
		name          string
		nc            NewCheckIn
		tokenRequired bool
		wantFields    []string
	}{
		{name: "manual", nc: NewCheckIn{ParticipantID: "a"}},
		{name: "scan", nc: NewCheckIn{Token: "tok", ParticipantID: "a", ParticipantName: "Alice"}, tokenRequired: true},
		{name: "blank participant", nc: NewCheckIn{ParticipantID: "   "}, wantFields: []string{"participant_id"}},
		{name: "no token", nc: NewCheckIn{ParticipantID: "a"}, tokenRequired: true, wantFields: []string{"token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nc.Validate(validate, tt.tokenRequired)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			assert.ElementsMatch(t, tt.wantFields, fieldErrors(err))
		})
	}
}
