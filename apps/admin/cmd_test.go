package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mentora/core/attendance"
	"github.com/trezcool/mentora/storage/database/inmem"
	"github.com/trezcool/mentora/testutil"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &commandLine{
		repo: inmemdb.NewSessionRepository(),
		out:  &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_roster(t *testing.T) {
	cli, out := setup(t)

	sess := attendance.Session{
		ID:                "s1",
		MeetingID:         "cs101",
		ExpectedAttendees: 3,
		State:             attendance.StateStopped,
		IssuedAt:          testutil.Epoch,
		ExpiresAt:         testutil.Epoch.Add(5 * time.Minute),
		EndedAt:           testutil.Epoch.Add(time.Minute),
		Roster: []attendance.CheckIn{
			{ParticipantID: "a", ParticipantName: "Alice", RecordedAt: testutil.Epoch.Add(2 * time.Second)},
			{ParticipantID: "b", ParticipantName: "Bob", RecordedAt: testutil.Epoch.Add(4 * time.Second)},
		},
	}
	require.NoError(t, cli.repo.SaveSession(context.Background(), sess))

	tests := []cliTest{
		{name: "no session", args: []string{"roster"}, wantErr: errHelp},
		{name: "unknown session", args: []string{"roster", "-session", "nope"}, wantErr: attendance.ErrNotFound},
		{name: "ok", args: []string{"roster", "-session", "s1"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), "Session s1 (meeting cs101): stopped")
			assert.Contains(t, out.String(), "Attendance: 2/3")
			assert.Contains(t, out.String(), "Alice")
			assert.Contains(t, out.String(), "2021-03-01T09:00:04Z")
		})
	}
}
