package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/trezcool/mentora/core/attendance"
	"github.com/trezcool/mentora/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db   *sql.DB
	repo attendance.Repository
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run database migrations (up, up-by-one, up-to N, down, down-to N, redo, reset, status, version, fix)")
	fmt.Fprintln(cli.out, "  roster -session ID     - print a session's roster")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	rosterCmd := flag.NewFlagSet("roster", flag.ContinueOnError)
	rosterCmd.SetOutput(cli.out)
	rosterSessionID := rosterCmd.String("session", "", "The session ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "roster":
		if err := rosterCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rosterSessionID == "" {
			rosterCmd.Usage()
			return errHelp
		}
		return cli.roster(*rosterSessionID)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}

func (cli *commandLine) roster(sessionID string) error {
	sess, err := cli.repo.LoadSession(context.Background(), sessionID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "Session %s (meeting %s): %s\n", sess.ID, sess.MeetingID, sess.State)
	fmt.Fprintf(cli.out, "Window: %s - %s\n", sess.IssuedAt.Format(time.RFC3339), sess.ExpiresAt.Format(time.RFC3339))
	if sess.ExpectedAttendees > 0 {
		fmt.Fprintf(cli.out, "Attendance: %d/%d\n", len(sess.Roster), sess.ExpectedAttendees)
	} else {
		fmt.Fprintf(cli.out, "Attendance: %d\n", len(sess.Roster))
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPARTICIPANT\tNAME\tCHECKED IN")
	for i, ci := range sess.Roster {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, ci.ParticipantID, ci.ParticipantName, ci.RecordedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
