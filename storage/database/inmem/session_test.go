package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mentora/core/attendance"
)

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	now := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

	_, err := repo.LoadSession(ctx, "s1")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	sess := attendance.Session{
		ID:        "s1",
		MeetingID: "cs101",
		State:     attendance.StateActive,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
		Roster:    []attendance.CheckIn{{ParticipantID: "a", RecordedAt: now}},
	}
	require.NoError(t, repo.SaveSession(ctx, sess))

	// stored copies are isolated from the caller's
	sess.Roster[0].ParticipantID = "changed"
	got, err := repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Roster[0].ParticipantID)
	got.Roster[0].ParticipantID = "changed"

	sess.State = attendance.StateStopped
	sess.EndedAt = now.Add(time.Second)
	require.NoError(t, repo.SaveSession(ctx, sess))
	got, err = repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StateStopped, got.State)
	assert.Equal(t, now.Add(time.Second), got.EndedAt)
}
