package attendance

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mentora/core"
)

type (
	// Clock returns the current time.
	Clock func() time.Time

	// IDGenerator returns a new unique identifier.
	IDGenerator func() string
)

// SystemClock is the wall clock, in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// UUIDGenerator returns random (v4) UUIDs.
func UUIDGenerator() string { return uuid.New().String() }

// entry holds a Session's state. mu serializes every access to it.
type entry struct {
	mu     sync.Mutex
	sess   Session // Roster is always nil here, see roster
	roster []CheckIn
	index  map[string]int // participantID -> roster index
}

func newEntry(sess Session) *entry {
	e := &entry{index: make(map[string]int, len(sess.Roster))}
	for _, ci := range sess.Roster {
		if _, ok := e.index[ci.ParticipantID]; ok {
			continue
		}
		e.index[ci.ParticipantID] = len(e.roster)
		e.roster = append(e.roster, ci)
	}
	sess.Roster = nil
	e.sess = sess
	return e
}

func (e *entry) activate(now time.Time, ttl time.Duration, tokenID string) {
	e.sess.State = StateActive
	e.sess.TokenID = tokenID
	e.sess.IssuedAt = now
	e.sess.ExpiresAt = now.Add(ttl)
}

// expireIfDue transitions an active Session past its deadline to StateExpired.
func (e *entry) expireIfDue(now time.Time) {
	if e.sess.State == StateActive && now.After(e.sess.ExpiresAt) {
		e.sess.State = StateExpired
		e.sess.EndedAt = e.sess.ExpiresAt
	}
}

// checkOpen reports why check-ins are not accepted, if so.
func (e *entry) checkOpen(now time.Time) error {
	e.expireIfDue(now)
	switch e.sess.State {
	case StateActive:
		return nil
	case StateExpired:
		return errors.Wrapf(ErrExpired, "session %s expired at %s", e.sess.ID, e.sess.ExpiresAt.Format(time.RFC3339))
	default:
		return errors.Wrapf(ErrSessionClosed, "session %s is %s", e.sess.ID, e.sess.State)
	}
}

func (e *entry) remaining(now time.Time) time.Duration {
	e.expireIfDue(now)
	if e.sess.State != StateActive {
		return 0
	}
	if d := e.sess.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// rosterSnapshot returns a copy of the roster ordered by RecordedAt ascending.
func (e *entry) rosterSnapshot() []CheckIn {
	roster := make([]CheckIn, len(e.roster))
	copy(roster, e.roster)
	sort.SliceStable(roster, func(i, j int) bool { return roster[i].RecordedAt.Before(roster[j].RecordedAt) })
	return roster
}

func (e *entry) snapshot() Session {
	sess := e.sess
	sess.Roster = e.rosterSnapshot()
	return sess
}

// Manager owns attendance Sessions and mediates all check-ins against them.
// At most one Session per meeting is active at a time.
// Expiry is evaluated lazily, against the Clock, whenever a Session is accessed.
type Manager struct {
	mu       sync.RWMutex // guards sessions & active, not their entries
	sessions map[string]*entry
	active   map[string]string // meetingID -> sessionID

	now   Clock
	newID IDGenerator
}

func NewManager(now Clock, newID IDGenerator) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		active:   make(map[string]string),
		now:      now,
		newID:    newID,
	}
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.sessions[sessionID]; ok {
		return e, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "session %q", sessionID)
}

// meetingBusy reports whether the meeting has an active session. m.mu must be held.
func (m *Manager) meetingBusy(meetingID string, now time.Time) (string, bool) {
	sid, ok := m.active[meetingID]
	if !ok {
		return "", false
	}
	if e, ok := m.sessions[sid]; ok {
		e.mu.Lock()
		e.expireIfDue(now)
		busy := e.sess.State == StateActive
		e.mu.Unlock()
		if busy {
			return sid, true
		}
	}
	delete(m.active, meetingID)
	return "", false
}

// Start opens a new Session for the meeting, valid for ttl.
func (m *Manager) Start(meetingID string, ttl time.Duration, opts ...StartOptions) (Session, error) {
	meetingID = core.CleanString(meetingID)
	if meetingID == "" {
		return Session{}, errors.Wrap(ErrInvalidArgument, "meeting id is required")
	}
	if ttl <= 0 {
		return Session{}, errors.Wrapf(ErrInvalidArgument, "ttl must be positive, got %s", ttl)
	}
	var opt StartOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.ExpectedAttendees < 0 {
		return Session{}, errors.Wrapf(ErrInvalidArgument, "expected attendees must not be negative, got %d", opt.ExpectedAttendees)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if sid, busy := m.meetingBusy(meetingID, now); busy {
		return Session{}, errors.Wrapf(ErrConflict, "meeting %q already has an active session (%s)", meetingID, sid)
	}

	id := m.newID()
	if _, exists := m.sessions[id]; exists {
		return Session{}, errors.Wrapf(ErrConflict, "session id %q already in use", id)
	}
	e := newEntry(Session{
		ID:                id,
		MeetingID:         meetingID,
		ExpectedAttendees: opt.ExpectedAttendees,
		State:             StateInactive,
	})
	e.activate(now, ttl, m.newID())

	m.sessions[id] = e
	m.active[meetingID] = id
	return e.snapshot(), nil
}

// CheckIn records the participant's attendance. Checking in twice is a no-op.
// A stopped Session reports ErrSessionClosed even once its deadline has passed:
// ErrExpired is only returned for Sessions that ran out while active.
func (m *Manager) CheckIn(sessionID, participantID, participantName string) (CheckInResult, error) {
	return m.checkIn(sessionID, "", participantID, participantName)
}

// CheckInWithTokenID is CheckIn for a participant presenting a token:
// the Session's current TokenID must match, ie. tokens superseded by a Refresh are rejected.
func (m *Manager) CheckInWithTokenID(sessionID, tokenID, participantID, participantName string) (CheckInResult, error) {
	if tokenID == "" {
		return CheckInResult{}, ErrInvalidToken
	}
	return m.checkIn(sessionID, tokenID, participantID, participantName)
}

func (m *Manager) checkIn(sessionID, tokenID, participantID, participantName string) (CheckInResult, error) {
	participantID = core.CleanString(participantID)
	if participantID == "" {
		return CheckInResult{}, errors.Wrap(ErrInvalidArgument, "participant id is required")
	}

	e, err := m.lookup(sessionID)
	if err != nil {
		return CheckInResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	if err = e.checkOpen(now); err != nil {
		return CheckInResult{}, err
	}
	if tokenID != "" && tokenID != e.sess.TokenID {
		return CheckInResult{}, ErrInvalidToken
	}

	if i, ok := e.index[participantID]; ok {
		return CheckInResult{CheckIn: e.roster[i], RosterSize: len(e.roster), Duplicate: true}, nil
	}
	ci := CheckIn{
		ParticipantID:   participantID,
		ParticipantName: core.CleanString(participantName),
		RecordedAt:      now,
	}
	e.index[participantID] = len(e.roster)
	e.roster = append(e.roster, ci)
	return CheckInResult{CheckIn: ci, RosterSize: len(e.roster)}, nil
}

// Stop closes an active Session. Stopping a terminal Session is a no-op.
func (m *Manager) Stop(sessionID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	e.expireIfDue(now)
	if e.sess.State == StateActive {
		e.sess.State = StateStopped
		e.sess.EndedAt = now
	}
	return nil
}

// Refresh rotates the token of an active Session and resets its deadline to now + ttl.
// The roster is kept.
func (m *Manager) Refresh(sessionID string, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		return Session{}, errors.Wrapf(ErrInvalidArgument, "ttl must be positive, got %s", ttl)
	}

	e, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	if err = e.checkOpen(now); err != nil {
		return Session{}, err
	}
	e.activate(now, ttl, m.newID())
	return e.snapshot(), nil
}

// Roster returns the Session's check-ins ordered by RecordedAt ascending.
// It is a point-in-time snapshot.
func (m *Manager) Roster(sessionID string) ([]CheckIn, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireIfDue(m.now())
	return e.rosterSnapshot(), nil
}

// Remaining returns how long the Session stays open; zero once terminal.
func (m *Manager) Remaining(sessionID string) (time.Duration, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.remaining(m.now()), nil
}

// Get returns a snapshot of the Session, roster included.
func (m *Manager) Get(sessionID string) (Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireIfDue(m.now())
	return e.snapshot(), nil
}

// Discard drops a terminal Session along with its roster.
func (m *Manager) Discard(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "session %q", sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireIfDue(m.now())
	if !e.sess.State.IsTerminal() {
		return errors.Wrapf(ErrConflict, "session %s is %s", sessionID, e.sess.State)
	}
	if m.active[e.sess.MeetingID] == sessionID {
		delete(m.active, e.sess.MeetingID)
	}
	delete(m.sessions, sessionID)
	return nil
}

// Persist calls save with a snapshot of the Session, holding the Session's lock until save returns.
// Saves of a Session are thus serialized, each one carrying the latest state.
func (m *Manager) Persist(sessionID string, save func(Session) error) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireIfDue(m.now())
	return save(e.snapshot())
}

// abort forgets a Session which could not be handed out, freeing its meeting.
func (m *Manager) abort(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	e.mu.Lock()
	meetingID := e.sess.MeetingID
	e.mu.Unlock()

	if m.active[meetingID] == sessionID {
		delete(m.active, meetingID)
	}
	delete(m.sessions, sessionID)
}

// Restore takes ownership of a previously issued Session, eg. one loaded from storage.
func (m *Manager) Restore(sess Session) (Session, error) {
	if sess.ID == "" || core.CleanString(sess.MeetingID) == "" {
		return Session{}, errors.Wrap(ErrInvalidArgument, "session id and meeting id are required")
	}
	if sess.State != StateInactive && !sess.ExpiresAt.After(sess.IssuedAt) {
		return Session{}, errors.Wrapf(ErrInvalidArgument, "session %s expires before it is issued", sess.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return Session{}, errors.Wrapf(ErrConflict, "session %s already loaded", sess.ID)
	}

	now := m.now()
	e := newEntry(sess)
	e.expireIfDue(now)
	if e.sess.State == StateActive {
		if sid, busy := m.meetingBusy(e.sess.MeetingID, now); busy {
			return Session{}, errors.Wrapf(ErrConflict, "meeting %q already has an active session (%s)", e.sess.MeetingID, sid)
		}
		m.active[e.sess.MeetingID] = e.sess.ID
	}
	m.sessions[e.sess.ID] = e
	return e.snapshot(), nil
}
