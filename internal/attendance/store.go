package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/rs/xid"

	"smartattendance/internal/metrics"
)

var logger = loggo.GetLogger("attendance.store")

// ErrNoStore is returned when a component is wired without a store.
const ErrNoStore = errors.ConstError("attendance store not initialized")

// Loader returns the last persisted state blob.
type Loader interface {
	Load(ctx context.Context) ([]byte, error)
}

// Saver receives the serialized state after every mutation. Save is called
// with the store locked, so implementations should only hand the blob off.
type Saver interface {
	Save(ctx context.Context, blob []byte) error
}

// Config holds the collaborators of a Store. Every field is optional.
type Config struct {
	Loader      Loader
	Saver       Saver
	Clock       clock.Clock
	Metrics     *metrics.Collector
	SaveTimeout time.Duration
}

// Store owns the attendance state and serializes every operation on it.
type Store struct {
	mu          sync.Mutex
	state       State
	clock       clock.Clock
	saver       Saver
	metrics     *metrics.Collector
	saveTimeout time.Duration
}

// Open builds a store from the persisted state, falling back to the seed
// state when nothing was persisted or the blob cannot be read.
func Open(ctx context.Context, cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 2 * time.Second
	}
	s := &Store{
		state:       Seed(),
		clock:       cfg.Clock,
		saver:       cfg.Saver,
		metrics:     cfg.Metrics,
		saveTimeout: cfg.SaveTimeout,
	}
	if cfg.Loader == nil {
		return s
	}
	blob, err := cfg.Loader.Load(ctx)
	switch {
	case errors.Is(err, errors.NotFound):
		logger.Infof("no persisted state, starting from seed")
		return s
	case err != nil:
		logger.Warningf("loading persisted state: %v", err)
		return s
	}
	st, err := Decode(blob)
	if err != nil {
		logger.Warningf("persisted state unreadable, starting from seed: %v", err)
	}
	s.state = st
	logger.Infof("loaded %d students, %d sessions, %d logs", len(st.Students), len(st.Sessions), len(st.Logs))
	return s
}

// commit installs next and hands a snapshot to the saver. Save failures
// are logged and never undo the change.
func (s *Store) commit(next State) {
	s.state = next
	if s.saver == nil {
		return
	}
	blob, err := Encode(next)
	if err != nil {
		logger.Errorf("encoding state: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.saver.Save(ctx, blob); err != nil {
		logger.Warningf("saving state: %v", err)
	}
}

// AddStudent registers a student. A second registration of the same id is
// dropped.
func (s *Store) AddStudent(in NewStudent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := AddStudent(s.state, in)
	if !ok {
		logger.Debugf("student %q already registered", in.ID)
		return
	}
	s.commit(next)
	s.metrics.StudentRegistered()
}

// AddSession creates a session if its id is new and returns the id either
// way.
func (s *Store) AddSession(in NewSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, id, ok := AddSession(s.state, in)
	if ok {
		s.commit(next)
		s.metrics.SessionStarted()
	}
	return id
}

// CaptureFace appends an image to a student. Unknown students are ignored.
func (s *Store) CaptureFace(studentID, image string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := CaptureFace(s.state, studentID, image)
	if !ok {
		logger.Debugf("capture for unknown student %q ignored", studentID)
		return
	}
	s.commit(next)
	s.metrics.FaceCaptured()
}

// MarkAttendance appends a log entry stamped with the current time.
func (s *Store) MarkAttendance(m Mark) Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	l := Log{
		ID:             "log_" + xid.NewWithTime(now).String(),
		StudentID:      m.StudentID,
		SessionID:      m.SessionID,
		Timestamp:      now,
		Method:         m.Method,
		LivenessPassed: m.LivenessPassed,
	}
	s.commit(AppendLog(s.state, l))
	s.metrics.MarkRecorded(string(m.Method))
	return l
}

// Reset replaces the whole state with the seed state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(Seed())
	s.metrics.Reset()
}

// ExportCSV renders the logs selected by f.
func (s *Store) ExportCSV(f Filter) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ExportCSV(s.state, f)
}

// Stats returns the dashboard summary.
func (s *Store) Stats() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats(s.state)
}

// State returns a copy of the whole state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Students returns a copy of the roster in registration order.
func (s *Store) Students() []Student { return s.State().Students }

// Sessions returns a copy of the sessions in creation order.
func (s *Store) Sessions() []Session { return s.State().Sessions }

// Logs returns a copy of the attendance log, oldest first.
func (s *Store) Logs() []Log { return s.State().Logs }

// Student looks up a single student.
func (s *Store) Student(id string) (Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.student(id)
	if !ok {
		return Student{}, errors.NotFoundf("student %q", id)
	}
	st.FaceImages = append([]string{}, st.FaceImages...)
	return st, nil
}

// Roster returns the students registered for course.
func (s *Store) Roster(course string) []Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Roster(s.state, course)
}

// Courses lists the distinct student courses in registration order.
func (s *Store) Courses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Courses(s.state)
}

// Recent returns the last n marks, newest first.
func (s *Store) Recent(n int) []Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Recent(s.state, n)
}
