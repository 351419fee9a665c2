package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/bank"
	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/yanun0323/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	auditCategory = "Session"

	minPrefixLen = 4

	defaultMaxLoginAttempts = 3
	defaultLoginCooldown    = time.Minute
)

// Config controls the supervisor.
type Config struct {
	MaxSessions int

	// MaxLoginAttempts consecutive failures on one account block further
	// logins to it for LoginCooldown.
	MaxLoginAttempts int
	LoginCooldown    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxLoginAttempts == 0 {
		c.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if c.LoginCooldown == 0 {
		c.LoginCooldown = defaultLoginCooldown
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.MaxSessions <= 0 {
		return fmt.Errorf("invalid session config: MaxSessions must be > 0")
	}
	if c.MaxLoginAttempts < 0 {
		return fmt.Errorf("invalid session config: MaxLoginAttempts must be >= 0")
	}
	if c.LoginCooldown < 0 {
		return fmt.Errorf("invalid session config: LoginCooldown must be >= 0")
	}
	return nil
}

type loginState struct {
	failures     int
	blockedUntil time.Time
}

// Supervisor owns every client session and bounds how many may be open.
type Supervisor struct {
	cfg     Config
	service *bank.Service
	table   *account.Table
	journal *journal.Journal
	metrics *obs.Metrics
	slots   *semaphore.Weighted
	now     func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	logins   map[int32]*loginState
	down     bool
}

// NewSupervisor validates cfg and creates an empty supervisor.
func NewSupervisor(cfg Config, service *bank.Service, table *account.Table, j *journal.Journal, metrics *obs.Metrics) (*Supervisor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if service == nil || table == nil || j == nil {
		return nil, exception.ErrNilInstance
	}
	return &Supervisor{
		cfg:      cfg,
		service:  service,
		table:    table,
		journal:  j,
		metrics:  metrics,
		slots:    semaphore.NewWeighted(int64(cfg.MaxSessions)),
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session, cfg.MaxSessions),
		logins:   make(map[int32]*loginState),
	}, nil
}

// WithClock swaps the time source used for login cooldowns.
func (s *Supervisor) WithClock(now func() time.Time) *Supervisor {
	if now != nil {
		s.now = now
	}
	return s
}

// Open authenticates number/pin and starts a session on a free slot.
func (s *Supervisor) Open(ctx context.Context, number, pin int32) (*Session, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, exception.ErrSupervisorDown
	}
	if until, blocked := s.loginBlocked(number); blocked {
		s.metrics.IncRejected(obs.OpLogin)
		s.audit(ctx, number, "login refused: too many login attempts")
		return nil, errors.Wrapf(exception.ErrLoginBlocked, "account: %d, until: %s", number, until.Format(time.DateTime))
	}

	if !s.slots.TryAcquire(1) {
		s.audit(ctx, number, fmt.Sprintf("login refused: %d sessions already open", s.cfg.MaxSessions))
		return nil, errors.Wrapf(exception.ErrSessionLimit, "max: %d", s.cfg.MaxSessions)
	}

	a, err := s.table.Authenticate(ctx, number, pin)
	if err != nil {
		s.slots.Release(1)
		s.metrics.IncRejected(obs.OpLogin)
		s.audit(ctx, number, fmt.Sprintf("login failed: %s", err.Error()))
		if s.loginFailed(number) {
			s.audit(ctx, number, "too many login attempts")
		}
		return nil, err
	}
	s.loginSucceeded(number)

	sess := &Session{
		ID:       uuid.New(),
		Number:   a.Number,
		Holder:   a.Holder,
		OpenedAt: time.Now(),
		sup:      s,
	}

	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		s.slots.Release(1)
		return nil, exception.ErrSupervisorDown
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.metrics.IncOp(obs.OpLogin)
	s.audit(ctx, number, fmt.Sprintf("session %s opened", sess.ID))
	return sess, nil
}

func (s *Supervisor) loginBlocked(number int32) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.logins[number]
	if !ok || st.blockedUntil.IsZero() {
		return time.Time{}, false
	}
	if !s.now().Before(st.blockedUntil) {
		delete(s.logins, number)
		return time.Time{}, false
	}
	return st.blockedUntil, true
}

// loginFailed counts a failure and reports whether it started a cooldown.
func (s *Supervisor) loginFailed(number int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.logins[number]
	if !ok {
		st = &loginState{}
		s.logins[number] = st
	}
	st.failures++
	if st.failures < s.cfg.MaxLoginAttempts {
		return false
	}
	st.failures = 0
	st.blockedUntil = s.now().Add(s.cfg.LoginCooldown)
	return true
}

func (s *Supervisor) loginSucceeded(number int32) {
	s.mu.Lock()
	delete(s.logins, number)
	s.mu.Unlock()
}

// Get finds a session by its full id or by an unambiguous id prefix.
func (s *Supervisor) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parsed, err := uuid.Parse(id); err == nil {
		if sess, ok := s.sessions[parsed]; ok {
			return sess, nil
		}
		return nil, errors.Wrapf(exception.ErrSessionNotFound, "id: %s", id)
	}
	if len(id) < minPrefixLen {
		return nil, errors.Wrapf(exception.ErrSessionNotFound, "id prefix too short: %q", id)
	}

	var found *Session
	for key, sess := range s.sessions {
		if !strings.HasPrefix(key.String(), id) {
			continue
		}
		if found != nil {
			return nil, errors.Wrapf(exception.ErrSessionNotFound, "id prefix is ambiguous: %q", id)
		}
		found = sess
	}
	if found == nil {
		return nil, errors.Wrapf(exception.ErrSessionNotFound, "id: %s", id)
	}
	return found, nil
}

// Close ends one session after its in-flight operation finishes.
func (s *Supervisor) Close(ctx context.Context, id uuid.UUID) error {
	if !s.closeSession(ctx, id) {
		return errors.Wrapf(exception.ErrSessionNotFound, "id: %s", id)
	}
	return nil
}

// closeSession reports false when id was not open.
func (s *Supervisor) closeSession(ctx context.Context, id uuid.UUID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	sess.close()
	s.slots.Release(1)
	s.audit(ctx, sess.Number, fmt.Sprintf("session %s closed", sess.ID))
	return true
}

// Active returns the number of open sessions.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions lists open sessions ordered by opening time.
func (s *Supervisor) Sessions() []Info {
	s.mu.Lock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Info) int {
		return a.OpenedAt.Compare(b.OpenedAt)
	})
	return out
}

// Shutdown refuses new sessions and closes the open ones, waiting for
// their in-flight operations. It returns ctx.Err() if ctx ends first.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.down = true
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, sess := range open {
		g.Go(func() error {
			s.closeSession(ctx, sess.ID)
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) audit(ctx context.Context, number int32, description string) {
	_ = s.journal.Audit(ctx, number, auditCategory, description)
}
