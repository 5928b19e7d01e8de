package sol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/vt100"
)

const (
	// DefaultStopTimeout bounds how long Closing waits for the receiver loop
	// and for the close call.
	DefaultStopTimeout = 3 * time.Second

	// DefaultRetryDelay is the pause after a retryable receive code.
	DefaultRetryDelay = 50 * time.Millisecond
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	StopTimeout    time.Duration
	RetryDelay     time.Duration
	TranscriptSize int
	Recorder       Recorder
}

func (o Options) withDefaults() Options {
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.TranscriptSize <= 0 {
		o.TranscriptSize = DefaultTranscriptSize
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// Session relays one console between a Surface and a Channel.
//
// While active, a sender loop moves operator input to the channel and a
// receiver loop moves console output to the surface. Both loops, and any
// caller of Stop, consult the same active flag; whichever clears it first
// performs the shutdown and every later request is a no-op.
//
// A Session is used once: Start, then Wait.
type Session struct {
	id      string
	channel Channel
	surface Surface
	opts    Options

	started atomic.Bool
	active  atomic.Bool
	state   atomic.Int32

	mu          sync.Mutex
	token       string
	cancel      context.CancelFunc
	termination Termination
	openedAt    time.Time

	recvDone   chan struct{}
	done       chan struct{}
	released   chan struct{}
	transcript *Transcript
}

// NewSession returns an idle session relaying ch to surface.
func NewSession(ch Channel, surface Surface, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		id:         uuid.NewString(),
		channel:    ch,
		surface:    surface,
		opts:       opts,
		recvDone:   make(chan struct{}),
		done:       make(chan struct{}),
		released:   make(chan struct{}),
		transcript: NewTranscript(opts.TranscriptSize),
	}
}

// ID returns the local identifier of the session, used in logs.
func (s *Session) ID() string {
	return s.id
}

// Channel returns the console target.
func (s *Session) Channel() Channel {
	return s.channel
}

// Active reports whether the relay loops should still be running.
func (s *Session) Active() bool {
	return s.active.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Token returns the remote session token, or "" once released.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Transcript returns the most recent console output.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// Start opens the channel and launches the relay loops. The loops run until
// the operator exits, the remote side ends the session, a fault occurs, or
// ctx is cancelled.
//
// Returns an error if:
//   - the session was started before
//   - the remote side refuses the session (an *OpenError)
//   - the channel cannot be reached
//   - the surface cannot be prepared
//
// On error the session is back in StateIdle and no token is held.
func (s *Session) Start(ctx context.Context) error {
	if s.started.Swap(true) {
		return errors.New("console session already started")
	}
	logger := log.With().Str("session_id", s.id).Str("target", s.channel.Describe()).Logger()

	s.state.Store(int32(StateOpening))
	token, err := s.channel.Open(ctx)
	if err != nil {
		s.abort(Termination{Reason: ReasonLocalFault, Err: err})
		logger.Debug().Err(err).Msg("console session not opened")
		return err
	}

	if err := s.surface.Begin(s); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
		defer cancel()
		if cerr := s.channel.Close(closeCtx, token); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to release console session")
		}
		s.abort(Termination{Reason: ReasonLocalFault, Err: err})
		return fmt.Errorf("failed to prepare console: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.token = token
	s.cancel = cancel
	s.openedAt = time.Now()
	s.mu.Unlock()

	s.active.Store(true)
	s.state.Store(int32(StateActive))
	s.opts.Recorder.SessionStarted(s.channel.Kind())
	logger.Info().Msg("console session started")

	go s.receiveLoop(loopCtx, token)
	go s.sendLoop(loopCtx, token)
	return nil
}

// abort ends a session that never became active.
func (s *Session) abort(t Termination) {
	s.mu.Lock()
	s.termination = t
	s.mu.Unlock()
	s.state.Store(int32(StateIdle))
	close(s.recvDone)
	close(s.released)
	close(s.done)
}

// Stop ends the session as if the operator pressed the exit key. It has no
// effect unless the session is active.
func (s *Session) Stop() {
	s.terminate(Termination{Reason: ReasonOperator})
}

// Done is closed once the session is back in StateIdle.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Released is closed once the close call to the remote side has returned.
func (s *Session) Released() <-chan struct{} {
	return s.released
}

// Wait blocks until the session has ended and returns how it ended.
func (s *Session) Wait() Termination {
	<-s.done
	return s.Termination()
}

// Termination returns how the session ended. It is the zero value while the
// session runs.
func (s *Session) Termination() Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termination
}

// terminate moves an active session to Closing. Only the caller that clears
// the active flag proceeds.
func (s *Session) terminate(t Termination) {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.state.Store(int32(StateClosing))

	s.mu.Lock()
	s.termination = t
	cancel := s.cancel
	s.mu.Unlock()
	cancel()

	// The receiver may be the caller, so the wait for it happens elsewhere.
	go s.close(t)
}

func (s *Session) close(t Termination) {
	logger := log.With().Str("session_id", s.id).Str("target", s.channel.Describe()).Logger()

	timer := time.NewTimer(s.opts.StopTimeout)
	select {
	case <-s.recvDone:
	case <-timer.C:
		logger.Warn().Dur("timeout", s.opts.StopTimeout).Msg("receiver loop did not stop in time")
	}
	timer.Stop()

	s.surface.Reset()

	s.mu.Lock()
	token := s.token
	s.token = ""
	openedAt := s.openedAt
	s.mu.Unlock()

	if token != "" && t.Reason != ReasonStoppedElsewhere {
		go func() {
			defer close(s.released)
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
			defer cancel()
			if err := s.channel.Close(ctx, token); err != nil {
				logger.Warn().Err(err).Msg("failed to release console session")
			}
		}()
	} else {
		close(s.released)
	}

	s.opts.Recorder.SessionEnded(s.channel.Kind(), t.Reason, time.Since(openedAt))
	ev := logger.Info()
	if t.Reason == ReasonLocalFault || t.Reason == ReasonRemoteFault {
		ev = logger.Warn()
	}
	ev.Str("reason", t.Reason.String()).Str("code", string(t.Code)).AnErr("cause", t.Err).Msg("console session ended")

	s.state.Store(int32(StateIdle))
	close(s.done)
}

// recoverFault turns a panic in a loop into a local fault.
func (s *Session) recoverFault(loop string) {
	if r := recover(); r != nil {
		log.Error().Str("session_id", s.id).Str("loop", loop).Interface("panic", r).Msg("console loop panicked")
		s.terminate(Termination{Reason: ReasonLocalFault, Err: fmt.Errorf("%s loop panic: %v", loop, r)})
	}
}

func (s *Session) sendLoop(ctx context.Context, token string) {
	defer s.recoverFault("sender")

	enc := vt100.NewEncoder()
	le := s.channel.LineEnding()
	kind := s.channel.Kind()

	for s.active.Load() {
		payload, exit, err := s.surface.ReadPayload(ctx, enc, le)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.terminate(Termination{Reason: ReasonCancelled})
			case errors.Is(err, io.EOF):
				s.terminate(Termination{Reason: ReasonOperator})
			default:
				s.terminate(Termination{Reason: ReasonLocalFault, Err: fmt.Errorf("failed to read console input: %w", err)})
			}
			return
		}

		if len(payload) > 0 && s.active.Load() {
			code, err := s.channel.Send(ctx, token, payload)
			if err != nil {
				if ctx.Err() != nil {
					s.terminate(Termination{Reason: ReasonCancelled})
				} else {
					s.terminate(Termination{Reason: ReasonLocalFault, Err: fmt.Errorf("failed to send console input: %w", err)})
				}
				return
			}
			if !code.OK() {
				s.terminate(remoteTermination(code))
				return
			}
			s.opts.Recorder.BytesSent(kind, len(payload))
		}

		if exit {
			s.terminate(Termination{Reason: ReasonOperator})
			return
		}
	}
}

func (s *Session) receiveLoop(ctx context.Context, token string) {
	defer close(s.recvDone)
	defer s.recoverFault("receiver")

	kind := s.channel.Kind()

	for s.active.Load() {
		code, data, err := s.channel.Receive(ctx, token)
		if ctx.Err() != nil {
			s.terminate(Termination{Reason: ReasonCancelled})
			return
		}
		if err != nil {
			s.terminate(Termination{Reason: ReasonLocalFault, Err: fmt.Errorf("failed to receive console output: %w", err)})
			return
		}

		switch {
		case code.OK():
			if len(data) == 0 {
				continue
			}
			_, _ = s.transcript.Write(data)
			if err := s.surface.Display(data); err != nil {
				s.terminate(Termination{Reason: ReasonLocalFault, Err: fmt.Errorf("failed to display console output: %w", err)})
				return
			}
			s.opts.Recorder.BytesReceived(kind, len(data))
		case code.Retryable():
			s.opts.Recorder.ReceiveRetried(kind, code)
			if !sleep(ctx, s.opts.RetryDelay) {
				s.terminate(Termination{Reason: ReasonCancelled})
				return
			}
		default:
			s.terminate(remoteTermination(code))
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
