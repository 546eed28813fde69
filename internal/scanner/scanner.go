package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied or insecure context")
	ErrNoCameraFound     = errors.New("no camera found")
	ErrDeviceBindFailed  = errors.New("could not bind camera stream")
	ErrInitTimeout       = errors.New("scanner initialization timed out")
	ErrContainerNotReady = errors.New("scanner target not ready")
	ErrNoCode            = errors.New("no code in frame")
	ErrSuperseded        = errors.New("scanner start superseded by a newer start")
)

type State int

const (
	StateIdle State = iota
	StateInitializing
	StateActive
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Device struct {
	ID    string
	Label string
}

// DeviceSource is the camera side of the scanner.
type DeviceSource interface {
	SecureContext() bool
	CanRequestPermission() bool
	TargetReady() bool
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, device Device) (Stream, error)
}

type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder extracts a payload from a frame and returns ErrNoCode when the
// frame holds none.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

type Match struct {
	Payload  string `json:"-"`
	Variant  string `json:"variant"`
	UserID   string `json:"userId,omitempty"`
	FullName string `json:"fullName,omitempty"`
	UserType string `json:"userType,omitempty"`
	BookID   string `json:"bookId,omitempty"`
}

// Verifier decides whether a decoded payload is accepted.
type Verifier interface {
	Verify(ctx context.Context, payload string) (Match, error)
}

type Outcome struct {
	State State
	Match Match
	Err   error
}

type Options struct {
	MaxAttempts     int
	BackoffStep     time.Duration
	InitTimeout     time.Duration
	PollInterval    time.Duration
	TargetAttempts  int
	TargetInterval  time.Duration
	PreferredLabels []string
	DiagnosticsSize int
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:     3,
		BackoffStep:     500 * time.Millisecond,
		InitTimeout:     10 * time.Second,
		PollInterval:    500 * time.Millisecond,
		TargetAttempts:  20,
		TargetInterval:  250 * time.Millisecond,
		PreferredLabels: []string{"chicony", "04f2:b729"},
		DiagnosticsSize: 10,
	}
}

type session struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	stream Stream
}

type Scanner struct {
	source   DeviceSource
	decoder  Decoder
	verifier Verifier
	opts     Options
	log      zerolog.Logger
	diag     *Diagnostics
	results  chan Outcome

	mu      sync.Mutex
	state   State
	lastErr error
	match   Match
	gen     uint64
	current *session
}

func New(source DeviceSource, decoder Decoder, verifier Verifier, opts Options, log zerolog.Logger) *Scanner {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BackoffStep <= 0 {
		opts.BackoffStep = def.BackoffStep
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = def.InitTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.TargetAttempts <= 0 {
		opts.TargetAttempts = def.TargetAttempts
	}
	if opts.TargetInterval <= 0 {
		opts.TargetInterval = def.TargetInterval
	}
	if opts.DiagnosticsSize <= 0 {
		opts.DiagnosticsSize = def.DiagnosticsSize
	}

	return &Scanner{
		source:   source,
		decoder:  decoder,
		verifier: verifier,
		opts:     opts,
		log:      log,
		diag:     NewDiagnostics(opts.DiagnosticsSize),
		results:  make(chan Outcome, 1),
	}
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scanner) Diagnostics() []Entry {
	return s.diag.Entries()
}

// Results delivers the terminal outcome of every scanning session.
func (s *Scanner) Results() <-chan Outcome {
	return s.results
}

// Start tears down any running session and begins a new one. It returns once
// the scanner is active or initialization has failed.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.gen++
	gen := s.gen
	s.state = StateInitializing
	s.lastErr = nil
	s.match = Match{}
	s.mu.Unlock()

	if prev != nil {
		s.teardown(prev)
		s.diag.Add(Entry{Event: "replaced", Message: "previous session torn down"})
	}

	stream, device, err := s.initialize(ctx)
	if err != nil {
		s.finish(gen, Outcome{State: StateError, Err: err})
		return err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	sess := &session{gen: gen, cancel: cancel, done: make(chan struct{}), stream: stream}

	s.mu.Lock()
	if s.gen != gen {
		// a newer Start won while we were initializing
		s.mu.Unlock()
		cancel()
		_ = stream.Close()
		s.diag.Add(Entry{Event: "superseded", Device: device.Label})
		return ErrSuperseded
	}
	s.current = sess
	s.state = StateActive
	s.mu.Unlock()

	s.diag.Add(Entry{Event: "active", Device: device.Label})
	s.log.Info().Str("device", device.Label).Msg("scanner active")

	go s.poll(pollCtx, sess)
	return nil
}

// Stop releases the stream and returns to Idle.
func (s *Scanner) Stop() {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.gen++
	s.state = StateIdle
	s.mu.Unlock()

	if prev != nil {
		s.teardown(prev)
	}
	s.diag.Add(Entry{Event: "stopped"})
}

func (s *Scanner) teardown(sess *session) {
	sess.cancel()
	<-sess.done
	if err := sess.stream.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close camera stream")
	}
}

func (s *Scanner) initialize(ctx context.Context) (Stream, Device, error) {
	if !s.source.SecureContext() || !s.source.CanRequestPermission() {
		s.diag.Add(Entry{Event: "permission", Err: ErrPermissionDenied.Error()})
		return nil, Device{}, ErrPermissionDenied
	}

	if err := s.waitTarget(ctx); err != nil {
		return nil, Device{}, err
	}

	devices, err := s.source.Devices(ctx)
	if err != nil {
		s.diag.Add(Entry{Event: "enumerate", Err: err.Error()})
		return nil, Device{}, fmt.Errorf("%w: %v", ErrNoCameraFound, err)
	}
	if len(devices) == 0 {
		s.diag.Add(Entry{Event: "enumerate", Err: ErrNoCameraFound.Error()})
		return nil, Device{}, ErrNoCameraFound
	}
	device := s.pickDevice(devices)

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		stream, err := s.open(ctx, device)
		if err == nil {
			return stream, device, nil
		}
		lastErr = err
		s.diag.Add(Entry{Event: "bind", Device: device.Label, Attempt: attempt, Err: err.Error()})
		s.log.Warn().Err(err).Int("attempt", attempt).Str("device", device.Label).Msg("scanner start failed")

		if attempt == s.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, Device{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.opts.BackoffStep):
		}
	}
	return nil, Device{}, lastErr
}

func (s *Scanner) open(ctx context.Context, device Device) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.InitTimeout)
	defer cancel()

	type opened struct {
		stream Stream
		err    error
	}
	ch := make(chan opened, 1)
	go func() {
		stream, err := s.source.Open(ctx, device)
		ch <- opened{stream, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceBindFailed, res.err)
		}
		return res.stream, nil
	case <-ctx.Done():
		// a stream that opens after the deadline is released
		go func() {
			if res := <-ch; res.err == nil && res.stream != nil {
				_ = res.stream.Close()
			}
		}()
		return nil, ErrInitTimeout
	}
}

func (s *Scanner) waitTarget(ctx context.Context) error {
	for attempt := 1; attempt <= s.opts.TargetAttempts; attempt++ {
		if s.source.TargetReady() {
			return nil
		}
		if attempt == s.opts.TargetAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.TargetInterval):
		}
	}
	s.diag.Add(Entry{Event: "target", Err: ErrContainerNotReady.Error()})
	return ErrContainerNotReady
}

func (s *Scanner) pickDevice(devices []Device) Device {
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, want := range s.opts.PreferredLabels {
			if want != "" && strings.Contains(label, strings.ToLower(want)) {
				return d
			}
		}
	}
	return devices[0]
}

func (s *Scanner) poll(ctx context.Context, sess *session) {
	defer close(sess.done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := sess.stream.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.diag.Add(Entry{Event: "frame", Err: err.Error()})
			continue
		}
		if frame == nil {
			continue
		}

		payload, err := s.decoder.Decode(frame)
		if err != nil || payload == "" {
			continue
		}

		match, err := s.verifier.Verify(ctx, payload)
		if ctx.Err() != nil {
			return
		}
		match.Payload = payload
		if err != nil {
			s.diag.Add(Entry{Event: "rejected", Err: err.Error()})
			s.finish(sess.gen, Outcome{State: StateError, Err: err})
		} else {
			s.diag.Add(Entry{Event: "accepted", Message: match.Variant + " " + match.UserID + match.BookID})
			s.finish(sess.gen, Outcome{State: StateSuccess, Match: match})
		}
		return
	}
}

// finish records a terminal state unless a newer session took over.
func (s *Scanner) finish(gen uint64, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.state = out.State
	s.lastErr = out.Err
	s.match = out.Match

	// keep only the newest unread outcome
	select {
	case <-s.results:
	default:
	}
	s.results <- out
}
