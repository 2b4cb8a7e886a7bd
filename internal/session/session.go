// Package session holds the state of one conversation across turns.
//
// A session accumulates output fragments between turns and flushes them,
// together with an input directive, as the response to the connection it is
// currently holding. It then blocks on the daemon for the next continuation,
// whose reply value becomes the turn's result. Exactly one session exists
// per worker process; its lifetime is the process lifetime.
package session

import (
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voxbridge/host/internal/daemon"
	"github.com/voxbridge/host/internal/errors"
	"github.com/voxbridge/host/internal/vxml"
)

// Event is one observable moment in a conversation, published to the live
// monitor stream.
type Event struct {
	Conversation string    `json:"conversation"`
	Seq          int       `json:"seq"`
	Kind         string    `json:"kind"`   // began, turn, record, ended
	Detail       string    `json:"detail"` // prompt or terminal directive
	Result       string    `json:"result"` // reply value, if any
	At           time.Time `json:"at"`
}

// Publisher receives session events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// TurnRecorder persists completed turns; failures are logged and ignored so
// bookkeeping can never end a conversation.
type TurnRecorder interface {
	RecordTurn(conversationID string, seq int, kind, prompt, result string) error
}

// InputSpec configures one prompt-and-reply turn. Exactly one of Grammar or
// GrammarRef must be set.
type InputSpec struct {
	Prompt     string // Spoken prompt
	Grammar    string // Inline grammar body
	GrammarRef string // External grammar URL
	NoInput    string // Optional handler text when the caller says nothing
	NoMatch    string // Optional handler text when the reply doesn't match
}

func (spec InputSpec) validate() error {
	if spec.Grammar != "" && spec.GrammarRef != "" {
		return errors.GrammarConflict()
	}
	if spec.Grammar == "" && spec.GrammarRef == "" {
		return errors.GrammarMissing()
	}
	return nil
}

// RecordSpec configures one audio-capture turn.
type RecordSpec struct {
	Prompt  string // Spoken prompt before the capture
	MaxTime string // Markup duration such as "30s"; empty for platform default
	Beep    bool   // Play a beep before capturing
}

// EndSpec configures the terminal turn. A Goto URL redirects the client
// elsewhere; an empty Goto hangs up.
type EndSpec struct {
	Goto string
}

// Recording is the outcome of a Record turn.
type Recording struct {
	// Payload is the captured audio bytes.
	Payload []byte

	// Disposition is the caller's reply code: replay, discard, help, or
	// accept. The external platform defines the vocabulary; the session
	// passes it through untouched.
	Disposition string
}

// Options configures optional session collaborators.
type Options struct {
	Logger *log.Logger  // nil discards
	Events Publisher    // nil disables the monitor stream
	Turns  TurnRecorder // nil disables call records
}

// Session is the conversation state for one worker process.
type Session struct {
	id      string
	d       *daemon.Daemon
	ep      daemon.Endpoint
	logger  *log.Logger
	events  Publisher
	turnLog TurnRecorder

	pending []vxml.Fragment
	current *daemon.Turn
	turns   int
	ended   bool
}

// New creates the session for this worker's conversation.
func New(d *daemon.Daemon, ep daemon.Endpoint, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		id:      uuid.NewString(),
		d:       d,
		ep:      ep,
		logger:  logger,
		events:  opts.Events,
		turnLog: opts.Turns,
	}
}

// ID returns the conversation identifier.
func (s *Session) ID() string { return s.id }

// Endpoint returns the immutable session endpoint.
func (s *Session) Endpoint() daemon.Endpoint { return s.ep }

// TurnsCompleted reports how many prompt-and-reply turns have finished.
// Rejected probes never change it.
func (s *Session) TurnsCompleted() int { return s.turns }

// Begin waits for the voice client to follow the redirect. The initial
// request carries the placeholder continuation parameter and is held as the
// connection the first turn responds on.
func (s *Session) Begin() error {
	if s.ended {
		return errors.SessionCompleted()
	}
	turn, err := s.d.Next()
	if err != nil {
		return err
	}
	s.current = turn
	s.publish("began", "", turn.Result)
	return nil
}

// Speak enqueues a spoken-text fragment. No I/O happens until the next
// flush.
func (s *Session) Speak(text string) {
	s.pending = append(s.pending, vxml.Speech(text))
}

// Play enqueues an audio-reference fragment.
func (s *Session) Play(src string) {
	s.pending = append(s.pending, vxml.Audio(src))
}

// Pause enqueues a timed-silence fragment. Non-positive durations are a
// caller contract violation.
func (s *Session) Pause(ms int64) error {
	if ms <= 0 {
		return errors.BadPause(ms)
	}
	s.pending = append(s.pending, vxml.Break(ms))
	return nil
}

// takePending flushes the accumulated fragments. The clear is atomic with
// the flush: a second consecutive flush yields nothing.
func (s *Session) takePending() []vxml.Fragment {
	frags := s.pending
	s.pending = nil
	return frags
}

// Ask flushes pending output plus the rendered prompt as the response to
// the held connection, then blocks for the next continuation and returns
// its reply value.
//
// Spec violations (both or neither grammar) are reported before any network
// I/O, so a programming error never burns the held connection.
func (s *Session) Ask(spec InputSpec) (string, error) {
	if s.ended {
		return "", errors.SessionCompleted()
	}
	if err := spec.validate(); err != nil {
		return "", err
	}

	doc := vxml.TurnDocument(vxml.Input{
		Output:      s.takePending(),
		Prompt:      spec.Prompt,
		Grammar:     spec.Grammar,
		GrammarSrc:  spec.GrammarRef,
		NoInputText: spec.NoInput,
		NoMatchText: spec.NoMatch,
		Action:      s.ep.Action(),
	})
	if err := s.respond(doc); err != nil {
		return "", err
	}

	turn, err := s.d.Next()
	if err != nil {
		return "", err
	}
	s.current = turn
	s.turns++
	s.publish("turn", spec.Prompt, turn.Result)
	s.record("turn", spec.Prompt, turn.Result)
	return turn.Result, nil
}

// Record flushes pending output plus a capture directive, then blocks for
// the recording continuation: a multipart payload plus the caller's
// disposition code.
//
// Payload framing is parsed permissively; a continuation whose boundary
// cannot be located still yields its raw body rather than ending the
// conversation, since the external platform's framing is not independently
// verifiable here.
func (s *Session) Record(spec RecordSpec) (*Recording, error) {
	if s.ended {
		return nil, errors.SessionCompleted()
	}

	doc := vxml.RecordDocument(vxml.RecordInput{
		Output:  s.takePending(),
		Prompt:  spec.Prompt,
		MaxTime: spec.MaxTime,
		Beep:    spec.Beep,
		Action:  s.ep.Action(daemon.UploadMarker),
	})
	if err := s.respond(doc); err != nil {
		return nil, err
	}

	turn, err := s.d.Next()
	if err != nil {
		return nil, err
	}
	s.current = turn
	s.turns++

	// The rendered record document submits its capture in the POST body
	// with no query reply; a disposition arrives in the query only when
	// the platform adds one. Absent that, reaching the worker at all
	// means the caller accepted the recording.
	disposition := turn.Result
	if disposition == "" {
		disposition = "accept"
	}

	body := turn.Body()
	if len(body) == 0 {
		s.publish("record", spec.Prompt, disposition)
		s.record("record", spec.Prompt, disposition)
		return nil, errors.RecordBadUpload()
	}

	payload, err := ParseRecording(requestBoundary(turn.Request), body)
	if err != nil {
		if !errors.HasCode(err, errors.CodeRecordNoBoundary) {
			return nil, err
		}
		// Best effort: framing we cannot verify is passed through raw.
		s.logger.Printf("session %s: %v, keeping raw payload", s.id, err)
		payload = body
	}

	s.publish("record", spec.Prompt, disposition)
	s.record("record", spec.Prompt, disposition)
	return &Recording{Payload: payload, Disposition: disposition}, nil
}

// End flushes pending output together with the terminal directive as the
// final response. No further turns are possible afterwards.
func (s *Session) End(spec EndSpec) error {
	if s.ended {
		return errors.SessionCompleted()
	}
	s.ended = true

	frags := s.takePending()
	var doc, detail string
	if spec.Goto != "" {
		doc = vxml.GotoDocument(frags, spec.Goto)
		detail = "goto " + spec.Goto
	} else {
		doc = vxml.DisconnectDocument(frags)
		detail = "hangup"
	}

	if err := s.respond(doc); err != nil {
		return err
	}
	s.publish("ended", detail, "")
	return nil
}

// Abandon marks the session over without a final response, used when the
// idle timeout fires while waiting for a continuation.
func (s *Session) Abandon() {
	if s.ended {
		return
	}
	s.ended = true
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
	s.publish("ended", "abandoned", "")
}

// respond sends doc on the held connection and releases it.
func (s *Session) respond(doc string) error {
	if s.current == nil {
		return errors.SessionBindFailed(nil)
	}
	err := s.current.Respond(vxml.ContentType, doc)
	s.current = nil
	return err
}

func (s *Session) publish(kind, detail, result string) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{
		Conversation: s.id,
		Seq:          s.turns,
		Kind:         kind,
		Detail:       detail,
		Result:       result,
		At:           time.Now(),
	})
}

func (s *Session) record(kind, prompt, result string) {
	if s.turnLog == nil {
		return
	}
	if err := s.turnLog.RecordTurn(s.id, s.turns, kind, prompt, result); err != nil {
		s.logger.Printf("session %s: turn record failed: %v", s.id, err)
	}
}
