// Package live runs one websocket session per signup form instance. The
// session decodes client events, dispatches them into the engine on a
// single goroutine and streams back the field, step and submission diffs
// the engine's observers produce.
package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jsignup/signupkit/pkg/form"
	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/protocol"
	"github.com/jsignup/signupkit/pkg/signup"
	"github.com/jsignup/signupkit/pkg/wizard"
)

// ErrSessionClosed is returned when pushing to a closed session.
var ErrSessionClosed = errors.New("live: session closed")

const outboundBuffer = 64

// Session owns one websocket connection and one engine instance.
type Session struct {
	id     string
	topic  string
	conn   *websocket.Conn
	engine *signup.Engine
	codec  protocol.Codec
	logger logging.Logger
	router *protocol.Router

	out        chan *protocol.Message
	events     chan *protocol.Message
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64
}

func newSession(conn *websocket.Conn, engine *signup.Engine, codec protocol.Codec, logger logging.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:     id,
		topic:  "form:" + id,
		conn:   conn,
		engine: engine,
		codec:  codec,
		logger: logger.With(logging.Session(id)),
		out:    make(chan *protocol.Message, outboundBuffer),
		events: make(chan *protocol.Message, outboundBuffer),
		done:   make(chan struct{}),
	}
	s.touch()
	s.router = s.buildRouter()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Topic returns the session's frame topic.
func (s *Session) Topic() string {
	return s.topic
}

// run drives the session until the connection drops or ctx is cancelled.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub := s.engine.Subscribe(func(change form.Change) {
		s.push(protocol.FieldDiff(s.topic, change))
	})
	defer unsub()
	defer s.engine.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.dispatchLoop(ctx)
	}()

	s.readLoop(ctx)
	s.close()
	cancel()
	wg.Wait()
}

// close marks the session finished and closes the connection once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// push queues an outbound frame, dropping it if the session is gone.
func (s *Session) push(msg *protocol.Message) {
	select {
	case s.out <- msg:
	case <-s.done:
	}
}

// readLoop reads frames off the wire and queues events for dispatch.
func (s *Session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				ctx.Err() == nil && !s.closed() {
				s.logger.Debug("read failed", logging.Err(err))
			}
			return
		}
		s.touch()

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Debug("bad frame dropped", logging.Err(err))
			continue
		}

		if msg.IsHeartbeat() {
			s.push(protocol.HeartbeatMessage(s.topic).WithRef(msg.Ref))
			continue
		}

		select {
		case s.events <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// dispatchLoop feeds events through the router one at a time. All engine
// access from the wire happens on this goroutine.
func (s *Session) dispatchLoop(ctx context.Context) {
	for {
		select {
		case msg := <-s.events:
			reply, err := s.router.HandleMessage(ctx, msg)
			if err != nil {
				s.push(protocol.ErrorReply(msg.Ref, s.topic, err.Error()))
				continue
			}
			if reply != nil {
				s.push(reply)
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop serializes all writes to the connection.
func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-s.out:
			data, err := s.codec.Encode(msg)
			if err != nil {
				s.logger.Warn("encode failed", logging.Err(err))
				continue
			}
			if err := s.conn.Write(ctx, s.frameType(), data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// frameType matches the websocket frame type to the codec's encoding.
// Non-JSON codecs produce payloads that are not valid UTF-8.
func (s *Session) frameType() websocket.MessageType {
	if s.codec.Name() == "json" {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}

// heartbeat pings the peer on a fixed cadence until the session ends.
func (s *Session) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.close()
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// buildRouter wires the client event names to the engine.
func (s *Session) buildRouter() *protocol.Router {
	r := protocol.NewRouter()
	r.Use(protocol.RecoveryMiddleware())
	r.Use(protocol.LoggingMiddleware(s.logger))

	r.OnFunc(protocol.EventInput, func(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
		field := msg.GetPayloadString(protocol.KeyField)
		value := msg.GetPayloadString(protocol.KeyValue)
		s.engine.HandleInput(ctx, field, value)
		return nil, nil
	})

	r.OnFunc(protocol.EventBlur, func(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
		s.engine.HandleBlur(ctx, msg.GetPayloadString(protocol.KeyField))
		return nil, nil
	})

	r.OnFunc(protocol.EventCountry, func(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
		return nil, s.engine.HandleCountryChange(ctx, msg.GetPayloadString(protocol.KeyCountryID))
	})

	r.OnFunc(protocol.EventMode, func(_ context.Context, msg *protocol.Message) (*protocol.Message, error) {
		s.engine.HandleModeSwitch(form.ParseMode(msg.GetPayloadString(protocol.KeyMode)))
		return nil, nil
	})

	r.OnFunc(protocol.EventNext, func(_ context.Context, msg *protocol.Message) (*protocol.Message, error) {
		if err := s.engine.Next(); err != nil {
			return nil, err
		}
		step, steps := s.engine.Step()
		return protocol.StepDiff(s.topic, step, steps), nil
	})

	r.OnFunc(protocol.EventPrev, func(_ context.Context, msg *protocol.Message) (*protocol.Message, error) {
		s.engine.Prev()
		step, steps := s.engine.Step()
		return protocol.StepDiff(s.topic, step, steps), nil
	})

	r.OnFunc(protocol.EventSubmit, func(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
		if err := s.engine.Submit(ctx); err != nil {
			if errors.Is(err, wizard.ErrSubmitInFlight) {
				// Duplicate click while the first delivery runs; swallow it.
				return nil, nil
			}
			return nil, err
		}
		return protocol.SubmittedDiff(s.topic), nil
	})

	return r
}
