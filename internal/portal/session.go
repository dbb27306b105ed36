package portal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/dialogue"
	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/metrics"
	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/tts"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxFrame    = 64 * 1024
	sendBacklog = 64
)

// session is one websocket connection and the dialogue it drives.
//
// The read loop never blocks on speech: operations that may wait for the
// browser (greeting, language switch, reset) run in order on the control
// goroutine so voice and speech callbacks keep being read meanwhile.
type session struct {
	conn    *websocket.Conn
	send    chan Message
	control chan func()
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger

	speech *browserSpeech
	mic    *browserMic
	orch   *dialogue.Orchestrator
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sess := s.newSession(conn)
	s.track(sess)
	defer s.untrack(sess)

	sess.logger.Info().Str("remote", r.RemoteAddr).Msg("Client connected")
	go sess.writeLoop()
	go sess.controlLoop()
	sess.readLoop()
	sess.logger.Info().Msg("Client disconnected")
}

func (s *Server) newSession(conn *websocket.Conn) *session {
	sess := &session{
		conn:    conn,
		send:    make(chan Message, sendBacklog),
		control: make(chan func(), sendBacklog),
		done:    make(chan struct{}),
	}
	sess.speech = newBrowserSpeech(sess.enqueue)
	sess.mic = newBrowserMic(sess.enqueue)

	sess.orch = dialogue.New(dialogue.Options{
		Resolver:        s.opts.Resolver,
		Speaker:         tts.NewController(sess.speech, s.opts.Speech, s.logger),
		Recognizer:      stt.NewController(sess.mic, s.opts.Filter, s.logger),
		Training:        s.opts.Training,
		TrainingTimeout: s.opts.TrainingTimeout,
		Lang:            s.opts.Lang,
		Sound:           s.opts.Sound,
	}, s.logger)
	sess.logger = s.logger.With().Str("session", sess.orch.SessionID()).Logger()

	b := sess.orch.Bus()
	metrics.Attach(b)
	if s.opts.Archive != nil {
		s.opts.Archive.Attach(b, s.logger)
	}
	b.SubscribeMultiple([]bus.EventType{
		bus.EventTypeTurnAppended,
		bus.EventTypeStateChanged,
		bus.EventTypeNotice,
		bus.EventTypeLanguageSwitched,
		bus.EventTypeSoundToggled,
		bus.EventTypeSessionReset,
	}, sess.forward)
	return sess
}

// forward relays dialogue events to the browser.
func (sess *session) forward(ev bus.Event) {
	switch ev.Type {
	case bus.EventTypeTurnAppended:
		if turn, ok := ev.Data["turn"].(dialogue.Turn); ok {
			sess.enqueue(Message{Type: TypeTurn, Turn: &turn})
		}
	case bus.EventTypeStateChanged:
		if to, ok := ev.Data["to"].(dialogue.State); ok {
			sess.enqueue(Message{Type: TypeState, State: string(to)})
		}
	case bus.EventTypeNotice:
		kind, _ := ev.Data["kind"].(string)
		text, _ := ev.Data["text"].(string)
		sess.enqueue(Message{Type: TypeNotice, Kind: kind, Text: text})
	case bus.EventTypeLanguageSwitched:
		if to, ok := ev.Data["to"].(lang.Tag); ok {
			sess.enqueue(Message{Type: TypeLanguage, Lang: string(to)})
		}
	case bus.EventTypeSoundToggled:
		if on, ok := ev.Data["on"].(bool); ok {
			sess.enqueue(Message{Type: TypeSound, Sound: boolPtr(on)})
		}
	case bus.EventTypeSessionReset:
		sess.enqueue(Message{Type: TypeReset})
	}
}

// enqueue queues m for the writer. It drops m once the session is closed.
func (sess *session) enqueue(m Message) {
	select {
	case sess.send <- m:
	case <-sess.done:
	}
}

// run queues fn for the control goroutine.
func (sess *session) run(fn func()) {
	select {
	case sess.control <- fn:
	case <-sess.done:
	}
}

func (sess *session) controlLoop() {
	for {
		select {
		case <-sess.done:
			return
		case fn := <-sess.control:
			fn()
		}
	}
}

func (sess *session) close() {
	sess.once.Do(func() {
		close(sess.done)
		sess.conn.Close()
	})
}

func (sess *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer sess.close()

	for {
		select {
		case <-sess.done:
			return
		case m := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(m); err != nil {
				sess.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (sess *session) readLoop() {
	defer func() {
		// stop anything still running in the browser's name
		sess.orch.StopListening()
		sess.orch.SetSound(false)
		sess.close()
	}()

	sess.conn.SetReadLimit(maxFrame)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m Message
		if err := sess.conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		sess.handle(m)
	}
}

func (sess *session) handle(m Message) {
	ctx := context.Background()
	o := sess.orch

	switch m.Type {
	case TypeHello:
		sess.speech.setVoices(m.Voices)
		if m.Mic != nil {
			sess.mic.setAvailable(*m.Mic)
		}
		if m.Sound != nil {
			o.SetSound(*m.Sound)
		}
		sess.run(func() {
			if m.Lang != "" {
				if err := o.SwitchLanguage(ctx, lang.Tag(m.Lang)); err != nil {
					sess.reject(err)
				}
			}
			o.Start(ctx)
		})
	case TypeStart:
		sess.run(func() { o.Start(ctx) })
	case TypeSubmit:
		// resolving may take a while; keep reading speech events meanwhile
		go func() {
			if _, err := o.Submit(ctx, m.Text); err != nil && !isNotice(err) {
				sess.reject(err)
			}
		}()
	case TypeMic:
		var err error
		switch m.Action {
		case MicStart:
			err = o.StartListening()
		case MicStop:
			o.StopListening()
		default:
			err = errors.New("unknown mic action " + m.Action)
		}
		if err != nil && !isNotice(err) {
			sess.reject(err)
		}
	case TypeLanguage:
		sess.run(func() {
			if err := o.SwitchLanguage(ctx, lang.Tag(m.Lang)); err != nil {
				sess.reject(err)
			}
		})
	case TypeSound:
		if m.Sound != nil {
			o.SetSound(*m.Sound)
		}
	case TypeReset:
		sess.run(o.Reset)
	case TypeVoices:
		sess.speech.setVoices(m.Voices)
	case TypeSpeechStart:
		sess.speech.started(m.ID)
	case TypeSpeechEnd:
		sess.speech.finished(m.ID, nil)
	case TypeSpeechError:
		sess.speech.finished(m.ID, errors.New(m.Error))
	case TypeHeard:
		sess.mic.heard(m.Text)
	case TypeHearError:
		sess.mic.failed(recognitionError(m.Error))
	case TypeHearEnd:
		sess.mic.ended()
	default:
		sess.reject(errors.New("unknown message type " + m.Type))
	}
}

// isNotice reports errors the user already saw as a notice.
func isNotice(err error) bool {
	return errors.Is(err, dialogue.ErrBlankInput) ||
		errors.Is(err, dialogue.ErrBusy) ||
		errors.Is(err, dialogue.ErrSessionReset) ||
		errors.Is(err, stt.ErrUnsupported) ||
		errors.Is(err, stt.ErrAlreadyActive)
}

func (sess *session) reject(err error) {
	sess.logger.Debug().Err(err).Msg("Request rejected")
	sess.enqueue(Message{Type: TypeError, Error: err.Error()})
}
