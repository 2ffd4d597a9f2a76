package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrorEvent is sent to a connection whose event could not be handled.
const ErrorEvent = "error"

// Event is a frame exchanged over a realtime connection. On the wire an
// event is a flat JSON object: the "type" field names the event and the
// remaining fields are its payload.
type Event struct {
	// ConnID identifies the connection an inbound event was read from.
	ConnID int `json:"-"`
	Type   string
	// Payload is a JSON object. For inbound events it is the whole frame.
	Payload json.RawMessage
}

func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func (e Event) String() string {
	return fmt.Sprintf("Event{ConnID: %d, Type: %s, Payload.Size: %d}", e.ConnID, e.Type, len(e.Payload))
}

func (e Event) MarshalJSON() ([]byte, error) {
	t, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(t)

	p := bytes.TrimSpace(e.Payload)
	if len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if p[0] != '{' {
			return nil, errors.New("event payload must be a JSON object")
		}
		fields := bytes.TrimSpace(p[1:])
		if len(fields) > 0 && fields[0] != '}' {
			buf.WriteByte(',')
			buf.Write(fields)
			return buf.Bytes(), nil
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	e.Type = head.Type
	e.Payload = append(json.RawMessage(nil), b...)
	return nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

type EventTransport interface {
	// Send delivers the event to every open connection.
	Send(event *Event)
	// SendToUsers delivers the event to connections bound to any of usernames.
	SendToUsers(event *Event, usernames ...string)
	// SendToConn delivers the event to a single connection.
	SendToConn(event *Event, id int)
	// SendWhere delivers the event to connections whose identity matches.
	// Unauthenticated connections are matched with the zero Identity.
	SendWhere(event *Event, match func(Identity) bool)
	Receive() <-chan *Event
}

type EventHandler func(context.Context, *Event) error

// ErrorPayload is the payload of ErrorEvent.
type ErrorPayload struct {
	Message string `json:"message"`
}

// EventRouter dispatches inbound events to handlers one at a time, in the
// order they were received.
type EventRouter struct {
	listeners map[string]EventHandler
	ctx       context.Context
	transport EventTransport
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		ctx:       ctx,
		transport: transport,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Listen starts the dispatch loop.
func (em *EventRouter) Listen() {
	em.wg.Add(1)
	go func() {
		defer em.wg.Done()
		em.loop()
	}()
}

func (em *EventRouter) loop() {
	for {
		select {
		case <-em.ctx.Done():
			return
		case <-em.done:
			return
		case e := <-em.transport.Receive():
			em.dispatch(e)
		}
	}
}

func (em *EventRouter) dispatch(e *Event) {
	em.logger.Debug(fmt.Sprintf("received: %v", e))
	handler, ok := em.listeners[e.Type]
	if !ok {
		em.logger.Debug("no handler", slog.String("type", e.Type))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			em.logger.Error(fmt.Sprintf("%s handler panic: %v", e.Type, r), slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := handler(em.ctx, e); err != nil {
		if msg, ok := PublicMessage(err); ok {
			em.logger.Debug(fmt.Sprintf("%s handler: %s", e.Type, err), slog.Int("connection", e.ConnID))
			if err := em.EmitToConn(ErrorEvent, ErrorPayload{Message: msg}, e.ConnID); err != nil {
				em.logger.Error(err.Error())
			}
			return
		}
		em.logger.Error(fmt.Sprintf("%s handler: %s", e.Type, err), slog.Int("connection", e.ConnID))
	}
}

// Close stops the dispatch loop and waits for the event being handled.
func (em *EventRouter) Close(ctx context.Context) error {
	em.closeOnce.Do(func() { close(em.done) })
	done := make(chan struct{})
	go func() {
		em.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (em *EventRouter) On(eventName string, handler EventHandler) {
	em.listeners[eventName] = handler
}

// Emit sends an event to every connection.
func (em *EventRouter) Emit(t string, payload interface{}) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.Send(e)
	return nil
}

func (em *EventRouter) EmitTo(t string, payload interface{}, usernames ...string) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.SendToUsers(e, usernames...)
	return nil
}

func (em *EventRouter) EmitToConn(t string, payload interface{}, id int) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.SendToConn(e, id)
	return nil
}

func (em *EventRouter) EmitWhere(t string, payload interface{}, match func(Identity) bool) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.SendWhere(e, match)
	return nil
}
