package core

import (
	"context"
	"slices"
	"sync"
	"time"
)

type roomLogs = map[string][]Message

// JSONChatStore keeps every room log in a single messages.json document.
type JSONChatStore struct {
	doc *Document[roomLogs]
	now func() time.Time

	// ids holds every ID loaded or issued by this store, including IDs of
	// deleted messages, so that an ID is never handed out twice.
	idsMu sync.Mutex
	ids   map[string]struct{}
}

func NewJSONChatStore(path string) *JSONChatStore {
	return &JSONChatStore{
		doc: NewDocument(path, newRoomLogs),
		now: time.Now,
		ids: make(map[string]struct{}),
	}
}

func newRoomLogs() roomLogs {
	logs := make(roomLogs, len(Rooms))
	for _, room := range Rooms {
		logs[room] = []Message{}
	}
	return logs
}

func (s *JSONChatStore) Load() error {
	if err := s.doc.Load(); err != nil {
		return err
	}
	s.idsMu.Lock()
	defer s.idsMu.Unlock()
	s.ids = make(map[string]struct{})
	s.doc.Read(func(logs roomLogs) {
		for _, msgs := range logs {
			for _, m := range msgs {
				s.ids[m.ID] = struct{}{}
			}
		}
	})
	return nil
}

func (s *JSONChatStore) NewMessageID() (string, error) {
	s.idsMu.Lock()
	defer s.idsMu.Unlock()
	for {
		id, err := randomHex(16)
		if err != nil {
			return "", err
		}
		if _, taken := s.ids[id]; !taken {
			s.ids[id] = struct{}{}
			return id, nil
		}
	}
}

func (s *JSONChatStore) AppendMessage(_ context.Context, msg Message) (Message, error) {
	if !IsRoom(msg.Chat) {
		return Message{}, ErrInvalidRoom
	}
	id, err := s.NewMessageID()
	if err != nil {
		return Message{}, err
	}
	msg.ID = id
	msg.Timestamp = s.now().UnixMilli()

	err = s.doc.Update(func(logs *roomLogs) error {
		(*logs)[msg.Chat] = append((*logs)[msg.Chat], msg)
		return nil
	})
	if err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *JSONChatStore) DeleteMessage(_ context.Context, room, id string, authorize func(Message) error) (Message, error) {
	var deleted Message
	err := s.doc.Update(func(logs *roomLogs) error {
		msgs, ok := (*logs)[room]
		if !ok || !IsRoom(room) {
			return ErrRoomNotFound
		}
		idx := slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
		if idx == -1 {
			return ErrMessageNotFound
		}
		if authorize != nil {
			if err := authorize(msgs[idx]); err != nil {
				return err
			}
		}
		deleted = msgs[idx]
		(*logs)[room] = slices.Delete(msgs, idx, idx+1)
		return nil
	})
	if err != nil && KindOf(err) != KindStorageFailure {
		return Message{}, err
	}
	return deleted, err
}

func (s *JSONChatStore) Messages(_ context.Context, room string) ([]Message, error) {
	if !IsRoom(room) {
		return nil, ErrRoomNotFound
	}
	var out []Message
	s.doc.Read(func(logs roomLogs) {
		out = slices.Clone(logs[room])
	})
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

func (s *JSONChatStore) ClearRoom(_ context.Context, room string) error {
	if !IsRoom(room) {
		return ErrRoomNotFound
	}
	return s.doc.Update(func(logs *roomLogs) error {
		(*logs)[room] = []Message{}
		return nil
	})
}
