package core

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(room, username, text string) Message {
	return Message{Chat: room, Username: username, Text: &text}
}

func TestAppendMessage(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	store := NewJSONChatStore(f.path("messages.json"))
	require.NoError(t, store.Load())

	first, err := store.AppendMessage(f.ctx, textMessage(GeneralRoom, "alice", "hi"))
	require.NoError(t, err)
	assert.Len(t, first.ID, 32)
	assert.NotZero(t, first.Timestamp)

	second, err := store.AppendMessage(f.ctx, textMessage(GeneralRoom, "bob", "hello"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = store.AppendMessage(f.ctx, textMessage("lobby", "alice", "hi"))
	assert.ErrorIs(t, err, ErrInvalidRoom)

	reloaded := NewJSONChatStore(f.path("messages.json"))
	require.NoError(t, reloaded.Load())
	msgs, err := reloaded.Messages(f.ctx, GeneralRoom)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)

	empty, err := reloaded.Messages(f.ctx, "ru1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMessagesReturnsACopy(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	store := NewJSONChatStore(f.path("messages.json"))
	_, err := store.AppendMessage(f.ctx, textMessage(GeneralRoom, "alice", "hi"))
	require.NoError(t, err)

	msgs, err := store.Messages(f.ctx, GeneralRoom)
	require.NoError(t, err)
	msgs[0].Username = "mallory"

	msgs, err = store.Messages(f.ctx, GeneralRoom)
	require.NoError(t, err)
	assert.Equal(t, "alice", msgs[0].Username)
}

func TestLoadFillsMissingRooms(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	p := f.path("messages.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"general":[{"id":"abc","chat":"general","text":"old","username":"alice","timestamp":1}]}`), 0o644))

	store := NewJSONChatStore(p)
	require.NoError(t, store.Load())

	msgs, err := store.Messages(f.ctx, SecretRoom)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = store.DeleteMessage(f.ctx, SecretRoom, "abc", nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	msgs, err = store.Messages(f.ctx, GeneralRoom)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "old", *msgs[0].Text)
}

func TestDeleteMessage(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	store := NewJSONChatStore(f.path("messages.json"))
	var appended []Message
	for _, text := range []string{"one", "two", "three", "four"} {
		m, err := store.AppendMessage(f.ctx, textMessage(GeneralRoom, "alice", text))
		require.NoError(t, err)
		appended = append(appended, m)
	}
	msg := appended[1]

	_, err := store.DeleteMessage(f.ctx, "lobby", msg.ID, nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = store.DeleteMessage(f.ctx, "ru1", msg.ID, nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	errDenied := errors.New("denied")
	_, err = store.DeleteMessage(f.ctx, GeneralRoom, msg.ID, func(Message) error { return errDenied })
	assert.ErrorIs(t, err, errDenied)

	var authorized Message
	deleted, err := store.DeleteMessage(f.ctx, GeneralRoom, msg.ID, func(m Message) error {
		authorized = m
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, msg.ID, deleted.ID)
	assert.Equal(t, "two", *authorized.Text)

	reloaded := NewJSONChatStore(f.path("messages.json"))
	require.NoError(t, reloaded.Load())
	for _, s := range []*JSONChatStore{store, reloaded} {
		msgs, err := s.Messages(f.ctx, GeneralRoom)
		require.NoError(t, err)
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []string{appended[0].ID, appended[2].ID, appended[3].ID}, ids)
	}

	_, err = store.DeleteMessage(f.ctx, GeneralRoom, msg.ID, nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestNewMessageIDIsReserved(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	store := NewJSONChatStore(f.path("messages.json"))
	require.NoError(t, store.Load())

	id, err := store.NewMessageID()
	require.NoError(t, err)
	assert.Len(t, id, 32)
	assert.Contains(t, store.ids, id)

	msg, err := store.AppendMessage(f.ctx, textMessage(GeneralRoom, "alice", "hi"))
	require.NoError(t, err)
	assert.NotEqual(t, id, msg.ID)
	assert.Contains(t, store.ids, msg.ID)
}

func TestClearRoom(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	store := NewJSONChatStore(f.path("messages.json"))
	_, err := store.AppendMessage(f.ctx, textMessage(GeneralRoom, "alice", "hi"))
	require.NoError(t, err)
	other, err := store.AppendMessage(f.ctx, textMessage("en1", "alice", "hi"))
	require.NoError(t, err)

	require.NoError(t, store.ClearRoom(f.ctx, GeneralRoom))
	assert.ErrorIs(t, store.ClearRoom(f.ctx, "lobby"), ErrRoomNotFound)

	reloaded := NewJSONChatStore(f.path("messages.json"))
	require.NoError(t, reloaded.Load())

	msgs, err := reloaded.Messages(f.ctx, GeneralRoom)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = reloaded.Messages(f.ctx, "en1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, other.ID, msgs[0].ID)
}
