package nats

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published []published
	err       error
	closed    bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeConn) Close() { f.closed = true }

func TestPublisher_PrefixesSubject(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "voxstitch.import.completed"},
		{"acme", "acme.import.completed"},
		{" acme.chats. ", "acme.chats.import.completed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			conn := &fakeConn{}
			p := newPublisher(conn, tt.prefix, nil)

			require.NoError(t, p.Publish("import.completed", map[string]int{"version_number": 2}))
			require.Len(t, conn.published, 1)
			assert.Equal(t, tt.want, conn.published[0].subject)
		})
	}
}

func TestPublisher_EncodesJSON(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "", nil)

	payload := struct {
		UserID   string `json:"user_id"`
		Platform string `json:"platform"`
	}{"u1", "chatgpt"}
	require.NoError(t, p.Publish("import.completed", payload))

	var got map[string]string
	require.NoError(t, json.Unmarshal(conn.published[0].data, &got))
	assert.Equal(t, "u1", got["user_id"])
	assert.Equal(t, "chatgpt", got["platform"])
}

func TestPublisher_Errors(t *testing.T) {
	conn := &fakeConn{err: nats.ErrConnectionClosed}
	p := newPublisher(conn, "", nil)

	err := p.Publish("import.failed", map[string]string{})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.Contains(t, err.Error(), "voxstitch.import.failed")

	err = p.Publish("import.failed", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}

func TestPublisher_Close(t *testing.T) {
	conn := &fakeConn{}
	newPublisher(conn, "", nil).Close()
	assert.True(t, conn.closed)
}
