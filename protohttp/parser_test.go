package protohttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sockettrace/tracking"
)

func TestParser_ParseMessages_SingleRequestExactlyFillsChunk(t *testing.T) {
	p := NewParser()
	raw := "GET /foo HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	p.Append([]byte(raw), 42)

	var out []Message
	result := p.ParseMessages(tracking.MessageDirectionRequest, &out)

	require.Len(t, out, 1)
	msg := out[0]
	assert.Equal(t, MessageKindRequest, msg.Kind)
	assert.Equal(t, "GET", msg.Method)
	assert.Equal(t, "/foo", msg.Path)
	assert.Equal(t, []byte("hello"), msg.Body)
	assert.Equal(t, []string{"example.com"}, msg.Headers["Host"])
	assert.Equal(t, uint64(42), msg.TimestampNs)

	assert.Equal(t, tracking.BufferPosition{SeqNumIndex: 1, ByteOffset: 0}, result.EndPosition,
		"a message consumed exactly through chunk end reports offset 0 into the next chunk")
}

func TestParser_ParseMessages_Response(t *testing.T) {
	p := NewParser()
	body := `{"ok":true}`
	raw := "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 11\r\n\r\n" + body

	p.Append([]byte(raw), 7)

	var out []Message
	p.ParseMessages(tracking.MessageDirectionResponse, &out)

	require.Len(t, out, 1)
	assert.Equal(t, MessageKindResponse, out[0].Kind)
	assert.Equal(t, 200, out[0].StatusCode)
	assert.Equal(t, []byte(body), out[0].Body)
}

func TestParser_ParseMessages_IncompleteBodyLeavesBufferUnconsumed(t *testing.T) {
	p := NewParser()
	raw := "GET /foo HTTP/1.1\r\nContent-Length: 10\r\n\r\npart"
	p.Append([]byte(raw), 1)

	var out []Message
	result := p.ParseMessages(tracking.MessageDirectionRequest, &out)

	assert.Empty(t, out)
	assert.Equal(t, tracking.BufferPosition{SeqNumIndex: 0, ByteOffset: 0}, result.EndPosition)
}

func TestParser_ParseMessages_MultipleRequestsAcrossTwoAppends(t *testing.T) {
	p := NewParser()
	p.Append([]byte("GET /a HTTP/1.1\r\nContent-Length: 0\r\n\r\n"), 1)
	p.Append([]byte("GET /b HTTP/1.1\r\nContent-Length: 0\r\n\r\n"), 2)

	var out []Message
	result := p.ParseMessages(tracking.MessageDirectionRequest, &out)

	require.Len(t, out, 2)
	assert.Equal(t, "/a", out[0].Path)
	assert.Equal(t, uint64(1), out[0].TimestampNs)
	assert.Equal(t, "/b", out[1].Path)
	assert.Equal(t, uint64(2), out[1].TimestampNs)
	assert.Equal(t, tracking.BufferPosition{SeqNumIndex: 2, ByteOffset: 0}, result.EndPosition)
}

func TestParser_ParseMessages_SecondRequestPartiallyBuffered(t *testing.T) {
	p := NewParser()
	first := "GET /a HTTP/1.1\r\nContent-Length: 0\r\n\r\n"
	p.Append([]byte(first+"GET /b HTTP"), 1)

	var out []Message
	result := p.ParseMessages(tracking.MessageDirectionRequest, &out)

	require.Len(t, out, 1)
	assert.Equal(t, "/a", out[0].Path)
	assert.Equal(t, tracking.BufferPosition{SeqNumIndex: 0, ByteOffset: len(first)}, result.EndPosition,
		"the trailing partial request-line stays unconsumed, within chunk 0")
}
