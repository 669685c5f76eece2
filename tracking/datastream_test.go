package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParser is a minimal Parser[string] that splits its concatenated
// input on "|" and reports progress up to the last delimiter seen.
type fakeParser struct {
	buf   []byte
	sizes []int
}

func (p *fakeParser) Append(data []byte, _ uint64) {
	p.buf = append(p.buf, data...)
	p.sizes = append(p.sizes, len(data))
}

func (p *fakeParser) ParseMessages(_ MessageDirection, out *[]string) ParseResult {
	consumed := 0
	for {
		idx := indexByte(p.buf[consumed:], '|')
		if idx == -1 {
			break
		}
		*out = append(*out, string(p.buf[consumed:consumed+idx]))
		consumed += idx + 1
	}

	chunkIdx, byteOffset := 0, consumed
	for chunkIdx < len(p.sizes) && byteOffset >= p.sizes[chunkIdx] {
		byteOffset -= p.sizes[chunkIdx]
		chunkIdx++
	}
	return ParseResult{EndPosition: BufferPosition{SeqNumIndex: chunkIdx, ByteOffset: byteOffset}}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// noopParser never makes progress, used to check that making no progress
// is not treated as a parser progress anomaly.
type noopParser struct{}

func (noopParser) Append(_ []byte, _ uint64) {}
func (noopParser) ParseMessages(_ MessageDirection, _ *[]string) ParseResult {
	return ParseResult{}
}

// lyingParser claims to have consumed bytes without actually erasing any
// events, to trigger the parser progress anomaly (§7 class 4).
type lyingParser struct{}

func (lyingParser) Append(_ []byte, _ uint64) {}
func (lyingParser) ParseMessages(_ MessageDirection, _ *[]string) ParseResult {
	return ParseResult{EndPosition: BufferPosition{SeqNumIndex: 0, ByteOffset: 3}}
}

func event(seqNum uint64, body string) SocketDataEvent {
	return SocketDataEvent{SeqNum: seqNum, MsgBytes: []byte(body)}
}

func TestDataStream_ExtractMessages_ContiguousPrefix(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "foo|"))
	ds.AddEvent(1, event(1, "bar|"))
	// seq_num 3 is out of order relative to the missing seq_num 2: it must
	// not be consumed until the gap fills in.
	ds.AddEvent(3, event(3, "baz|"))

	got := ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	assert.Equal(t, []string{"foo", "bar"}, got)
	assert.False(t, Empty[string](ds), "seq_num 3 remains buffered behind the gap")

	ds.AddEvent(2, event(2, "mid|"))
	got = ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	assert.Equal(t, []string{"foo", "bar", "mid", "baz"}, got, "queue is cumulative across calls")
	assert.False(t, Empty[string](ds), "the cumulative message queue is non-empty even though every event byte has been consumed")
}

func TestDataStream_ExtractMessages_PartialTrailingBytes(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "foo|incomple"))

	got := ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	require.Equal(t, []string{"foo"}, got)
	assert.False(t, Empty[string](ds), "trailing bytes with no delimiter stay buffered")

	ds.AddEvent(1, event(1, "te|"))
	got = ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	assert.Equal(t, []string{"foo", "incomplete"}, got)
}

func TestDataStream_AddEvent_DuplicateSeqNumDropped(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "first|"))
	ds.AddEvent(0, event(0, "second|"))

	got := ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	assert.Equal(t, []string{"first"}, got, "the first-seen event at a seq_num wins")
}

func TestDataStream_AddEvent_AlreadyErasedDropped(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "foo|"))
	ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})

	// seq_num 0 has already been erased; re-adding it must not resurrect it.
	ds.AddEvent(0, event(0, "stale|"))
	got := ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	assert.Equal(t, []string{"foo"}, got, "the cumulative queue holds only the original message, not the stale one")
}

func TestDataStream_ExtractMessages_ParserProgressAnomaly(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "foo"))

	got := ExtractMessages[string](ds, MessageDirectionResponse, lyingParser{})
	assert.Empty(t, got)
	assert.False(t, Empty[string](ds), "state must be left unchanged on a progress anomaly")

	// A real parser can still make progress afterward.
	got = ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	assert.Empty(t, got, "fakeParser without a delimiter makes no progress either")
}

func TestDataStream_ExtractMessages_NoProgressIsNotAnAnomaly(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "incomplete"))

	got := ExtractMessages[string](ds, MessageDirectionResponse, noopParser{})
	assert.Empty(t, got)
	assert.False(t, Empty[string](ds))
}

func TestDataStream_Empty_PanicsOnTypeSwitch(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "foo|"))
	ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})

	assert.Panics(t, func() {
		Empty[int](ds)
	})
}

func TestDataStream_Reset_ClearsEverything(t *testing.T) {
	ds := NewDataStream()
	ds.AddEvent(0, event(0, "foo|partial"))
	ExtractMessages[string](ds, MessageDirectionResponse, &fakeParser{})
	require.False(t, Empty[string](ds))

	ds.Reset()
	assert.True(t, Empty[string](ds))
	assert.Equal(t, 0, ds.offset)
	assert.Nil(t, ds.msgType)
}
