package protohttp2

import (
	"encoding/binary"

	"sockettrace/tracking"
)

const frameHeaderSize = 9

type chunk struct {
	data        []byte
	timestampNs uint64
}

// Parser incrementally parses a concatenated byte stream into HTTP/2
// Frames. Like protohttp.Parser, it is stateless across ExtractMessages
// calls.
type Parser struct {
	chunks []chunk
}

// NewParser returns a Parser with no buffered input.
func NewParser() *Parser { return &Parser{} }

// Append records one contiguous event's bytes for the next ParseMessages
// call.
func (p *Parser) Append(data []byte, timestampNs uint64) {
	p.chunks = append(p.chunks, chunk{data: data, timestampNs: timestampNs})
}

// ParseMessages parses as many complete frames as possible out of the
// concatenated chunks. dir is accepted for interface conformance but
// unused: HTTP/2 frames are self-describing and need no request/response
// hint to parse their header.
func (p *Parser) ParseMessages(dir tracking.MessageDirection, out *[]Frame) tracking.ParseResult {
	concat, lengths, timestamps := p.concatenate()

	consumed := 0
	for {
		frame, n, ok := parseOneFrame(concat[consumed:], timestampAt(lengths, timestamps, consumed))
		if !ok {
			break
		}
		*out = append(*out, frame)
		consumed += n
	}

	chunkIdx, byteOffset := normalizePosition(lengths, consumed)
	return tracking.ParseResult{EndPosition: tracking.BufferPosition{
		SeqNumIndex: chunkIdx,
		ByteOffset:  byteOffset,
	}}
}

func (p *Parser) concatenate() (concat []byte, lengths []int, timestamps []uint64) {
	lengths = make([]int, len(p.chunks))
	timestamps = make([]uint64, len(p.chunks))
	total := 0
	for i, c := range p.chunks {
		lengths[i] = len(c.data)
		timestamps[i] = c.timestampNs
		total += len(c.data)
	}
	concat = make([]byte, 0, total)
	for _, c := range p.chunks {
		concat = append(concat, c.data...)
	}
	return concat, lengths, timestamps
}

func timestampAt(lengths []int, timestamps []uint64, offset int) uint64 {
	for i, n := range lengths {
		if offset < n {
			return timestamps[i]
		}
		offset -= n
	}
	if len(timestamps) == 0 {
		return 0
	}
	return timestamps[len(timestamps)-1]
}

func normalizePosition(lengths []int, offset int) (int, int) {
	idx := 0
	for idx < len(lengths) && offset >= lengths[idx] {
		offset -= lengths[idx]
		idx++
	}
	return idx, offset
}

func parseOneFrame(buf []byte, timestampNs uint64) (Frame, int, bool) {
	if len(buf) < frameHeaderSize {
		return Frame{}, 0, false
	}

	length := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
	frameType := FrameType(buf[3])
	flags := buf[4]
	streamID := binary.BigEndian.Uint32(buf[5:9]) &^ (1 << 31) // clear reserved bit

	total := frameHeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, false
	}

	frame := Frame{
		TimestampNs: timestampNs,
		Length:      length,
		Type:        frameType,
		Flags:       flags,
		StreamID:    streamID,
		Payload:     append([]byte(nil), buf[frameHeaderSize:total]...),
	}
	return frame, total, true
}
