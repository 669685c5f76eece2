// Package record pairs a connection's extracted requests with its
// extracted responses and applies a header filter. It does not poll a
// ring buffer or write a columnar batch — it operates purely on
// already-extracted protohttp.Message slices.
package record

import (
	"sockettrace/filter"
	"sockettrace/protohttp"
)

// Row is one emitted request/response pair.
type Row struct {
	TimestampNs uint64
	Method      string
	Path        string
	Body        []byte
	Headers     map[string][]string
}

// Select returns the subset of msgs whose headers satisfy f, preserving
// order. It counts/selects directly over extracted responses, with no
// request pairing involved.
func Select(msgs []protohttp.Message, f filter.ResponseFilter) []protohttp.Message {
	selected := make([]protohttp.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.Matches(m.Headers) {
			selected = append(selected, m)
		}
	}
	return selected
}

// Pair zips requests with responses by position — the source's
// pairing strategy (original_source's socket_trace_connector_test.cc
// assembles rows by matching send-event order to recv-event order,
// InitSendEvent/InitRecvEvent pairs appearing in lockstep). Out-of-order
// pairing across dropped messages is not attempted: a request with no
// matching response position is dropped, and vice versa.
func Pair(reqs, resps []protohttp.Message, f filter.ResponseFilter) []Row {
	n := len(reqs)
	if len(resps) < n {
		n = len(resps)
	}

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		resp := resps[i]
		if !f.Matches(resp.Headers) {
			continue
		}
		rows = append(rows, Row{
			TimestampNs: resp.TimestampNs,
			Method:      reqs[i].Method,
			Path:        reqs[i].Path,
			Body:        resp.Body,
			Headers:     resp.Headers,
		})
	}
	return rows
}
