// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// SSE READER
// =============================================================================

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// SSEReader parses Server-Sent Events from a stream. It is shared by every
// cloud backend; the local backend uses newline-delimited JSON instead.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream and returns the event
// type (empty when the vendor emits bare data lines) and the joined data
// payload. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		if err == io.EOF {
			// RELIABILITY: ReadBytes hands back any unterminated final
			// line together with EOF. Parse it so a stream that closes
			// mid-event still delivers its last fragment.
			if bytes.HasPrefix(line, []byte("event:")) {
				eventType = string(bytes.TrimSpace(line[6:]))
			} else if bytes.HasPrefix(line, []byte("data:")) {
				data := bytes.TrimSpace(line[5:])
				if len(data) <= MaxEventSize {
					dataLines = append(dataLines, data)
				}
			}
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(line[6:]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			if len(data) <= MaxEventSize {
				dataLines = append(dataLines, data)
			}
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// DoneMarker is the literal terminator several OpenAI-style vendors send as
// the final data line.
var DoneMarker = []byte("[DONE]")
