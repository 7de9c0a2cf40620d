// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"bytes"
	"io"
)

// Scanner splits a continuous byte stream into candidate frames.
//
// The underlying reader may return (0, nil) when its read timeout expires, which
// is how go.bug.st/serial reports an idle line. A candidate is located by its
// marker byte and sized by its length field; it is not validated here, callers
// pass it to Decode. Bytes handed out or discarded are never read again.
type Scanner struct {
	r       io.Reader
	buf     []byte
	start   int
	end     int
	skipped uint64
}

// NewScanner creates a scanner reading from r
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:   r,
		buf: make([]byte, MaxFrameSize*2),
	}
}

// Skipped returns the number of bytes discarded while hunting for a marker
func (s *Scanner) Skipped() uint64 {
	return s.skipped
}

// Next returns the next candidate frame.
//
// It returns ErrNoData if the reader timed out before a marker was seen, and
// ErrShortFrame if it timed out in the middle of a candidate. Reader errors are
// returned unchanged. In all error cases any partially read candidate is
// dropped and the following call resumes hunting for a marker.
func (s *Scanner) Next() ([]byte, error) {
	if err := s.hunt(); err != nil {
		return nil, err
	}

	// marker + type + length
	if err := s.want(3); err != nil {
		s.discard()
		return nil, err
	}

	total := HeaderSize + int(s.buf[s.start+2]) + CRCSize
	if err := s.want(total); err != nil {
		s.discard()
		return nil, err
	}

	frame := make([]byte, total)
	copy(frame, s.buf[s.start:s.start+total])
	s.start += total
	return frame, nil
}

// hunt advances to the next marker byte
func (s *Scanner) hunt() error {
	for {
		if i := bytes.IndexByte(s.buf[s.start:s.end], Marker); i >= 0 {
			s.skipped += uint64(i)
			s.start += i
			return nil
		}
		s.skipped += uint64(s.end - s.start)
		s.start, s.end = 0, 0

		n, err := s.fill()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoData
		}
	}
}

// want blocks until n bytes from the current position are buffered
func (s *Scanner) want(n int) error {
	for s.end-s.start < n {
		read, err := s.fill()
		if err != nil {
			return err
		}
		if read == 0 {
			return ErrShortFrame
		}
	}
	return nil
}

func (s *Scanner) fill() (int, error) {
	if s.start > 0 {
		s.end = copy(s.buf, s.buf[s.start:s.end])
		s.start = 0
	}
	n, err := s.r.Read(s.buf[s.end:])
	if n < 0 {
		n = 0
	}
	s.end += n
	return n, err
}

func (s *Scanner) discard() {
	s.start, s.end = 0, 0
}
