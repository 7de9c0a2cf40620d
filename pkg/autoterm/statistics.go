// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates on a link
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	ChecksumErrors   uint64
	IncompleteFrames uint64
	ShortReads       uint64
	UnknownFrames    uint64
	ParseErrors      uint64
	AnomalousValues  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Record updates the counters with the outcome of one candidate frame.
// err is the error from Scanner.Next, Decode or ParseResponse, if any.
func (s *Statistics) Record(f *Frame, err error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
		s.ValidFrames++
		if f != nil && !f.Known() {
			s.UnknownFrames++
		}
	case errors.Is(err, ErrChecksumMismatch):
		s.ChecksumErrors++
	case errors.Is(err, ErrShortFrame):
		s.ShortReads++
	case errors.Is(err, ErrPayloadTooShort):
		// The frame itself was fine
		s.ValidFrames++
		s.ParseErrors++
	default:
		s.IncompleteFrames++
	}
}

// RecordAnomalies counts implausible values found in valid frames
func (s *Statistics) RecordAnomalies(anomalies []ValidationError) {
	s.AnomalousValues += uint64(len(anomalies))
}

// Errors returns the number of frames that were rejected
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.IncompleteFrames + s.ShortReads + s.ParseErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.IncompleteFrames > 0 {
		result += fmt.Sprintf("Incomplete:      %8d\n", s.IncompleteFrames)
	}
	if s.ShortReads > 0 {
		result += fmt.Sprintf("Short Reads:     %8d\n", s.ShortReads)
	}
	if s.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d\n", s.ParseErrors)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.AnomalousValues)
	}
	if s.UnknownFrames > 0 {
		result += fmt.Sprintf("Unknown IDs:     %8d\n", s.UnknownFrames)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
