// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)

	for i := 0; i < getFuzzRounds(); i++ {
		msgType := MsgType(rng.Intn(256))
		id := MessageID(rng.Intn(256))
		payload := randomBytes(rng, rng.Intn(MaxPayloadSize+1))

		data, err := Encode(msgType, id, payload)
		if err != nil {
			t.Fatalf("Round %d: Encode failed: %v", i, err)
		}
		f, err := Decode(data)
		if err != nil {
			t.Fatalf("Round %d: Decode failed: %v", i, err)
		}
		if f.Type != msgType || f.ID != id || !bytes.Equal(f.Payload, payload) {
			t.Fatalf("Round %d: round trip mismatch: %v", i, f)
		}
	}
}

func TestFuzz_DecodeRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)

	for i := 0; i < getFuzzRounds(); i++ {
		raw := randomBytes(rng, rng.Intn(40))
		if rng.Intn(2) == 0 && len(raw) > 0 {
			raw[0] = Marker
		}
		// Must not panic; any error is acceptable
		_, _ = Decode(raw)
	}
}

func TestFuzz_ParseRandomPayloads(t *testing.T) {
	rng := newFuzzRng(t)
	ids := []MessageID{MsgVersion, MsgStatus, MsgSettings, MsgTemperature}

	for i := 0; i < getFuzzRounds(); i++ {
		f := NewFrame(MsgTypeResponse, ids[rng.Intn(len(ids))], randomBytes(rng, rng.Intn(20)))
		msg, err := ParseResponse(f)
		if err != nil && !errors.Is(err, ErrPayloadTooShort) {
			t.Fatalf("Round %d: unexpected error type: %v", i, err)
		}
		if err == nil && msg != nil {
			_ = FormatMessage(msg)
		}
	}
}

// ============================================================
// Scanner Fuzz Tests
// ============================================================

// TestFuzz_ScannerNoiseBetweenFrames interleaves valid frames with random
// noise that contains no marker byte. Every frame must be recovered.
func TestFuzz_ScannerNoiseBetweenFrames(t *testing.T) {
	rng := newFuzzRng(t)

	rounds := getFuzzRounds() / 10
	if rounds < 1 {
		rounds = 1
	}

	for i := 0; i < rounds; i++ {
		var stream []byte
		want := rng.Intn(5) + 1
		for j := 0; j < want; j++ {
			noise := randomBytes(rng, rng.Intn(8))
			for k := range noise {
				if noise[k] == Marker {
					noise[k] = 0x00
				}
			}
			stream = append(stream, noise...)
			stream = append(stream, MustEncode(NewFrame(MsgTypeResponse, MsgSettings, randomBytes(rng, 6)))...)
		}

		s := NewScanner(&chunkReader{chunks: splitRandomly(rng, stream)})
		frames := 0
		for {
			raw, err := s.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Round %d: unexpected scanner error: %v", i, err)
			}
			if _, err := Decode(raw); err != nil {
				t.Fatalf("Round %d: decode failed: %v", i, err)
			}
			frames++
		}
		if frames != want {
			t.Fatalf("Round %d: recovered %d frames, want %d", i, frames, want)
		}
	}
}

// TestFuzz_ScannerRandomStream feeds pure noise; the scanner must terminate
// and never hand out a frame longer than the maximum size.
func TestFuzz_ScannerRandomStream(t *testing.T) {
	rng := newFuzzRng(t)

	for i := 0; i < getFuzzRounds()/10+1; i++ {
		stream := randomBytes(rng, rng.Intn(2048))
		s := NewScanner(&chunkReader{chunks: splitRandomly(rng, stream)})

		for calls := 0; ; calls++ {
			if calls > len(stream)+10 {
				t.Fatalf("Round %d: scanner did not terminate", i)
			}
			raw, err := s.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if len(raw) > MaxFrameSize {
				t.Fatalf("Round %d: frame of %d bytes exceeds maximum", i, len(raw))
			}
		}
	}
}

// splitRandomly splits data into chunks of 1-32 bytes
func splitRandomly(rng *rand.Rand, data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := rng.Intn(32) + 1
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
