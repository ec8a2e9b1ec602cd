package natstransport

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// chunkHeaderPrefix marks a datagram as one chunk of a larger logical
// message rather than a complete marshaled message. It mirrors the
// teacher's own framing convention for this module's wire format.
var chunkHeaderPrefix = []byte("@phnq/message/chunk")

// chunkHeaderLen is PREFIX(19) + nonce(16) + index(1) + total(1).
const chunkHeaderLen = 19 + 16 + 1 + 1

// maxChunks is the hard ceiling the single-byte total field can express.
// A message that would need more chunks than this is rejected outright
// rather than silently truncated.
const maxChunks = 255

// isChunk reports whether datagram carries the chunk header prefix.
func isChunk(datagram []byte) bool {
	return len(datagram) >= len(chunkHeaderPrefix) && bytes.HasPrefix(datagram, chunkHeaderPrefix)
}

// buildChunks splits a marshaled message into one or more framed chunks
// sized to fit bodyCap bytes of payload each, where bodyCap =
// maxPayload-chunkHeaderLen. It returns an error if the message would
// require more than maxChunks chunks.
func buildChunks(nonce [16]byte, data []byte, maxPayload int) ([][]byte, error) {
	bodyCap := maxPayload - chunkHeaderLen
	if bodyCap <= 0 {
		return nil, fmt.Errorf("natstransport: maxPayload %d too small for chunk header", maxPayload)
	}

	total := (len(data) + bodyCap - 1) / bodyCap
	if total == 0 {
		total = 1
	}
	if total > maxChunks {
		return nil, fmt.Errorf("natstransport: message needs %d chunks, exceeds the %d-chunk limit", total, maxChunks)
	}

	chunks := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * bodyCap
		end := start + bodyCap
		if end > len(data) {
			end = len(data)
		}

		frame := make([]byte, 0, chunkHeaderLen+(end-start))
		frame = append(frame, chunkHeaderPrefix...)
		frame = append(frame, nonce[:]...)
		frame = append(frame, byte(i), byte(total))
		frame = append(frame, data[start:end]...)
		chunks = append(chunks, frame)
	}
	return chunks, nil
}

type chunkFrame struct {
	nonce [16]byte
	index byte
	total byte
	body  []byte
}

func parseChunk(datagram []byte) (chunkFrame, error) {
	if len(datagram) < chunkHeaderLen {
		return chunkFrame{}, fmt.Errorf("natstransport: chunk datagram shorter than header")
	}
	var f chunkFrame
	copy(f.nonce[:], datagram[len(chunkHeaderPrefix):len(chunkHeaderPrefix)+16])
	f.index = datagram[len(chunkHeaderPrefix)+16]
	f.total = datagram[len(chunkHeaderPrefix)+17]
	f.body = datagram[chunkHeaderLen:]
	return f, nil
}

// reassemblyEntry buffers the chunks seen so far for one nonce.
type reassemblyEntry struct {
	total    byte
	slots    [][]byte
	received int
	seenAt   time.Time
}

// reassembler tracks in-flight chunked messages keyed by nonce, bounded
// by a TTL rather than growing without limit: a sender that starts a
// message and never finishes it (crash, drop) must not let its partial
// chunks accumulate forever.
type reassembler struct {
	mu      sync.Mutex
	entries map[[16]byte]*reassemblyEntry
	ttl     time.Duration
}

func newReassembler(ttl time.Duration) *reassembler {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &reassembler{entries: make(map[[16]byte]*reassemblyEntry), ttl: ttl}
}

// accept feeds one chunk frame in and returns the reassembled message
// bytes once every chunk for its nonce has arrived, along with true. It
// returns (nil, false) while reassembly is still incomplete.
func (r *reassembler) accept(f chunkFrame, now time.Time) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpired(now)

	entry, ok := r.entries[f.nonce]
	if !ok {
		entry = &reassemblyEntry{total: f.total, slots: make([][]byte, f.total), seenAt: now}
		r.entries[f.nonce] = entry
	}
	entry.seenAt = now

	if int(f.index) >= len(entry.slots) {
		return nil, false
	}
	if entry.slots[f.index] == nil {
		entry.slots[f.index] = f.body
		entry.received++
	}

	if entry.received < int(entry.total) {
		return nil, false
	}

	delete(r.entries, f.nonce)
	var out []byte
	for _, slot := range entry.slots {
		out = append(out, slot...)
	}
	return out, true
}

// evictExpired drops any partial entry whose last chunk arrived longer
// than r.ttl ago. Callers must hold r.mu.
func (r *reassembler) evictExpired(now time.Time) {
	for nonce, entry := range r.entries {
		if now.Sub(entry.seenAt) > r.ttl {
			delete(r.entries, nonce)
		}
	}
}
