package treedb

import (
	"crypto/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

const pushIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// pushIDSource mints keys of the form -<millis base36><seq><random>. The
// timestamp prefix keeps keys sortable by creation time, the counter breaks
// same-millisecond ties within a process and the random tail breaks ties
// across processes sharing a backend.
type pushIDSource struct {
	mu  sync.Mutex
	seq uint64
}

func (p *pushIDSource) next(now time.Time) string {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	var sb strings.Builder
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	sb.WriteString(pad36(seq%1679616, 4)) // 36^4 tie-break window
	sb.WriteString(randomTail(6))
	return sb.String()
}

func pad36(v uint64, width int) string {
	s := strconv.FormatUint(v, 36)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func randomTail(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable in practice; fall back to a
		// constant tail and let the counter carry uniqueness in-process.
		return strings.Repeat("0", n)
	}
	for i, b := range buf {
		buf[i] = pushIDAlphabet[int(b)%len(pushIDAlphabet)]
	}
	return string(buf)
}
