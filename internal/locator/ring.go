package locator

// ring keeps the newest len(buf) samples.
type ring struct {
	buf   []Sample
	start int
	n     int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Sample, size)}
}

func (r *ring) push(s Sample) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// last returns the newest limit samples oldest first.
func (r *ring) last(limit int) []Sample {
	if limit <= 0 || limit > r.n {
		limit = r.n
	}
	out := make([]Sample, 0, limit)
	for i := r.n - limit; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
