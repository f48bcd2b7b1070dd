package ledger

import "github.com/blogshield/blogshield/internal/signature"

// findingRing is a fixed-capacity ring buffer of findings. Appending
// beyond capacity overwrites the oldest entry in O(1).
type findingRing struct {
	buf   []signature.Finding
	head  int // index of the oldest entry
	count int
}

func newFindingRing(capacity int) *findingRing {
	return &findingRing{buf: make([]signature.Finding, capacity)}
}

func (r *findingRing) push(f signature.Finding) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = f
		r.count++
		return
	}
	r.buf[r.head] = f
	r.head = (r.head + 1) % len(r.buf)
}

func (r *findingRing) len() int { return r.count }

// each visits entries oldest-first.
func (r *findingRing) each(fn func(signature.Finding) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.buf[(r.head+i)%len(r.buf)]) {
			return
		}
	}
}

// snapshot copies the entries oldest-first.
func (r *findingRing) snapshot() []signature.Finding {
	out := make([]signature.Finding, 0, r.count)
	r.each(func(f signature.Finding) bool {
		out = append(out, f)
		return true
	})
	return out
}

// retain keeps only entries the predicate accepts, preserving order.
// Kept entries go into a fresh buffer; writing into r.buf while each
// is still reading would clobber wrapped entries before they are seen.
func (r *findingRing) retain(keep func(signature.Finding) bool) {
	fresh := make([]signature.Finding, len(r.buf))
	n := 0
	r.each(func(f signature.Finding) bool {
		if keep(f) {
			fresh[n] = f
			n++
		}
		return true
	})
	r.buf = fresh
	r.head = 0
	r.count = n
}
