package transcript

import "sync/atomic"

// Holder publishes the current [Corrector]. Readers always see a complete
// Corrector; a dictionary reload builds a new one and swaps it in with Store,
// so in-flight corrections finish against the index they started with.
type Holder struct {
	p atomic.Pointer[Corrector]
}

// NewHolder returns a Holder initialised with c, which may be nil.
func NewHolder(c *Corrector) *Holder {
	h := &Holder{}
	if c != nil {
		h.p.Store(c)
	}
	return h
}

// Load returns the current Corrector, or nil if none was stored.
func (h *Holder) Load() *Corrector { return h.p.Load() }

// Store replaces the current Corrector. A nil c is ignored.
func (h *Holder) Store(c *Corrector) {
	if c != nil {
		h.p.Store(c)
	}
}

// Correct corrects text with the current Corrector. Without one, text is
// returned unchanged with no corrections.
func (h *Holder) Correct(text string) Result {
	c := h.Load()
	if c == nil {
		return Result{Original: text, Corrected: text, Corrections: []Correction{}}
	}
	return c.Correct(text)
}
