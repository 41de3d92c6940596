package relay

import "strings"

// stopGate accumulates streamed chunks, cuts output at the first stop
// sequence (even one split across chunks) and enforces a chunk budget.
// Text that could still turn into a stop sequence is held back from deltas.
type stopGate struct {
	stops     []string
	maxStop   int
	maxTokens int

	buf     string
	emitted int
	count   int
	finish  string
	done    bool
}

func newStopGate(stops []string, maxTokens int) *stopGate {
	g := &stopGate{maxTokens: maxTokens}
	for _, s := range stops {
		if s == "" {
			continue
		}
		g.stops = append(g.stops, s)
		if len(s) > g.maxStop {
			g.maxStop = len(s)
		}
	}
	return g
}

// push adds one chunk and returns the text that is now safe to emit. halt
// reports that generation should stop.
func (g *stopGate) push(chunk string) (delta string, halt bool) {
	if g.done {
		return "", true
	}
	prevLen := len(g.buf)
	g.buf += chunk
	g.count++

	if idx := g.findStop(prevLen); idx >= 0 {
		g.buf = g.buf[:idx]
		return g.finishWith(finishStop), true
	}
	if g.maxTokens > 0 && g.count >= g.maxTokens {
		return g.finishWith(finishLength), true
	}
	safe := len(g.buf) - g.holdback()
	if safe > g.emitted {
		delta = g.buf[g.emitted:safe]
		g.emitted = safe
	}
	return delta, false
}

// flush ends the stream naturally and returns any held-back text.
func (g *stopGate) flush() string {
	if g.done {
		return ""
	}
	return g.finishWith(finishStop)
}

func (g *stopGate) finishWith(reason string) string {
	g.done = true
	g.finish = reason
	delta := g.buf[g.emitted:]
	g.emitted = len(g.buf)
	return delta
}

// findStop returns the earliest stop match that ends in the newest chunk,
// or -1. Matches fully inside older text were already caught.
func (g *stopGate) findStop(prevLen int) int {
	if len(g.stops) == 0 {
		return -1
	}
	from := prevLen - g.maxStop + 1
	if from < 0 {
		from = 0
	}
	best := -1
	for _, s := range g.stops {
		if i := strings.Index(g.buf[from:], s); i >= 0 && (best < 0 || from+i < best) {
			best = from + i
		}
	}
	return best
}

// holdback is the length of the longest buffer suffix that is a proper
// prefix of some stop sequence.
func (g *stopGate) holdback() int {
	limit := g.maxStop - 1
	if n := len(g.buf) - g.emitted; n < limit {
		limit = n
	}
	for k := limit; k > 0; k-- {
		tail := g.buf[len(g.buf)-k:]
		for _, s := range g.stops {
			if len(s) > k && strings.HasPrefix(s, tail) {
				return k
			}
		}
	}
	return 0
}

func (g *stopGate) text() string { return g.buf }

// applyStop truncates s at the earliest stop sequence.
func applyStop(s string, stops []string) (string, bool) {
	best := -1
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		if i := strings.Index(s, stop); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return s, false
	}
	return s[:best], true
}
