package clidrive

// outputBuffer accumulates one output stream of the child process. It holds
// the unconsumed tail of everything emitted since the last consuming match.
type outputBuffer struct {
	data string
}

// append adds chunk to the buffer, then removes control sequences from the
// whole buffer if cc asks for it.
func (b *outputBuffer) append(chunk string, cc ControlChars) {
	s := b.data + chunk
	if cc.Strip && cc.Pattern != nil {
		s = cc.Pattern.ReplaceAllString(s, "")
	}
	b.data = s
}

// find reports whether p matches the buffer and where. An empty pattern
// always matches with a nil span.
func (b *outputBuffer) find(p Pattern) (span []int, ok bool) {
	if isEmpty(p) {
		return nil, true
	}
	span = p.Find(b.data)
	return span, span != nil
}

// consume removes span from the buffer, keeping what came before and after.
func (b *outputBuffer) consume(span []int) {
	if span == nil {
		return
	}
	b.data = b.data[:span[0]] + b.data[span[1]:]
}

// String returns the unconsumed content.
func (b *outputBuffer) String() string {
	return b.data
}
