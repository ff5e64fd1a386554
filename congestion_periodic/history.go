package congestion_periodic

// History is a fixed-capacity FIFO of samples. When full, appending evicts
// the oldest sample. History is not safe for concurrent use.
type History struct {
	samples []Sample
	head    int // index of the oldest sample
	size    int
}

// NewHistory creates a history holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{samples: make([]Sample, capacity)}
}

// Push appends a sample, evicting the oldest one if the history is full.
func (h *History) Push(sample Sample) {
	if h.size < len(h.samples) {
		h.samples[(h.head+h.size)%len(h.samples)] = sample
		h.size++
		return
	}
	h.samples[h.head] = sample
	h.head = (h.head + 1) % len(h.samples)
}

// Len returns the number of samples held.
func (h *History) Len() int {
	return h.size
}

// Cap returns the maximum number of samples held.
func (h *History) Cap() int {
	return len(h.samples)
}

// At returns the i-th oldest sample.
func (h *History) At(i int) Sample {
	if i < 0 || i >= h.size {
		panic("history index out of range")
	}
	return h.samples[(h.head+i)%len(h.samples)]
}

// Last returns the newest sample.
func (h *History) Last() (Sample, bool) {
	if h.size == 0 {
		return Sample{}, false
	}
	return h.At(h.size - 1), true
}

// Tail returns a copy of the newest n samples, oldest first. It returns
// fewer than n samples if the history holds fewer.
func (h *History) Tail(n int) []Sample {
	if n > h.size {
		n = h.size
	}
	tail := make([]Sample, n)
	for i := range tail {
		tail[i] = h.At(h.size - n + i)
	}
	return tail
}

// Samples returns a copy of all samples, oldest first.
func (h *History) Samples() []Sample {
	return h.Tail(h.size)
}
