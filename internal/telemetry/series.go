package telemetry

// Point is one labelled value in a Series.
type Point struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

// Series is a fixed-capacity ring of points. When full, appending evicts the
// oldest point. A Series is not safe for concurrent use; Handle guards it.
type Series struct {
	buf   []Point
	start int
	n     int
}

// NewSeries returns an empty series holding at most capacity points.
func NewSeries(capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{buf: make([]Point, capacity)}
}

func (s *Series) Append(label string, v float64) {
	p := Point{Label: label, Value: v}
	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = p
		s.n++
		return
	}
	s.buf[s.start] = p
	s.start = (s.start + 1) % len(s.buf)
}

func (s *Series) Len() int { return s.n }
func (s *Series) Cap() int { return len(s.buf) }

// Points returns a copy of the points, oldest first.
func (s *Series) Points() []Point {
	out := make([]Point, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// Latest returns the most recently appended point.
func (s *Series) Latest() (Point, bool) {
	if s.n == 0 {
		return Point{}, false
	}
	return s.buf[(s.start+s.n-1)%len(s.buf)], true
}
