package lists

// IndiceMerger folds a sequence of sorted row index lists with AND or OR.
// An uninitialized merger adopts its first input as is.
type IndiceMerger struct {
	initialized bool
	union       bool

	merges int

	result  []uint32
	scratch []uint32
}

func NewIntersectMerger() *IndiceMerger {
	return &IndiceMerger{}
}

func NewUnionMerger() *IndiceMerger {
	return &IndiceMerger{union: true}
}

func (m *IndiceMerger) Merges() int {
	return m.merges
}

func (m *IndiceMerger) With(input []uint32) {

	m.merges += 1

	if !m.initialized {
		m.result = append(m.result[:0], input...)
		m.initialized = true
		return
	}

	if m.union {
		if cap(m.scratch) < len(m.result)+len(input) {
			m.scratch = make([]uint32, len(m.result)+len(input))
		}
		scratch := m.scratch[:len(m.result)+len(input)]
		filled := Union(m.result, input, scratch)
		m.result, m.scratch = scratch[:filled], m.result
		return
	}

	filled := Intersect(m.result, input, m.result)
	m.result = m.result[:filled]
}

// Result returns the merged list; ok is false when nothing was merged.
func (m *IndiceMerger) Result() (result []uint32, ok bool) {
	return m.result, m.initialized
}
