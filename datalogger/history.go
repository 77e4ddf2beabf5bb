package datalogger

import "github.com/brandondube/ringo"

// History keeps the last N samples of each logged channel in RAM, the
// same ringo.CircleF64 ring-buffer idiom envsrv.Envmon uses for its
// temperature/humidity history, so a debug mirror can show recent
// values without re-reading flash.
type History struct {
	index map[uint16]int
	bufs  []ringo.CircleF64
}

// NewHistory allocates one ring of depth samples per channel in ids.
func NewHistory(ids []uint16, depth int) *History {
	h := &History{
		index: make(map[uint16]int, len(ids)),
		bufs:  make([]ringo.CircleF64, len(ids)),
	}
	for i, id := range ids {
		h.index[id] = i
		h.bufs[i].Init(depth)
	}
	return h
}

func (h *History) append(ids []uint16, values []int32) {
	for i, id := range ids {
		idx, ok := h.index[id]
		if !ok {
			continue
		}
		h.bufs[idx].Append(float64(values[i]))
	}
}

// Recent returns the recorded history for channel id, oldest first,
// or nil if id was never registered.
func (h *History) Recent(id uint16) []float64 {
	idx, ok := h.index[id]
	if !ok {
		return nil
	}
	return h.bufs[idx].Contiguous()
}
