package channel

// InputDriver backs a readable channel class. Sample returns the raw
// signed value for a given physical index; the registry owns clamping,
// inversion, and the enabled/disabled gate.
type InputDriver interface {
	Sample(physicalIndex int) (int32, error)
}

// OutputDriver backs a writable channel class. Drive is called after
// the registry has clamped and (if Inverted) flipped the commanded
// value; physicalIndex identifies which hardware instance to command.
type OutputDriver interface {
	Drive(physicalIndex int, value int32) error
}

// drivers holds one optional driver per Class. A nil entry means reads
// return the cache as-is (system inputs updated via update_value) and
// writes to an output only update the cache (SetValue still returns OK).
type drivers struct {
	input  map[Class]InputDriver
	output map[Class]OutputDriver
}

func newDrivers() drivers {
	return drivers{
		input:  make(map[Class]InputDriver),
		output: make(map[Class]OutputDriver),
	}
}

// BindInput installs the driver backing an input Class.
func (r *Registry) BindInput(c Class, d InputDriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drv.input[c] = d
}

// BindOutput installs the driver backing an output Class.
func (r *Registry) BindOutput(c Class, d OutputDriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drv.output[c] = d
}
