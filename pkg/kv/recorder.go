package kv

// Recorder observes store outcomes. Corrupted reports an entry that was
// deleted because its record could not be decoded; otherwise that data loss
// would be silent.
type Recorder interface {
	Hit(b Backend)
	Miss(b Backend)
	Expired(b Backend, n int)
	Corrupted(b Backend)
}

type nopRecorder struct{}

func (nopRecorder) Hit(Backend)          {}
func (nopRecorder) Miss(Backend)         {}
func (nopRecorder) Expired(Backend, int) {}
func (nopRecorder) Corrupted(Backend)    {}
