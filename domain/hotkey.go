package domain

// HotKey is one entry of the hot key Top-K list
type HotKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// AddResult reports the effect of one write on the Top-K set.
type AddResult struct {
	// Hot is true when the key is (still) in the Top-K set after the write.
	Hot         bool
	// Expelled is the key pushed out of the Top-K set, if any.
	Expelled    string
	HasExpelled bool
}

type HotKeyDetector interface {
	Add(key string, increment int) AddResult
	// List returns the tracked keys by count descending.
	List() []HotKey
	// Expelled is the bounded feed of keys pushed out of the Top-K set.
	Expelled() <-chan HotKey
	// Fading halves every count.
	Fading()
	Total() int64
}
