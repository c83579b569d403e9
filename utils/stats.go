package utils

import (
	"encoding/json"
	"sync"
)

var (
	STATS = Stats{}
)

// Process wide counters for the decoders. Mainly useful to see how
// much damage a corrupted source did.
type Stats struct {
	mu sync.Mutex

	PagesRead             int
	CyclesDetected        int
	RecordsSkipped        int
	DecompressionFailures int
	PartialDecompressions int
	UnresolvedPaths       int
	BatchesFlushed        int
}

func (self *Stats) DebugString() string {
	self.mu.Lock()
	defer self.mu.Unlock()

	serialized, _ := json.MarshalIndent(self, " ", " ")
	return string(serialized)
}

func (self *Stats) Reset() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.PagesRead = 0
	self.CyclesDetected = 0
	self.RecordsSkipped = 0
	self.DecompressionFailures = 0
	self.PartialDecompressions = 0
	self.UnresolvedPaths = 0
	self.BatchesFlushed = 0
}

func (self *Stats) Inc_PagesRead() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.PagesRead++
}

func (self *Stats) Inc_CyclesDetected() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.CyclesDetected++
}

func (self *Stats) Inc_RecordsSkipped() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.RecordsSkipped++
}

func (self *Stats) Inc_DecompressionFailures() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.DecompressionFailures++
}

func (self *Stats) Inc_PartialDecompressions() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.PartialDecompressions++
}

func (self *Stats) Inc_UnresolvedPaths() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.UnresolvedPaths++
}

func (self *Stats) Inc_BatchesFlushed() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.BatchesFlushed++
}
