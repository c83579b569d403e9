package output

import (
	"encoding/json"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Batcher collects the rows of one artifact and hands them to the
// sink every BatchSize rows. It is safe to Add from several
// goroutines.
type Batcher struct {
	mu sync.Mutex

	sink     *Sink
	artifact string
	filter   string
	size     int

	rows [][]byte
}

// NewBatcher starts a batch for artifact. When filter is set rows
// are checked against the sink's Filter expression.
func (self *Sink) NewBatcher(artifact string, filter bool) *Batcher {
	result := &Batcher{
		sink:     self,
		artifact: artifact,
		size:     self.options.BatchSize,
	}
	if filter {
		result.filter = self.options.Filter
	}
	return result
}

// Matches returns true when the filter selects a value in row. An
// empty filter matches everything.
func Matches(row []byte, filter string) bool {
	if filter == "" {
		return true
	}

	value := gjson.GetBytes(row, filter)
	if !value.Exists() {
		return false
	}
	switch value.Type {
	case gjson.False, gjson.Null:
		return false
	}
	return true
}

func (self *Batcher) Add(row *ordereddict.Dict) error {
	serialized, err := json.Marshal(row)
	if err != nil {
		return errors.Wrapf(utils.ErrSerialize, "%v row: %v", self.artifact, err)
	}
	return self.AddSerialized(serialized)
}

func (self *Batcher) AddSerialized(row []byte) error {
	if !Matches(row, self.filter) {
		return nil
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	self.rows = append(self.rows, row)
	if len(self.rows) >= self.size {
		return self.flush()
	}
	return nil
}

func (self *Batcher) Flush() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.flush()
}

func (self *Batcher) flush() error {
	if len(self.rows) == 0 {
		return nil
	}

	rows := self.rows
	self.rows = nil
	utils.STATS.Inc_BatchesFlushed()
	return self.sink.WriteBatch(self.artifact, rows)
}

// Close writes out whatever is left.
func (self *Batcher) Close() error {
	return self.Flush()
}
