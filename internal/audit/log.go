// Package audit appends one JSON line per money-moving or administrative
// action. The log is write-only from the protocol's point of view.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
)

// Entry is one audit record.
type Entry struct {
	Time         time.Time `json:"time"`
	Actor        string    `json:"actor"`
	Command      string    `json:"command"`
	Account      string    `json:"account,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Outcome      string    `json:"outcome"`
}

// OutcomeOK is recorded for successful actions; failures record their
// error code.
const OutcomeOK = "ok"

// Recorder is what services depend on.
type Recorder interface {
	Record(e Entry) error
}

// Log writes entries to an io.Writer, one JSON document per line.
type Log struct {
	clock  clock.Clock
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// New writes to w. Entries without a time are stamped with clk.
func New(w io.Writer, clk clock.Clock) *Log {
	l := &Log{clock: clk, enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Open appends to the file at path, creating it if needed.
func Open(path string, clk clock.Clock) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return New(f, clk), nil
}

func (l *Log) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = l.clock.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(&e)
}

func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) error { return nil }
