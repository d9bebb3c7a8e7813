// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StatementDetails groups the latency counters of one remote statement.
type StatementDetails struct {
	StatementID string
	Operation   OperationDetail
	Result      ResultLatency
	Chunks      ChunkDetails
}

// NewStatementDetails returns empty counters for the given statement.
func NewStatementDetails(statementID string) *StatementDetails {
	return &StatementDetails{StatementID: statementID}
}

func (d *StatementDetails) freeze() {
	d.Operation.Freeze()
	d.Chunks.Freeze()
}

// StatementSnapshot is the read-only view of StatementDetails that is handed
// to an Exporter.
type StatementSnapshot struct {
	StatementID           string
	Operation             OperationSnapshot
	ResultSetReadyLatency time.Duration
	ConsumptionLatency    time.Duration
	Chunks                ChunkSnapshot
}

func (d *StatementDetails) Snapshot() StatementSnapshot {
	return StatementSnapshot{
		StatementID:           d.StatementID,
		Operation:             d.Operation.Snapshot(),
		ResultSetReadyLatency: d.Result.ResultSetReadyLatency(),
		ConsumptionLatency:    d.Result.ConsumptionLatency(),
		Chunks:                d.Chunks.Snapshot(),
	}
}

// Exporter receives the latency counters of a statement once the statement
// has finished.
type Exporter interface {
	Export(ctx context.Context, snapshot StatementSnapshot)
}

// LogExporter writes the latency counters to a slog.Logger.
type LogExporter struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (e *LogExporter) Export(ctx context.Context, s StatementSnapshot) {
	if e == nil || e.Logger == nil {
		return
	}
	e.Logger.Log(ctx, e.Level, "statement latency",
		"statementId", s.StatementID,
		"numStatusCalls", s.Operation.NumStatusCalls,
		"statusLatency", s.Operation.TotalStatusLatency,
		"resultReadyLatency", s.ResultSetReadyLatency,
		"consumptionLatency", s.ConsumptionLatency,
		"chunksDownloaded", s.Chunks.ChunksDownloaded,
		"initialChunkLatency", s.Chunks.InitialChunkLatency,
		"slowestChunkLatency", s.Chunks.SlowestChunkLatency,
		"sumChunksLatency", s.Chunks.SumChunksLatency)
}

// Collector keeps the details of all statements that are still active.
// A Collector is shared by all connections of one connector and is safe for
// concurrent use. The details themselves are not.
type Collector struct {
	mu       sync.Mutex
	details  map[string]*StatementDetails
	exporter Exporter
}

// NewCollector returns a Collector that hands finished statements to the
// given Exporter. A nil Exporter discards them.
func NewCollector(exporter Exporter) *Collector {
	return &Collector{details: make(map[string]*StatementDetails), exporter: exporter}
}

// Details returns the details of the given statement, and creates them if
// they do not exist yet.
func (c *Collector) Details(statementID string) *StatementDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.details[statementID]; ok {
		return d
	}
	d := NewStatementDetails(statementID)
	c.details[statementID] = d
	return d
}

// Register adds details that were created before the statement id was known.
// Any details that were already registered for the same id are replaced.
func (c *Collector) Register(d *StatementDetails) {
	if d == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[d.StatementID] = d
}

// Lookup returns the details of the given statement, if any.
func (c *Collector) Lookup(statementID string) (*StatementDetails, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.details[statementID]
	return d, ok
}

// Len returns the number of statements that have not been exported.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.details)
}

// Export freezes the details of the given statement, removes them from the
// collector and hands them to the exporter. Unknown ids are ignored.
func (c *Collector) Export(ctx context.Context, statementID string) {
	c.mu.Lock()
	d, ok := c.details[statementID]
	delete(c.details, statementID)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.export(ctx, d)
}

// Close exports all remaining details.
func (c *Collector) Close(ctx context.Context) {
	c.mu.Lock()
	remaining := make([]*StatementDetails, 0, len(c.details))
	for id, d := range c.details {
		remaining = append(remaining, d)
		delete(c.details, id)
	}
	c.mu.Unlock()
	for _, d := range remaining {
		c.export(ctx, d)
	}
}

func (c *Collector) export(ctx context.Context, d *StatementDetails) {
	d.freeze()
	if c.exporter == nil {
		return
	}
	// Panics in the exporter are ignored.
	defer func() { _ = recover() }()
	c.exporter.Export(ctx, d.Snapshot())
}
