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

// Package telemetry contains the latency counters that the Databricks
// database/sql driver keeps for each statement that it executes.
//
// The counters in this package are scoped to a single statement and are not
// safe for concurrent use. A statement is always driven by one goroutine at a
// time, and the counters are only read after the statement has finished.
package telemetry

import "time"

// OperationDetail counts the status calls that were needed to wait for the
// completion of a remote statement, and the total time spent in those calls.
type OperationDetail struct {
	numStatusCalls     int
	totalStatusLatency time.Duration
	frozen             bool
}

// RecordStatusCall registers one status call that took d.
func (o *OperationDetail) RecordStatusCall(d time.Duration) {
	if o == nil || o.frozen {
		return
	}
	if d < 0 {
		d = 0
	}
	o.numStatusCalls++
	o.totalStatusLatency += d
}

// NumStatusCalls returns the number of recorded status calls.
func (o *OperationDetail) NumStatusCalls() int {
	if o == nil {
		return 0
	}
	return o.numStatusCalls
}

// TotalStatusLatency returns the sum of the latencies of all recorded status calls.
func (o *OperationDetail) TotalStatusLatency() time.Duration {
	if o == nil {
		return 0
	}
	return o.totalStatusLatency
}

// Freeze stops any further accumulation.
func (o *OperationDetail) Freeze() {
	if o != nil {
		o.frozen = true
	}
}

// OperationSnapshot is a read-only copy of an OperationDetail.
type OperationSnapshot struct {
	NumStatusCalls     int
	TotalStatusLatency time.Duration
}

func (o *OperationDetail) Snapshot() OperationSnapshot {
	if o == nil {
		return OperationSnapshot{}
	}
	return OperationSnapshot{NumStatusCalls: o.numStatusCalls, TotalStatusLatency: o.totalStatusLatency}
}

// ResultLatency measures the time it takes to get a result ready, and the
// time the application spends consuming it.
type ResultLatency struct {
	now func() time.Time

	readyLatency       time.Duration
	startTime          time.Time
	started            bool
	consumptionLatency time.Duration
	frozen             bool
}

// SetResultSetReadyLatency sets the time between submitting the statement
// and the first result being available.
func (r *ResultLatency) SetResultSetReadyLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.readyLatency = d
}

// ResultSetReadyLatency returns the latency set by SetResultSetReadyLatency.
func (r *ResultLatency) ResultSetReadyLatency() time.Duration {
	if r == nil {
		return 0
	}
	return r.readyLatency
}

// MarkResultSetConsumption must be called each time the application asks
// for the next row. The first call starts the clock. The first call with
// hasNext=false stops it, and all calls after that are ignored.
func (r *ResultLatency) MarkResultSetConsumption(hasNext bool) {
	if r == nil || r.frozen {
		return
	}
	now := r.clock()
	if !r.started {
		r.started = true
		r.startTime = now
	}
	if !hasNext {
		r.consumptionLatency = now.Sub(r.startTime)
		r.frozen = true
	}
}

// ConsumptionLatency returns the time between the first and the last call
// to MarkResultSetConsumption. It is zero until the result has been
// consumed completely.
func (r *ResultLatency) ConsumptionLatency() time.Duration {
	if r == nil {
		return 0
	}
	return r.consumptionLatency
}

// Frozen returns true once the result has been consumed completely.
func (r *ResultLatency) Frozen() bool {
	return r != nil && r.frozen
}

func (r *ResultLatency) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// ChunkDetails keeps track of the download latencies of the chunks of a
// result.
type ChunkDetails struct {
	initialChunkLatency time.Duration
	slowestChunkLatency time.Duration
	sumChunksLatency    time.Duration
	chunksDownloaded    int
	totalChunksPresent  int
	totalChunksIterated int
	frozen              bool
}

// RecordChunkLatency registers the download latency of the chunk with the
// given index. The latency of chunk 0 is the initial chunk latency.
func (c *ChunkDetails) RecordChunkLatency(index int, d time.Duration) {
	if c == nil || c.frozen {
		return
	}
	if index == 0 {
		c.initialChunkLatency = d
	}
	if d > c.slowestChunkLatency {
		c.slowestChunkLatency = d
	}
	c.sumChunksLatency += d
	c.chunksDownloaded++
}

// AddChunkIterated registers that the application has read all rows of one chunk.
func (c *ChunkDetails) AddChunkIterated() {
	if c == nil || c.frozen {
		return
	}
	c.totalChunksIterated++
}

// SetTotalChunks sets the number of chunks that the server reported for the result.
func (c *ChunkDetails) SetTotalChunks(n int) {
	if c == nil || c.frozen {
		return
	}
	c.totalChunksPresent = n
}

func (c *ChunkDetails) Freeze() {
	if c != nil {
		c.frozen = true
	}
}

// ChunkSnapshot is a read-only copy of ChunkDetails.
type ChunkSnapshot struct {
	InitialChunkLatency time.Duration
	SlowestChunkLatency time.Duration
	SumChunksLatency    time.Duration
	ChunksDownloaded    int
	TotalChunksPresent  int
	TotalChunksIterated int
}

func (c *ChunkDetails) Snapshot() ChunkSnapshot {
	if c == nil {
		return ChunkSnapshot{}
	}
	return ChunkSnapshot{
		InitialChunkLatency: c.initialChunkLatency,
		SlowestChunkLatency: c.slowestChunkLatency,
		SumChunksLatency:    c.sumChunksLatency,
		ChunksDownloaded:    c.chunksDownloaded,
		TotalChunksPresent:  c.totalChunksPresent,
		TotalChunksIterated: c.totalChunksIterated,
	}
}
