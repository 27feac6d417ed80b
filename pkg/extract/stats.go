package extract

import (
	"sync/atomic"

	"github.com/ajitpratap0/conduit/internal/pipeline"
	"github.com/ajitpratap0/conduit/pkg/decode"
	"github.com/ajitpratap0/conduit/pkg/metrics"
)

type runStats struct {
	records int64
	chunks  int64
}

type countingRecords struct {
	src    decode.RecordReader
	stats  *runStats
	format decode.Format
}

func (c *countingRecords) Next() (decode.Record, error) {
	rec, err := c.src.Next()
	if err == nil {
		atomic.AddInt64(&c.stats.records, 1)
		metrics.RecordsExtracted.WithLabelValues(string(c.format)).Inc()
	}
	return rec, err
}

type countingChunks struct {
	src   pipeline.ChunkReader
	stats *runStats
}

func (c *countingChunks) Next() (pipeline.Chunk, error) {
	chunk, err := c.src.Next()
	if err == nil {
		atomic.AddInt64(&c.stats.chunks, 1)
	}
	return chunk, err
}
