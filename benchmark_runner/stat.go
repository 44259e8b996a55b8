package benchmark_runner

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// Latency histograms record microseconds in [1µs, 100s].
const (
	minLatency = time.Microsecond
	maxLatency = 100 * time.Second
)

func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Microseconds(), maxLatency.Microseconds(), 3)
}

// recordLatency clamps d into the histogram's trackable range so outliers
// still count towards the quantiles.
func recordLatency(h *hdrhistogram.Histogram, d time.Duration) {
	v := d.Microseconds()
	if lo := h.LowestTrackableValue(); v < lo {
		v = lo
	} else if hi := h.HighestTrackableValue(); v > hi {
		v = hi
	}
	_ = h.RecordValue(v)
}

// CSVHeader is written verbatim. csv.Writer would quote its leading spaces.
const CSVHeader = "Elapsed (ms), Entries, Bytes, SMA ms/read, CMA MB/s"

// MetricsRow is one window of the read phase.
type MetricsRow struct {
	ElapsedMs int64   `json:"ElapsedMs"`
	Entries   int64   `json:"Entries"`
	Bytes     int64   `json:"Bytes"`
	SMA       float64 `json:"SMA"` // mean ms per read over the window
	CMA       float64 `json:"CMA"` // MB/s since the read phase began
}

// newMetricsRow computes the row for the window that just closed. acc is the
// summed latency of the window's reads.
func newMetricsRow(elapsed time.Duration, entries, bytes int64, acc time.Duration) MetricsRow {
	ms := elapsed.Milliseconds()
	row := MetricsRow{
		ElapsedMs: ms,
		Entries:   entries,
		Bytes:     bytes,
		SMA:       float64(acc.Nanoseconds()) / Window / 1e6,
	}
	if ms > 0 {
		row.CMA = (float64(bytes) / 1048576) / (float64(ms) / 1e3)
	}
	return row
}

func (r MetricsRow) record() []string {
	return []string{
		strconv.FormatInt(r.ElapsedMs, 10),
		strconv.FormatInt(r.Entries, 10),
		strconv.FormatInt(r.Bytes, 10),
		strconv.FormatFloat(r.SMA, 'f', 3, 64),
		strconv.FormatFloat(r.CMA, 'f', 3, 64),
	}
}

// MetricsWriter streams rows as CSV, flushing after every row so partial
// results survive a failed run.
type MetricsWriter struct {
	w   io.Writer
	csv *csv.Writer
}

func NewMetricsWriter(w io.Writer) *MetricsWriter {
	return &MetricsWriter{w: w, csv: csv.NewWriter(w)}
}

func (m *MetricsWriter) WriteHeader() error {
	_, err := io.WriteString(m.w, CSVHeader+"\n")
	return err
}

func (m *MetricsWriter) Write(row MetricsRow) error {
	if err := m.csv.Write(row.record()); err != nil {
		return err
	}
	m.csv.Flush()
	return m.csv.Error()
}

// End flushes anything still buffered. The underlying writer is owned by the
// caller and stays open.
func (m *MetricsWriter) End() error {
	m.csv.Flush()
	return m.csv.Error()
}
