package benchmark_runner

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"code.cloudfoundry.org/bytefmt"
	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/errors"
)

const CurrentResultFormatVersion = "0.1"

type DataPoint struct {
	Timestamp int64              `json:"Timestamp"`
	Value     map[string]float64 `json:"Value"`
}

// TestResult is the JSON document written to --json-out-file.
type TestResult struct {
	// Test Configs
	RunID               string                 `json:"RunID"`
	Metadata            string                 `json:"Metadata"`
	ResultFormatVersion string                 `json:"ResultFormatVersion"`
	Backend             string                 `json:"Backend"`
	Configs             map[string]interface{} `json:"Configs"`
	DBSpecificConfigs   map[string]interface{} `json:"DBSpecificConfigs"`

	// Load phase
	LoadDurationMillis int64                  `json:"LoadDurationMillis"`
	Writes             int                    `json:"Writes"`
	WriteBatches       int                    `json:"WriteBatches"`
	WriteBytes         uint64                 `json:"WriteBytes"`
	BatchQuantiles     map[string]float64     `json:"BatchQuantiles"`
	DiskUsage          uint64                 `json:"DiskUsage"`
	DiskUsageHuman     string                 `json:"DiskUsageHumanReadable"`
	OverallRates       map[string]interface{} `json:"OverallRates"`

	// Read phase
	StartTime        int64              `json:"StartTime"`
	EndTime          int64              `json:"EndTime"`
	DurationMillis   int64              `json:"DurationMillis"`
	Reads            int64              `json:"Reads"`
	ReadBytes        int64              `json:"ReadBytes"`
	OverallQuantiles map[string]float64 `json:"OverallQuantiles"`
	TimeSeries       []DataPoint        `json:"TimeSeries"`
}

func newTestResult(runID, backend string, cfg Config, load LoadResult, diskUsage uint64, read ReadResult) TestResult {
	took := read.End.Sub(read.Start)
	r := TestResult{
		RunID:               runID,
		Metadata:            cfg.Metadata,
		ResultFormatVersion: CurrentResultFormatVersion,
		Backend:             backend,
		Configs:             cfg.ConfigurationMap(),
		LoadDurationMillis:  load.Took.Milliseconds(),
		Writes:              load.Writes,
		WriteBatches:        load.Batches,
		WriteBytes:          load.Bytes,
		DiskUsage:           diskUsage,
		DiskUsageHuman:      bytefmt.ByteSize(diskUsage),
		StartTime:           read.Start.UnixMilli(),
		EndTime:             read.End.UnixMilli(),
		DurationMillis:      took.Milliseconds(),
		Reads:               read.Reads,
		ReadBytes:           read.Bytes,
	}
	if load.Histogram != nil {
		_, r.BatchQuantiles = generateQuantileMap(load.Histogram)
	}
	if read.Histogram != nil {
		_, r.OverallQuantiles = generateQuantileMap(read.Histogram)
	}

	readRate := calculateRateMetrics(read.Reads, 0, took)
	byteRate := calculateRateMetrics(read.Bytes, 0, took)
	r.OverallRates = map[string]interface{}{
		"readRate":           wrapNaN(readRate),
		"readByteRate":       wrapNaN(byteRate),
		"readByteRateStr":    bytefmt.ByteSize(uint64(math.Max(0, wrapNaN(byteRate)))),
		"writeRate":          wrapNaN(calculateRateMetrics(int64(load.Writes), 0, load.Took)),
		"writeBatchesPerSec": wrapNaN(calculateRateMetrics(int64(load.Batches), 0, load.Took)),
	}

	r.TimeSeries = make([]DataPoint, 0, len(read.Rows))
	for _, row := range read.Rows {
		r.TimeSeries = append(r.TimeSeries, DataPoint{
			Timestamp: read.Start.Add(time.Duration(row.ElapsedMs) * time.Millisecond).UnixMilli(),
			Value: map[string]float64{
				"entries": float64(row.Entries),
				"bytes":   float64(row.Bytes),
				"sma":     row.SMA,
				"cma":     row.CMA,
			},
		})
	}
	return r
}

func (r TestResult) writeFile(path string) error {
	file, err := json.MarshalIndent(r, "", " ")
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	if err := os.WriteFile(path, file, 0644); err != nil {
		return errors.Wrapf(err, "writing result to %s", path)
	}
	return nil
}

// generateQuantileMap reports latency quantiles in milliseconds from a
// histogram recorded in microseconds.
func generateQuantileMap(hist *hdrhistogram.Histogram) (int64, map[string]float64) {
	ops := hist.TotalCount()
	q0 := 0.0
	q50 := 0.0
	q95 := 0.0
	q99 := 0.0
	q999 := 0.0
	q100 := 0.0
	if ops > 0 {
		q0 = float64(hist.ValueAtQuantile(0.0)) / 10e2
		q50 = float64(hist.ValueAtQuantile(50.0)) / 10e2
		q95 = float64(hist.ValueAtQuantile(95.0)) / 10e2
		q99 = float64(hist.ValueAtQuantile(99.0)) / 10e2
		q999 = float64(hist.ValueAtQuantile(99.90)) / 10e2
		q100 = float64(hist.ValueAtQuantile(100.0)) / 10e2
	}

	mp := map[string]float64{"q0": q0, "q50": q50, "q95": q95, "q99": q99, "q999": q999, "q100": q100}
	return ops, mp
}

func calculateRateMetrics(current, prev int64, took time.Duration) (rate float64) {
	rate = float64(current-prev) / float64(took.Seconds())
	return
}
