package benchmark_runner

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

func TestNewMetricsRow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		entries int64
		bytes   int64
		acc     time.Duration
		want    []string
	}{
		{"one MB per second", 2 * time.Second, 2000, 2 * 1048576, time.Second, []string{"2000", "2000", "2097152", "1.000", "1.000"}},
		{"sub millisecond elapsed", 500 * time.Microsecond, 1000, 1048576, 2 * time.Millisecond, []string{"0", "1000", "1048576", "0.002", "0.000"}},
		{"fractional", 1500 * time.Millisecond, 3000, 1048576, 250 * time.Millisecond, []string{"1500", "3000", "1048576", "0.250", "0.667"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newMetricsRow(tt.elapsed, tt.entries, tt.bytes, tt.acc).record()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("record() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetricsWriter(t *testing.T) {
	var b bytes.Buffer
	w := NewMetricsWriter(&b)
	if err := w.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(newMetricsRow(time.Second, 1000, 1048576, time.Second)); err != nil {
		t.Fatal(err)
	}
	// Rows are visible before End.
	want := CSVHeader + "\n1000,1000,1048576,1.000,1.000\n"
	if b.String() != want {
		t.Errorf("output = %q, want %q", b.String(), want)
	}
	if err := w.End(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordLatencyClamps(t *testing.T) {
	h := newLatencyHistogram()
	recordLatency(h, 0)
	recordLatency(h, 200*time.Second)
	recordLatency(h, time.Millisecond)

	if got := h.TotalCount(); got != 3 {
		t.Fatalf("TotalCount() = %d, want 3", got)
	}
	if got, want := h.Max(), maxLatency.Microseconds(); got < want || got > want+want/1000 {
		t.Errorf("Max() = %d, want about %d", got, maxLatency.Microseconds())
	}
	if got := h.Min(); got != minLatency.Microseconds() {
		t.Errorf("Min() = %d, want %d", got, minLatency.Microseconds())
	}
}
