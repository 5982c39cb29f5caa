package stats

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ImageRecord is the outcome of one image in a run.
type ImageRecord struct {
	Name       string
	InputPath  string
	OutputPath string
	Width      int
	Height     int
	Duration   time.Duration
	Err        error
}

// Report holds timing and metadata for one run
type Report struct {
	Algorithm  string
	Mode       string
	KernelSize int
	Timestamp  time.Time
	TotalTime  time.Duration
	Images     []ImageRecord

	// Pipeline-specific data
	TransformConcurrency *int
	BufferCapacity       *int
}

// Succeeded returns the number of images that were written.
func (r *Report) Succeeded() int {
	n := 0
	for _, img := range r.Images {
		if img.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the records of images that were not written.
func (r *Report) Failed() []ImageRecord {
	var failed []ImageRecord
	for _, img := range r.Images {
		if img.Err != nil {
			failed = append(failed, img)
		}
	}
	return failed
}

// Err joins the per-image errors, or returns nil if every image succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, img := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", img.Name, img.Err))
	}
	return errors.Join(errs...)
}

// AverageTime is the mean per-image duration of successful images.
func (r *Report) AverageTime() time.Duration {
	var sum time.Duration
	n := 0
	for _, img := range r.Images {
		if img.Err == nil {
			sum += img.Duration
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// WriteTo writes r in the results file layout.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	fmt.Fprintf(cw, "=== %s Results ===\n", r.Algorithm)
	if r.Mode != "" {
		fmt.Fprintf(cw, "Mode: %s\n", r.Mode)
	}
	fmt.Fprintf(cw, "Images processed: %d\n", r.Succeeded())
	if failed := len(r.Images) - r.Succeeded(); failed > 0 {
		fmt.Fprintf(cw, "Images failed: %d\n", failed)
	}
	fmt.Fprintf(cw, "Kernel size: %d\n", r.KernelSize)
	fmt.Fprintf(cw, "Total execution time: %.2fs\n", r.TotalTime.Seconds())
	fmt.Fprintf(cw, "Average time per image: %.2fs\n", r.AverageTime().Seconds())

	if r.TransformConcurrency != nil {
		fmt.Fprintf(cw, "Transform concurrency: %d\n", *r.TransformConcurrency)
	}
	if r.BufferCapacity != nil {
		fmt.Fprintf(cw, "Buffer capacity: %d\n", *r.BufferCapacity)
	}

	fmt.Fprintf(cw, "\nImages:\n")
	for i, img := range r.Images {
		if img.Err != nil {
			fmt.Fprintf(cw, "  %d. %s FAILED: %v\n", i+1, img.InputPath, img.Err)
			continue
		}
		fmt.Fprintf(cw, "  %d. %s -> %s (%dx%d, %.3fs)\n",
			i+1, img.InputPath, img.OutputPath, img.Width, img.Height, img.Duration.Seconds())
	}
	fmt.Fprintf(cw, "\n")
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Recorder collects image records from concurrent stages.
type Recorder struct {
	mu     sync.Mutex
	report Report
	start  time.Time
}

// NewRecorder starts timing a run.
func NewRecorder(algorithm, mode string, kernelSize int) *Recorder {
	now := time.Now()
	return &Recorder{
		report: Report{
			Algorithm:  algorithm,
			Mode:       mode,
			KernelSize: kernelSize,
			Timestamp:  now,
		},
		start: now,
	}
}

// SetPipeline records the pipeline sizing in the report.
func (r *Recorder) SetPipeline(transformConcurrency, bufferCapacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.TransformConcurrency = &transformConcurrency
	r.report.BufferCapacity = &bufferCapacity
}

// Record appends one image outcome.
func (r *Recorder) Record(rec ImageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Images = append(r.report.Images, rec)
}

// Finish stops the clock and returns a copy of the report.
func (r *Recorder) Finish() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.report
	rep.TotalTime = time.Since(r.start)
	rep.Images = append([]ImageRecord(nil), r.report.Images...)
	return rep
}

// WriteResults writes reports to dir/<prefix><timestamp>.txt and returns the file path.
func WriteResults(dir, prefix string, reports ...Report) (string, error) {
	if len(reports) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	// Use timestamp from first result
	timestamp := reports[0].Timestamp.Format("2006-01-02_15-04-05")
	path := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, timestamp))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "=== Convolution Results ===\n")
	fmt.Fprintf(file, "Timestamp: %s\n\n", reports[0].Timestamp.Format("2006-01-02 15:04:05"))

	for i := range reports {
		if _, err := reports[i].WriteTo(file); err != nil {
			return "", fmt.Errorf("failed to write results file: %w", err)
		}
	}
	return path, file.Close()
}
