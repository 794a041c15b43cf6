package IO

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// ProgressCSV appends iteration,smooth_loss,sample rows to a CSV log.
type ProgressCSV struct {
	w      *csv.Writer
	closer io.Closer
}

// NewProgressCSV wraps w and writes the header row.
func NewProgressCSV(w io.Writer) (*ProgressCSV, error) {
	p := &ProgressCSV{w: csv.NewWriter(w)}
	if err := p.w.Write([]string{"iteration", "smooth_loss", "sample"}); err != nil {
		return nil, err
	}
	p.w.Flush()
	return p, p.w.Error()
}

// CreateProgressCSV truncates or creates the log file at path.
func CreateProgressCSV(path string) (*ProgressCSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	p, err := NewProgressCSV(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.closer = f
	return p, nil
}

func (p *ProgressCSV) Write(iter int, smoothLoss float64, sample string) error {
	rec := []string{
		strconv.Itoa(iter),
		strconv.FormatFloat(smoothLoss, 'f', 6, 64),
		sample,
	}
	if err := p.w.Write(rec); err != nil {
		return err
	}
	p.w.Flush()
	return p.w.Error()
}

func (p *ProgressCSV) Close() error {
	p.w.Flush()
	if p.closer != nil {
		return p.closer.Close()
	}
	return p.w.Error()
}
