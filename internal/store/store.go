// Package store handles everything the dashboard keeps on disk or in Redis:
// the per-sensor settings key/value store and the optional CSV log of the
// readings seen while polling. Data lives in ~/.sensordash/ by default.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/luki/sensordash/internal/telemetry"
)

const (
	dirName    = ".sensordash"
	timeLayout = "2006-01-02T15:04:05"
	fileLayout = "2006-01-02"
)

// ErrInvalidDay is returned for a day that is not formatted YYYY-MM-DD.
var ErrInvalidDay = errors.New("invalid day")

// DataDir returns the default data directory.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

// Recorder appends observed live readings to daily CSV files
// <dir>/YYYY-MM-DD.csv with the format:
//
//	time,sensor,raw,display
type Recorder struct {
	dir     string
	current *os.File
	writer  *csv.Writer
	curDate string
	lastTS  map[string]int64
}

// StoredReading is a single row from a recorder CSV file.
type StoredReading struct {
	Time    time.Time `json:"time"`
	Sensor  string    `json:"sensor"`
	Raw     float64   `json:"raw"`
	Display float64   `json:"display"`
}

// NewRecorder creates a recorder writing into dir, creating it if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		dir = DataDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &Recorder{dir: dir, lastTS: make(map[string]int64)}, nil
}

// Dir returns the directory the recorder writes to.
func (d *Recorder) Dir() string {
	return d.dir
}

// Record appends one reading unless the same sensor reading (same hub
// timestamp) was already written; the hub repeats the latest value on every
// poll until a new one arrives.
func (d *Recorder) Record(sensorID string, p telemetry.ReadingPoint, display float64) error {
	if last, ok := d.lastTS[sensorID]; ok && last == p.Timestamp {
		return nil
	}
	t := p.Time()
	dateStr := t.Format(fileLayout)

	if d.curDate != dateStr || d.current == nil {
		d.Close()
		path := filepath.Join(d.dir, dateStr+".csv")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		d.current = f
		d.writer = csv.NewWriter(f)
		d.curDate = dateStr

		if info, err := f.Stat(); err == nil && info.Size() == 0 {
			d.writer.Write([]string{"time", "sensor", "raw", "display"})
		}
	}

	d.writer.Write([]string{
		t.Format(timeLayout),
		sensorID,
		strconv.FormatFloat(p.RawValue, 'f', -1, 64),
		strconv.FormatFloat(display, 'f', -1, 64),
	})
	d.writer.Flush()
	if err := d.writer.Error(); err != nil {
		return err
	}
	d.lastTS[sensorID] = p.Timestamp
	return nil
}

// Close flushes and closes the current file.
func (d *Recorder) Close() {
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.current != nil {
		d.current.Close()
		d.current = nil
	}
}

// ListDays returns the days with a recorder file (newest first). Other CSV
// files in dir are skipped.
func ListDays(dir string) ([]string, error) {
	if dir == "" {
		dir = DataDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for i := len(entries) - 1; i >= 0; i-- {
		day, ok := strings.CutSuffix(entries[i].Name(), ".csv")
		if !ok {
			continue
		}
		if _, err := time.Parse(fileLayout, day); err == nil {
			days = append(days, day)
		}
	}
	return days, nil
}

// LoadDay reads the recorder file of one day (YYYY-MM-DD) in dir.
func LoadDay(dir, day string) ([]StoredReading, error) {
	if _, err := time.Parse(fileLayout, day); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	if dir == "" {
		dir = DataDir()
	}
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadFile reads all readings from a recorder CSV file.
func LoadFile(path string) ([]StoredReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	var readings []StoredReading
	for i, row := range records {
		if i == 0 && len(row) > 0 && row[0] == "time" {
			continue
		}
		if len(row) < 4 {
			continue
		}

		t, err := time.ParseInLocation(timeLayout, row[0], time.Local)
		if err != nil {
			continue
		}
		raw, _ := strconv.ParseFloat(row[2], 64)
		display, _ := strconv.ParseFloat(row[3], 64)

		readings = append(readings, StoredReading{
			Time:    t,
			Sensor:  row[1],
			Raw:     raw,
			Display: display,
		})
	}

	return readings, nil
}
