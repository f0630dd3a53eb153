// Package flightlog writes the CSV flight log at a cadence that depends on
// the current flight state, grounded on
// original_source/include/File_Utility.h's FsUtil.find_file_name — the
// lowest-unused-integer file naming scheme — generalized from its SD-card
// String/File calls to a plain os.File.
package flightlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vtneil/rocket-avionics-template/internal/fsm"
)

// Row is one CSV record's worth of telemetry, a fixed column schema.
type Row struct {
	Millis         int64
	State          fsm.State
	AccX, AccY, AccZ float64
	FusedVelocity  float64
	FusedAltitude  float64
	PressureHPa    float64
	ServoAAngle    int
	CPUTempC       float64
}

// Interval returns the logging period for state.
func Interval(state fsm.State) time.Duration {
	switch state {
	case fsm.Startup, fsm.IdleSafe, fsm.Landed, fsm.RecoveredSafe:
		return time.Second // 1 Hz
	case fsm.Armed, fsm.PadPreop:
		return 200 * time.Millisecond // 5 Hz
	case fsm.Powered, fsm.Coasting:
		return 50 * time.Millisecond // 20 Hz
	case fsm.DrogueDeploy, fsm.DrogueDescend, fsm.MainDeploy, fsm.MainDescend:
		return 100 * time.Millisecond // 10 Hz
	default:
		return time.Second
	}
}

// Logger serializes Rows to a monotonically-named CSV file and flushes it
// on a separate, lower-frequency cadence driven by a dedicated task.
type Logger struct {
	mu   sync.Mutex
	f    *os.File
	path string
	seq  uint64
}

// Open picks the lowest unused "<dir>/<prefix><n>.<ext>" name and creates
// it, mirroring find_file_name's do/while scan.
func Open(dir, prefix, ext string) (*Logger, error) {
	n := 1
	var path string
	for {
		path = filepath.Join(dir, fmt.Sprintf("%s%d.%s", prefix, n, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		n++
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file %s: %w", path, err)
	}
	return &Logger{f: f, path: path}, nil
}

// Path returns the opened log file's path.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Write serializes one row and appends it, assigning the next sequence
// number and LF-terminating the line.
func (l *Logger) Write(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	line := fmt.Sprintf("MFC,%d,%d,%s,%f,%f,%f,%f,%f,%f,%d,%f\n",
		l.seq, row.Millis, row.State.String(),
		row.AccX, row.AccY, row.AccZ,
		row.FusedVelocity, row.FusedAltitude, row.PressureHPa,
		row.ServoAAngle, row.CPUTempC)
	_, err := l.f.WriteString(line)
	return err
}

// Flush commits buffered writes to stable storage.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Sync()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.f.Sync()
	return l.f.Close()
}
