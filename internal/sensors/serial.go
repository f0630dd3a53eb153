// Serial-backed sensor drivers: one go.bug.st/serial port per sensor,
// framed as newline-terminated CSV lines. This is the "real hardware"
// collaborator behind the IMU/Altimeter/GNSS interfaces, grounded on the
// teacher's internal/actuators/mavlink_protocol.go, which opens and frames
// messages over the same library.
package sensors

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialConfig describes how to open one sensor's serial link.
type SerialConfig struct {
	Port     string
	BaudRate int
}

func openPort(cfg SerialConfig) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return port, nil
}

// SerialIMU reads "ax,ay,az,gx,gy,gz\n" lines (m/s^2, rad/s).
type SerialIMU struct {
	cfg SerialConfig

	mu                sync.Mutex
	port              serial.Port
	scanner           *bufio.Scanner
	ax, ay, az        float64
	gx, gy, gz        float64
}

// NewSerialIMU constructs a driver bound to the given port, not yet opened.
func NewSerialIMU(cfg SerialConfig) *SerialIMU {
	return &SerialIMU{cfg: cfg}
}

func (d *SerialIMU) Begin() error {
	port, err := openPort(d.cfg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.port = port
	d.scanner = bufio.NewScanner(port)
	d.mu.Unlock()
	return nil
}

func (d *SerialIMU) Read() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil || !d.scanner.Scan() {
		return fmt.Errorf("imu serial read failed")
	}
	fields, err := splitFloats(d.scanner.Text(), 6)
	if err != nil {
		return err
	}
	d.ax, d.ay, d.az = fields[0], fields[1], fields[2]
	d.gx, d.gy, d.gz = fields[3], fields[4], fields[5]
	return nil
}

func (d *SerialIMU) AccX() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.ax }
func (d *SerialIMU) AccY() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.ay }
func (d *SerialIMU) AccZ() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.az }
func (d *SerialIMU) GyrX() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.gx }
func (d *SerialIMU) GyrY() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.gy }
func (d *SerialIMU) GyrZ() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.gz }

// SerialAltimeter reads "pressure_hpa\n" lines.
type SerialAltimeter struct {
	cfg SerialConfig

	mu      sync.Mutex
	port    serial.Port
	scanner *bufio.Scanner
	pHPa    float64
}

func NewSerialAltimeter(cfg SerialConfig) *SerialAltimeter {
	return &SerialAltimeter{cfg: cfg}
}

func (d *SerialAltimeter) Begin() error {
	port, err := openPort(d.cfg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.port = port
	d.scanner = bufio.NewScanner(port)
	d.mu.Unlock()
	return nil
}

func (d *SerialAltimeter) Read() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil || !d.scanner.Scan() {
		return fmt.Errorf("altimeter serial read failed")
	}
	fields, err := splitFloats(d.scanner.Text(), 1)
	if err != nil {
		return err
	}
	d.pHPa = fields[0]
	return nil
}

func (d *SerialAltimeter) PressureHPa() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pHPa
}

// SerialGNSS reads "epoch,sats,lat,lon,alt_msl\n" lines.
type SerialGNSS struct {
	cfg SerialConfig

	mu                    sync.Mutex
	port                  serial.Port
	scanner               *bufio.Scanner
	epoch                 uint32
	sats                  uint8
	lat, lon, altMSL      float64
}

func NewSerialGNSS(cfg SerialConfig) *SerialGNSS {
	return &SerialGNSS{cfg: cfg}
}

func (d *SerialGNSS) Begin() error {
	port, err := openPort(d.cfg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.port = port
	d.scanner = bufio.NewScanner(port)
	d.mu.Unlock()
	return nil
}

func (d *SerialGNSS) Read() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil || !d.scanner.Scan() {
		return fmt.Errorf("gnss serial read failed")
	}
	parts := strings.Split(strings.TrimSpace(d.scanner.Text()), ",")
	if len(parts) != 5 {
		return fmt.Errorf("gnss serial line has %d fields, want 5", len(parts))
	}
	epoch, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return fmt.Errorf("gnss epoch: %w", err)
	}
	sats, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return fmt.Errorf("gnss sats: %w", err)
	}
	rest, err := splitFloats(strings.Join(parts[2:], ","), 3)
	if err != nil {
		return err
	}
	d.epoch = uint32(epoch)
	d.sats = uint8(sats)
	d.lat, d.lon, d.altMSL = rest[0], rest[1], rest[2]
	return nil
}

func (d *SerialGNSS) TimestampEpoch() uint32 { d.mu.Lock(); defer d.mu.Unlock(); return d.epoch }
func (d *SerialGNSS) SatsInView() uint8      { d.mu.Lock(); defer d.mu.Unlock(); return d.sats }
func (d *SerialGNSS) Latitude() float64      { d.mu.Lock(); defer d.mu.Unlock(); return d.lat }
func (d *SerialGNSS) Longitude() float64     { d.mu.Lock(); defer d.mu.Unlock(); return d.lon }
func (d *SerialGNSS) AltitudeMSL() float64   { d.mu.Lock(); defer d.mu.Unlock(); return d.altMSL }

func splitFloats(line string, n int) ([]float64, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != n {
		return nil, fmt.Errorf("serial line has %d fields, want %d", len(parts), n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
