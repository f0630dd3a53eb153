// Command flightcore runs the rocket flight-control core: sensor
// acquisition, altitude estimation, the flight FSM, actuator retain, CSV
// logging and the ground-station uplink, each as an absolute-deadline
// periodic task sharing one SharedTelemetry record.
//
// Lifecycle shape (Initialize/Start/Shutdown, signal-driven graceful stop)
// is grounded on the teacher's cmd/valkyrie/main.go.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vtneil/rocket-avionics-template/internal/actuator"
	"github.com/vtneil/rocket-avionics-template/internal/config"
	"github.com/vtneil/rocket-avionics-template/internal/estimator"
	"github.com/vtneil/rocket-avionics-template/internal/flightlog"
	"github.com/vtneil/rocket-avionics-template/internal/fsm"
	"github.com/vtneil/rocket-avionics-template/internal/isa76"
	"github.com/vtneil/rocket-avionics-template/internal/rtos"
	"github.com/vtneil/rocket-avionics-template/internal/sensors"
	"github.com/vtneil/rocket-avionics-template/internal/telemetry"
	"github.com/vtneil/rocket-avionics-template/internal/uplink"
	"github.com/vtneil/rocket-avionics-template/pkg/utils"

	"github.com/sirupsen/logrus"
)

var (
	logDir       = flag.String("log-dir", ".", "directory for the CSV flight log")
	logLevel     = flag.String("log-level", "info", "log level: debug, info, warn, error")
	uplinkAddr   = flag.String("uplink-addr", ":8420", "ground-station uplink listen address")
	uplinkSecret = flag.String("uplink-secret", "", "HMAC secret for ground-station JWT auth (required)")

	imuPort       = flag.String("imu-port", "", "serial port for the IMU; empty uses the absent-sensor variant")
	altimeterPort = flag.String("altimeter-port", "", "serial port for the altimeter; empty uses the absent-sensor variant")
	gnssPort      = flag.String("gnss-port", "", "serial port for the GNSS receiver; empty uses the absent-sensor variant")
)

// core bundles every subsystem the flight-control process wires together.
type core struct {
	cfg config.Config

	shared *telemetry.Shared
	filter *estimator.Filter
	act    *actuator.Driver
	mach   *fsm.Machine
	logger *flightlog.Logger
	up     *uplink.Server

	imu       sensors.IMU
	altimeter sensors.Altimeter
	gnss      sensors.GNSS
	cpuTemp   sensors.TemperatureSensor

	log *logrus.Logger

	mu      sync.Mutex
	running bool
	armed   atomic.Bool

	lastLogTick time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	flag.Parse()

	if *uplinkSecret == "" {
		utils.Logger.Fatal("uplink-secret is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newCore(ctx, cancel)
	if err != nil {
		utils.Logger.WithError(err).Fatal("failed to initialize flight-control core")
	}

	if err := c.Start(); err != nil {
		utils.Logger.WithError(err).Fatal("failed to start flight-control core")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	utils.Logger.Info("shutdown signal received, stopping gracefully")

	if err := c.Shutdown(); err != nil {
		utils.Logger.WithError(err).Error("shutdown error")
	}
}

func newCore(ctx context.Context, cancel context.CancelFunc) (*core, error) {
	utils.SetLogLevel(*logLevel)

	cfg := config.Default()
	cfg.LogFilePrefix = "MFC_LOGGER_"
	cfg.UplinkAddr = *uplinkAddr
	cfg.UplinkJWTSecret = []byte(*uplinkSecret)

	shared := telemetry.New(cfg.NumIMU, cfg.NumAltimeter, cfg.NumGNSS)
	filter := estimator.New(estimator.Config{
		Dt:    cfg.AltimeterPeriod.Seconds(),
		Q0:    cfg.KalmanQ0,
		R0:    0.5,
		Alpha: cfg.KalmanAlpha,
		Beta:  cfg.KalmanBeta,
		Tau:   cfg.KalmanTau,
		Eps:   cfg.KalmanEps,
	})
	act := actuator.New(nil)
	mach := fsm.New(cfg, act)

	logFile, err := flightlog.Open(*logDir, cfg.LogFilePrefix, cfg.LogFileExt)
	if err != nil {
		return nil, err
	}

	up := uplink.New(cfg.UplinkJWTSecret, utils.Logger)

	imu := sensorOrAbsent[sensors.IMU](*imuPort, func(port string) sensors.IMU {
		return sensors.NewSerialIMU(sensors.SerialConfig{Port: port, BaudRate: 115200})
	}, sensors.NoIMU{})
	altimeter := sensorOrAbsent[sensors.Altimeter](*altimeterPort, func(port string) sensors.Altimeter {
		return sensors.NewSerialAltimeter(sensors.SerialConfig{Port: port, BaudRate: 115200})
	}, sensors.NoAltimeter{})
	gnss := sensorOrAbsent[sensors.GNSS](*gnssPort, func(port string) sensors.GNSS {
		return sensors.NewSerialGNSS(sensors.SerialConfig{Port: port, BaudRate: 9600})
	}, sensors.NoGNSS{})

	return &core{
		cfg:       cfg,
		shared:    shared,
		filter:    filter,
		act:       act,
		mach:      mach,
		logger:    logFile,
		up:        up,
		imu:       imu,
		altimeter: altimeter,
		gnss:      gnss,
		cpuTemp:   sensors.ConstantTemperature(cfg.DefaultCPUTempC),
		log:       utils.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func sensorOrAbsent[T any](port string, build func(string) T, absent T) T {
	if port == "" {
		return absent
	}
	return build(port)
}

// Start begins boot (sensor Begin()), then launches every periodic task.
func (c *core) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true

	c.bootSensor("imu", c.imu, c.imu.Begin, func(s telemetry.SensorStatus) { c.shared.SetIMUHealth(0, s) })
	c.bootSensor("altimeter", c.altimeter, c.altimeter.Begin, func(s telemetry.SensorStatus) { c.shared.SetAltimeterHealth(0, s) })
	c.bootSensor("gnss", c.gnss, c.gnss.Begin, func(s telemetry.SensorStatus) { c.shared.SetGNSSHealth(0, s) })

	go rtos.IntervalLoop(c.ctx, c.cfg.IMUPeriod, c.tickIMU)
	go rtos.IntervalLoop(c.ctx, c.cfg.AltimeterPeriod, c.tickAltimeter)
	go rtos.IntervalLoop(c.ctx, c.cfg.GNSSPeriod, c.tickGNSS)
	go rtos.IntervalLoop(c.ctx, c.cfg.FSMPeriod, c.tickFSM)
	go c.act.Retain(c.ctx, c.cfg.RetainPeriod)
	go rtos.IntervalLoop(c.ctx, loggerTickPeriod, c.tickLogger)
	go rtos.IntervalLoop(c.ctx, c.cfg.FlushPeriod, c.tickFlush)
	go c.runUplinkCommands()

	mux := http.NewServeMux()
	mux.HandleFunc("/telemetry", c.up.HandleTelemetry)
	mux.HandleFunc("/command", c.up.HandleCommand)
	server := &http.Server{Addr: c.cfg.UplinkAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.WithError(err).Error("uplink http server stopped")
		}
	}()
	go func() {
		<-c.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	c.log.Info("flight-control core started")
	return nil
}

// Shutdown cancels every task's context and flushes the log.
func (c *core) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.cancel()
	return c.logger.Close()
}

func (c *core) bootSensor(name string, driver any, begin func() error, setHealth func(telemetry.SensorStatus)) {
	if absent, ok := driver.(sensors.Absent); ok && absent.IsAbsent() {
		setHealth(telemetry.SensorAbsent)
		return
	}
	if err := begin(); err != nil {
		c.log.WithError(err).Warnf("%s sensor begin() failed, marking ERR", name)
		setHealth(telemetry.SensorErr)
		return
	}
	setHealth(telemetry.SensorOK)
}

func (c *core) tickIMU(now time.Time) {
	if err := c.imu.Read(); err != nil {
		return // transient: previous sample is retained
	}
	c.shared.SetIMU(0, telemetry.IMUSample{
		AccX: c.imu.AccX(), AccY: c.imu.AccY(), AccZ: c.imu.AccZ(),
		GyrX: c.imu.GyrX(), GyrY: c.imu.GyrY(), GyrZ: c.imu.GyrZ(),
	})
}

func (c *core) tickAltimeter(now time.Time) {
	if err := c.altimeter.Read(); err != nil {
		return
	}
	pressure := c.altimeter.PressureHPa()
	altitude := isa76.AltitudeMSL(pressure, c.cfg.QNHHpa)
	c.shared.SetBaro(0, telemetry.BaroSample{PressureHPa: pressure, AltitudeM: altitude})

	c.filter.Predict()
	c.filter.Update(altitude)
	st := c.filter.State()
	c.shared.SetKalman(telemetry.KalmanState{Altitude: st.Altitude, Velocity: st.Velocity, Acceleration: st.Acceleration})
}

func (c *core) tickGNSS(now time.Time) {
	if err := c.gnss.Read(); err != nil {
		return
	}
	c.shared.SetGNSS(0, telemetry.GNSSSample{
		Epoch: c.gnss.TimestampEpoch(), SatsInView: c.gnss.SatsInView(),
		Lat: c.gnss.Latitude(), Lon: c.gnss.Longitude(), AltMSL: c.gnss.AltitudeMSL(),
	})
}

func (c *core) tickFSM(now time.Time) {
	kalman := c.shared.Kalman()
	c.mach.Evaluate(now, fsm.Input{
		AccMagnitude: c.shared.AccMagnitude(),
		Altitude:     kalman.Altitude,
		Velocity:     kalman.Velocity,
		UplinkArmed:  c.armed.Load(),
	})

	c.up.Broadcast(uplink.TelemetryFrame{
		Timestamp:    now,
		State:        c.mach.Current().String(),
		Altitude:     kalman.Altitude,
		Velocity:     kalman.Velocity,
		AccMagnitude: c.shared.AccMagnitude(),
		PressureHPa:  c.shared.Baro(0).PressureHPa,
		CPUTempC:     c.cpuTemp.CPUTempC(),
	})
}

// loggerTickPeriod is the fastest rate the cadence table can demand; the
// logger re-reads LoggerInterval(current_state) every cycle and only
// writes a row once that interval has elapsed, so a state change's new
// cadence takes effect within one period.
const loggerTickPeriod = 50 * time.Millisecond

func (c *core) tickLogger(now time.Time) {
	state := c.mach.Current()
	interval := flightlog.Interval(state)
	if !c.lastLogTick.IsZero() && now.Sub(c.lastLogTick) < interval {
		return
	}
	c.lastLogTick = now

	imu := c.shared.IMU(0)
	kalman := c.shared.Kalman()
	c.logger.Write(flightlog.Row{
		Millis:        now.UnixMilli(),
		State:         state,
		AccX:          imu.AccX,
		AccY:          imu.AccY,
		AccZ:          imu.AccZ,
		FusedVelocity: kalman.Velocity,
		FusedAltitude: kalman.Altitude,
		PressureHPa:   c.shared.Baro(0).PressureHPa,
		ServoAAngle:   c.act.Setpoint(actuator.ChannelDrogue),
		CPUTempC:      c.cpuTemp.CPUTempC(),
	})
}

func (c *core) tickFlush(now time.Time) {
	if err := c.logger.Flush(); err != nil {
		c.log.WithError(err).Warn("log flush failed")
	}
}

func (c *core) runUplinkCommands() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.up.Commands():
			switch cmd.Kind {
			case uplink.CommandArm:
				c.armed.Store(true)
			case uplink.CommandDisarm:
				c.mach.Disarm()
			}
			c.log.WithField("subject", cmd.Subject).Infof("uplink command: %s", cmd.Kind)
		}
	}
}
