package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/ballbot/internal/config"
	"github.com/relabs-tech/ballbot/internal/control"
	"github.com/relabs-tech/ballbot/internal/drive"
	"github.com/relabs-tech/ballbot/internal/kinematics"
	"github.com/relabs-tech/ballbot/internal/ledring"
	"github.com/relabs-tech/ballbot/internal/realtime"
	"github.com/relabs-tech/ballbot/internal/telemetry"
	"github.com/relabs-tech/ballbot/internal/yaw"
)

// driveBus is what the balance loop needs from the motor-controller
// link.
type driveBus interface {
	LatestState() (drive.SensorState, bool)
	SendCommand(drive.Command) error
}

// yawSource supplies the operator's yaw torque, readable every tick
// without blocking.
type yawSource interface {
	Torque() float64
}

// balanceApp owns everything that happens inside one control session.
// All of its mutable state is touched only by the scheduler's tick
// goroutine.
type balanceApp struct {
	cfg  *config.Config
	loop *realtime.Loop
	bus  driveBus
	yaw  yawSource
	ring *ledring.Ring        // nil when the ring is disabled
	pub  *telemetry.Publisher // nil when the broker is unreachable
	jac  kinematics.Mat3
	bal  *control.Balancer

	prevDphi kinematics.Vec3
	havePrev bool
	ticks    int
	waiting  bool
}

func newBalanceApp(cfg *config.Config, loop *realtime.Loop, bus driveBus, yawIn yawSource, ring *ledring.Ring, pub *telemetry.Publisher) (*balanceApp, error) {
	policy, err := control.ParseHoldPolicy(cfg.SafetyHoldPolicy)
	if err != nil {
		return nil, err
	}

	return &balanceApp{
		cfg:  cfg,
		loop: loop,
		bus:  bus,
		yaw:  yawIn,
		ring: ring,
		pub:  pub,
		jac:  kinematics.Jacobian(cfg.WheelRadiusM, cfg.BallRadiusM, cfg.AlphaRad()),
		bal: control.NewBalancer(control.BalancerOpts{
			Gains:           control.Gains{Kp: cfg.ThetaKP, Ki: cfg.ThetaKI, Kd: cfg.ThetaKD},
			DT:              cfg.Period().Seconds(),
			MaxDuty:         cfg.MaxDuty,
			MaxTilt:         cfg.MaxTiltRad(),
			MaxBallVelocity: cfg.MaxBallVelocity,
			Policy:          policy,
			GateRoll:        cfg.SafetyGateRoll,
		}),
	}, nil
}

// tick runs the full pipeline once: sensor snapshot, kinematic
// transform, balance step, yaw torque, command mix, command write.
// Faults stay inside the tick; only a failed command write propagates.
func (a *balanceApp) tick() error {
	st, ok := a.bus.LatestState()
	if !ok {
		// Board still calibrating: no command, no state mutation.
		if !a.waiting {
			a.waiting = true
			log.Println("balance: waiting for first state frame (board calibrating)")
			if a.ring != nil {
				if err := a.ring.Calibrating(); err != nil {
					log.Printf("balance: led ring: %v", err)
				}
			}
		}
		return nil
	}
	if a.waiting {
		a.waiting = false
		log.Println("balance: board ready, control active")
	}

	dt := a.cfg.Period().Seconds()

	dpsi := kinematics.Vec3{st.DPsi[0], st.DPsi[1], st.DPsi[2]}
	dphi := kinematics.BodyRates(a.jac, dpsi)
	var ddphi kinematics.Vec3
	if a.havePrev {
		ddphi = kinematics.Accel(dphi, a.prevDphi, dt)
	}

	tx, ty, gated := a.bal.Step(st.Roll, st.Pitch, dphi)
	tz := a.yaw.Torque()

	// Stop requests ramp control authority down instead of cutting it.
	fade := a.loop.Fade()
	duty := control.Mix(tx*fade, ty*fade, tz*fade, a.cfg.MaxDuty)

	if err := a.bus.SendCommand(drive.Command{Duty: duty}); err != nil {
		return fmt.Errorf("balance: command write: %w", err)
	}

	a.prevDphi = dphi
	a.havePrev = true
	a.ticks++

	if a.ticks%a.cfg.TelemetryDecimation == 0 {
		a.report(st, dphi, ddphi, tx, ty, tz, gated, duty)
	}
	return nil
}

func (a *balanceApp) report(st drive.SensorState, dphi, ddphi kinematics.Vec3, tx, ty, tz float64, gated bool, duty [3]float64) {
	if a.pub != nil {
		a.pub.Publish(a.cfg.TopicPose, telemetry.Pose{
			Roll:      st.Roll,
			Pitch:     st.Pitch,
			BodyRates: dphi,
			BodyAccel: ddphi,
		})
		a.pub.Publish(a.cfg.TopicTorque, telemetry.Torques{Tx: tx, Ty: ty, Tz: tz, Gated: gated})
		a.pub.Publish(a.cfg.TopicDuty, telemetry.Duties{Duty: duty})
	}
	if a.ring != nil {
		if err := a.ring.ShowTilt(st.Roll, st.Pitch); err != nil {
			log.Printf("balance: led ring: %v", err)
		}
	}
}

// run drives the loop to completion and enforces the shutdown contract:
// whatever the exit path, the last frame on the wire zeroes all duties
// and sets the kill flag.
func (a *balanceApp) run() error {
	runErr := a.loop.Run(a.tick)

	log.Println("balance: resetting motor commands")
	if err := a.bus.SendCommand(drive.Command{Kill: true}); err != nil {
		log.Printf("balance: kill command failed: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	stats := a.loop.Stats()
	log.Printf("balance: %v", stats)
	if a.pub != nil {
		a.pub.Publish(a.cfg.TopicTiming, telemetry.Timing{
			Cycles:       stats.Cycles,
			MeanErrMS:    float64(stats.MeanErr.Nanoseconds()) / 1e6,
			StdDevErrMS:  float64(stats.StdDevErr.Nanoseconds()) / 1e6,
			SleepPercent: 100 * stats.SleepFraction,
		})
	}
	return runErr
}

// RunBalance wires up the hardware and runs the balance loop until a
// termination signal or a fatal error.
func RunBalance() error {
	cfg := config.Get()

	bus, err := drive.Open(cfg.SerialPort, cfg.SerialBaud)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	yawIn := yaw.NewInput(cfg.MaxYawTorque, cfg.RotationTime())
	go func() {
		if err := yawIn.Listen(ctx, cfg.JoystickDevice); err != nil {
			log.Printf("balance: yaw input unavailable: %v", err)
		}
	}()

	var ring *ledring.Ring
	if cfg.LEDEnabled {
		ring, err = ledring.Open(ledring.Opts{
			SPIDevice: cfg.LEDSPIDevice,
			NumDots:   cfg.LEDCount,
			Intensity: uint8(cfg.LEDIntensity),
			MaxTilt:   cfg.MaxTiltRad(),
		})
		if err != nil {
			log.Printf("balance: led ring disabled: %v", err)
			ring = nil
		} else {
			defer ring.Close()
		}
	}

	// The robot balances fine without a broker; telemetry is best
	// effort.
	pub, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDBalance)
	if err != nil {
		log.Printf("balance: telemetry disabled: %v", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	loop := realtime.New(cfg.Period(), cfg.FadeTime())

	// All termination signals map to the same graceful-stop request.
	// The handler only pokes an atomic flag inside the loop.
	sigCh := make(chan os.Signal, 3)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			loop.RequestStop()
		}
	}()

	app, err := newBalanceApp(cfg, loop, bus, yawIn, ring, pub)
	if err != nil {
		return err
	}

	log.Printf("balance: control loop starting at %d Hz", cfg.ControlFreqHz)
	return app.run()
}
