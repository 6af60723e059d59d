package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ballbot/internal/config"
	"github.com/relabs-tech/ballbot/internal/telemetry"
)

// RunConsoleMQTT prints the robot's telemetry stream to the terminal.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to pose
	poseToken := client.Subscribe(cfg.TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p telemetry.Pose
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: pose unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[POSE]  ROLL=%7.4f  PITCH=%7.4f  dPHI=(%6.3f %6.3f %6.3f)\n",
			p.Roll, p.Pitch, p.BodyRates[0], p.BodyRates[1], p.BodyRates[2],
		)
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPose)

	// Subscribe to torque demands
	torqueToken := client.Subscribe(cfg.TopicTorque, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var tq telemetry.Torques
		if err := json.Unmarshal(msg.Payload(), &tq); err != nil {
			log.Printf("console: torque unmarshal error: %v", err)
			return
		}

		gate := " "
		if tq.Gated {
			gate = "G"
		}
		fmt.Printf(
			"[TORQ]%s Tx=%7.4f  Ty=%7.4f  Tz=%7.4f\n",
			gate, tq.Tx, tq.Ty, tq.Tz,
		)
	})
	torqueToken.Wait()
	if torqueToken.Error() != nil {
		return torqueToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTorque)

	// Subscribe to motor duties
	dutyToken := client.Subscribe(cfg.TopicDuty, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var d telemetry.Duties
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Printf("console: duty unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[DUTY]  d1=%7.4f  d2=%7.4f  d3=%7.4f  kill=%v\n",
			d.Duty[0], d.Duty[1], d.Duty[2], d.Kill,
		)
	})
	dutyToken.Wait()
	if dutyToken.Error() != nil {
		return dutyToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicDuty)

	// Subscribe to the end-of-run timing report
	timingToken := client.Subscribe(cfg.TopicTiming, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var tm telemetry.Timing
		if err := json.Unmarshal(msg.Payload(), &tm); err != nil {
			log.Printf("console: timing unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[TIME]  cycles=%d  avg=%.3fms  stddev=%.3fms  sleep=%.1f%%\n",
			tm.Cycles, tm.MeanErrMS, tm.StdDevErrMS, tm.SleepPercent,
		)
	})
	timingToken.Wait()
	if timingToken.Error() != nil {
		return timingToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTiming)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
