package main

import (
	"encoding/json"
	"log"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ballbot/internal/config"
	"github.com/relabs-tech/ballbot/internal/telemetry"
)

// Publishes synthetic wobble telemetry so the web and console viewers
// can be developed without the robot.
func main() {
	log.Println("starting ballbot MQTT producer (mock)")

	if err := config.InitGlobal("ballbot_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID("ballbot-producer-mock")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	publish := func(topic string, v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			log.Printf("json marshal error: %v", err)
			return
		}
		token := client.Publish(topic, 0, true, payload)
		token.Wait()
	}

	start := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		elapsed := time.Since(start).Seconds()

		// A gentle wobble inside the tilt limit.
		roll := 0.5 * cfg.MaxTiltRad() * math.Sin(elapsed)
		pitch := 0.4 * cfg.MaxTiltRad() * math.Cos(elapsed*0.7)

		pose := telemetry.Pose{Roll: roll, Pitch: pitch}
		torques := telemetry.Torques{
			Tx: -cfg.ThetaKP * roll,
			Ty: -cfg.ThetaKP * pitch,
		}
		duties := telemetry.Duties{Duty: [3]float64{
			0.1 * math.Sin(elapsed),
			0.1 * math.Sin(elapsed+2*math.Pi/3),
			0.1 * math.Sin(elapsed+4*math.Pi/3),
		}}

		publish(cfg.TopicPose, pose)
		publish(cfg.TopicTorque, torques)
		publish(cfg.TopicDuty, duties)

		log.Printf("%s published pose: roll=%.4f pitch=%.4f", t.Format(time.RFC3339), roll, pitch)
	}
}
