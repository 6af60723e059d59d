package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ballbot/internal/config"
	"github.com/relabs-tech/ballbot/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// snapshot is the latest sample of everything the balance loop
// publishes, served to browsers as one JSON document.
type snapshot struct {
	Pose    *telemetry.Pose    `json:"pose,omitempty"`
	Torques *telemetry.Torques `json:"torques,omitempty"`
	Duties  *telemetry.Duties  `json:"duties,omitempty"`
	Timing  *telemetry.Timing  `json:"timing,omitempty"`
}

// RunWeb subscribes to the robot's telemetry topics and serves the
// latest state over HTTP, both as a polling JSON endpoint and as a
// WebSocket push stream.
func RunWeb() error {
	cfg := config.Get()

	var (
		mu   sync.RWMutex
		snap snapshot
	)

	// 1) Connect to MQTT broker on the Pi
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to every telemetry topic and keep the latest sample
	subscribe := func(topic string, update func([]byte) error) error {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			mu.Lock()
			defer mu.Unlock()
			if err := update(msg.Payload()); err != nil {
				log.Printf("web: %s unmarshal error: %v", topic, err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("web: subscribed to %s", topic)
		return nil
	}

	if err := subscribe(cfg.TopicPose, func(b []byte) error {
		var p telemetry.Pose
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		snap.Pose = &p
		return nil
	}); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicTorque, func(b []byte) error {
		var tq telemetry.Torques
		if err := json.Unmarshal(b, &tq); err != nil {
			return err
		}
		snap.Torques = &tq
		return nil
	}); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicDuty, func(b []byte) error {
		var d telemetry.Duties
		if err := json.Unmarshal(b, &d); err != nil {
			return err
		}
		snap.Duties = &d
		return nil
	}); err != nil {
		return err
	}
	if err := subscribe(cfg.TopicTiming, func(b []byte) error {
		var tm telemetry.Timing
		if err := json.Unmarshal(b, &tm); err != nil {
			return err
		}
		snap.Timing = &tm
		return nil
	}); err != nil {
		return err
	}

	// 3) JSON API endpoint: latest state
	http.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if snap.Pose == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 4) WebSocket push stream: latest state at a fixed rate
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			mu.RLock()
			s := snap
			mu.RUnlock()
			if s.Pose == nil {
				continue
			}
			if err := conn.WriteJSON(s); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	})

	// 5) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
