package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/command"
	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/transport/mqtt"
	"github.com/scheerer/sparkle-lights/internal/util"
)

var logger = logging.New("sparklectl")

// sparklectl publishes one command to the controller's command topic:
//
//	sparklectl denser
//	sparklectl '{"density": 30, "mode": "monochrome:cyan"}'
//	sparklectl delay_ms=20 boost_multiplier=2
func main() {
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sparklectl <command | json | key=value ...>")
		fmt.Fprintf(os.Stderr, "commands: %s\n", strings.Join(command.Tokens(), ", "))
		os.Exit(2)
	}
	payload := strings.Join(os.Args[1:], " ")

	broker := util.Getenv("MQTT_BROKER", "tcp://localhost:1883")
	topic := util.Getenv("COMMAND_TOPIC", "ledcontroller/command")
	timeout := util.Getenv("CONNECT_TIMEOUT", 5*time.Second)

	// Catch typos before they reach the strip, where they would only be logged.
	if _, err := command.Parse([]byte(payload)); err != nil {
		logger.With(zap.Error(err), zap.String("payload", payload)).Fatal("Not a valid command")
	}

	client := mqtt.New(mqtt.Config{
		Broker:         broker,
		ClientID:       "sparklectl_" + util.RandomString(8),
		Username:       util.Getenv("MQTT_USER", ""),
		Password:       util.Getenv("MQTT_PASSWORD", ""),
		ConnectTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		logger.With(zap.Error(err), zap.String("broker", broker)).Fatal("Failed to connect")
	}
	defer client.Close()

	if err := client.Publish(ctx, topic, []byte(payload)); err != nil {
		logger.With(zap.Error(err), zap.String("topic", topic)).Fatal("Failed to publish")
	}
	logger.With(zap.String("topic", topic), zap.String("payload", payload)).Info("Published")
}
