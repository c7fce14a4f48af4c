package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/controller"
	"github.com/scheerer/sparkle-lights/internal/httpapi"
	"github.com/scheerer/sparkle-lights/internal/lights/lifx"
	"github.com/scheerer/sparkle-lights/internal/lights/opc"
	"github.com/scheerer/sparkle-lights/internal/lights/terminal"
	"github.com/scheerer/sparkle-lights/internal/lights/ws281x"
	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/state"
	"github.com/scheerer/sparkle-lights/internal/transport"
	"github.com/scheerer/sparkle-lights/internal/transport/mqtt"
	"github.com/scheerer/sparkle-lights/internal/transport/websocket"
	"github.com/scheerer/sparkle-lights/internal/util"
	"github.com/scheerer/sparkle-lights/internal/watchdog"
	"github.com/scheerer/sparkle-lights/lights"
)

var (
	logger = logging.New("main")
	config = SparkleConfig{}
)

type SparkleConfig struct {
	Pixels   int    `env:"PIXELS" envDefault:"50"`
	PixelBus string `env:"PIXEL_BUS" envDefault:"OPC"`

	OPCServer  string `env:"OPC_SERVER" envDefault:"localhost:7890"`
	OPCChannel int    `env:"OPC_CHANNEL" envDefault:"0"`

	LEDPin        int    `env:"LED_PIN" envDefault:"18"`
	LEDBrightness int    `env:"LED_BRIGHTNESS" envDefault:"255"`
	LEDStripType  string `env:"LED_STRIP_TYPE" envDefault:"GRB"`

	LightGroupName string        `env:"LIGHT_GROUP_NAME" envDefault:"SPARKLE"`
	ColorAlgo      string        `env:"COLOR_ALGO" envDefault:"SQUARED_AVERAGE"`
	MaxBrightness  float64       `env:"MAX_BRIGHTNESS" envDefault:"0.65"`
	MinBrightness  float64       `env:"MIN_BRIGHTNESS" envDefault:"0"`
	LifxInterval   time.Duration `env:"LIFX_INTERVAL" envDefault:"100ms"`

	Transport        string `env:"TRANSPORT" envDefault:"MQTT"`
	MQTTBroker       string `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883"`
	MQTTUser         string `env:"MQTT_USER"`
	MQTTPassword     string `env:"MQTT_PASSWORD"`
	ClientID         string `env:"CLIENT_ID"`
	CommandTopic     string `env:"COMMAND_TOPIC" envDefault:"ledcontroller/command"`
	DiagnosticsTopic string `env:"DIAGNOSTICS_TOPIC"`
	WebsocketURL     string `env:"WEBSOCKET_URL"`

	StateFile            string        `env:"STATE_FILE" envDefault:"state.json"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"15s"`
	RetryDelay           time.Duration `env:"RETRY_DELAY" envDefault:"5s"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	WatchdogPeriod       time.Duration `env:"WATCHDOG_PERIOD" envDefault:"1s"`
	InboxSize            int           `env:"INBOX_SIZE" envDefault:"8"`
	HTTPListen           string        `env:"HTTP_LISTEN"`
	BootIndicator        bool          `env:"BOOT_INDICATOR" envDefault:"true"`
}

func (c SparkleConfig) validate() error {
	if c.Pixels <= 0 {
		return errors.Errorf("PIXELS must be positive, got %d", c.Pixels)
	}
	if c.HousekeepingInterval <= 0 {
		return errors.Errorf("HOUSEKEEPING_INTERVAL must be positive, got %s", c.HousekeepingInterval)
	}
	if c.RetryDelay <= 0 {
		return errors.Errorf("RETRY_DELAY must be positive, got %s", c.RetryDelay)
	}
	if c.ConnectTimeout <= 0 {
		return errors.Errorf("CONNECT_TIMEOUT must be positive, got %s", c.ConnectTimeout)
	}
	if c.InboxSize <= 0 {
		return errors.Errorf("INBOX_SIZE must be positive, got %d", c.InboxSize)
	}
	if maxDelay := state.DelayMaxMs * time.Millisecond; c.WatchdogPeriod <= maxDelay {
		return errors.Errorf("WATCHDOG_PERIOD must exceed the longest frame delay %s, got %s", maxDelay, c.WatchdogPeriod)
	}
	if c.OPCChannel < 0 || c.OPCChannel > 255 {
		return errors.Errorf("OPC_CHANNEL must be in [0, 255], got %d", c.OPCChannel)
	}
	return nil
}

// redacted is what gets logged.
func (c SparkleConfig) redacted() SparkleConfig {
	if c.MQTTPassword != "" {
		c.MQTTPassword = "***"
	}
	return c
}

func main() {
	defer logger.Sync()

	err := env.Parse(&config)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to parse environment variables")
	}
	if err := config.validate(); err != nil {
		logger.With(zap.Error(err)).Fatal("Invalid configuration")
	}
	if config.ClientID == "" {
		config.ClientID = "LEDcontroller_" + util.RandomString(12)
	}

	logger.With(zap.Any("config", config.redacted())).Info("Starting sparkle lights")

	logger.Info("Adjust PIXEL_BUS to choose the output. Valid values are: [OPC, WS281X, LIFX, TERMINAL, NONE]")
	logger.Info("Adjust TRANSPORT to choose the command channel. Valid values are: [MQTT, WEBSOCKET]")
	logger.Infof("Publish commands to %s, e.g. denser, slower, white, cyan or {\"density\": 30}", config.CommandTopic)
	logger.Info("Set STATE_FILE to a .yaml path to store the lighting state as YAML.")
	logger.Info("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := newPixelBus(config, cancel)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to create pixel bus")
	}
	tr, err := newTransport(config)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to create transport")
	}

	ctrl := controller.New(controller.Config{
		Pixels:               config.Pixels,
		CommandTopic:         config.CommandTopic,
		DiagnosticsTopic:     config.DiagnosticsTopic,
		HousekeepingInterval: config.HousekeepingInterval,
		RetryDelay:           config.RetryDelay,
		OpTimeout:            config.ConnectTimeout,
		InboxSize:            config.InboxSize,
		BootIndicator:        config.BootIndicator,
	}, controller.Deps{
		Transport: tr,
		Bus:       bus,
		Network:   controller.InterfaceMonitor{},
		Store:     state.NewStore(config.StateFile),
		Watchdog:  watchdog.New(config.WatchdogPeriod, nil),
	})

	if config.HTTPListen != "" {
		go func() {
			if err := httpapi.Serve(ctx, config.HTTPListen, httpapi.NewRouter(ctrl)); err != nil {
				logger.With(zap.Error(err)).Warn("HTTP API stopped")
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-shutdown:
	case <-ctx.Done():
	}
	logger.Info("Shutting down")
	cancel()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.With(zap.Error(err)).Error("Controller stopped")
	}
}

func newPixelBus(config SparkleConfig, quit func()) (lights.PixelBus, error) {
	switch config.PixelBus {
	case "OPC":
		return opc.New(opc.Config{
			Server:        config.OPCServer,
			Channel:       uint8(config.OPCChannel),
			RetryInterval: config.RetryDelay,
		}), nil
	case "WS281X":
		return ws281x.New(ws281x.Config{
			Pin:        config.LEDPin,
			LedCount:   config.Pixels,
			Brightness: config.LEDBrightness,
			StripType:  config.LEDStripType,
		}), nil
	case "LIFX":
		algo, ok := util.ColorAlgoByName(config.ColorAlgo)
		if !ok {
			return nil, errors.Errorf("unknown color algorithm: %v", config.ColorAlgo)
		}
		return lifx.New(lifx.Config{
			GroupName:     config.LightGroupName,
			MinBrightness: config.MinBrightness,
			MaxBrightness: config.MaxBrightness,
			Interval:      config.LifxInterval,
			Algo:          algo,
		}), nil
	case "TERMINAL":
		return terminal.New(nil, quit), nil
	case "NONE":
		return lights.Discard, nil
	}
	return nil, errors.Errorf("unknown pixel bus: %v", config.PixelBus)
}

func newTransport(config SparkleConfig) (transport.Transport, error) {
	switch config.Transport {
	case "MQTT":
		return mqtt.New(mqtt.Config{
			Broker:         config.MQTTBroker,
			ClientID:       config.ClientID,
			Username:       config.MQTTUser,
			Password:       config.MQTTPassword,
			ConnectTimeout: config.ConnectTimeout,
		}), nil
	case "WEBSOCKET":
		if config.WebsocketURL == "" {
			return nil, errors.New("WEBSOCKET_URL is required when TRANSPORT=WEBSOCKET")
		}
		return websocket.New(websocket.Config{
			URL:              config.WebsocketURL,
			HandshakeTimeout: config.ConnectTimeout,
		}), nil
	}
	return nil, errors.Errorf("unknown transport: %v", config.Transport)
}
