// Package app wires the channel supervisor, its edge-event transports and
// shared-memory/MQTT publication sinks to a diagnostic HTTP status
// surface, the way the teacher's pkg/app wires its data logger, gpio and
// mqtt handlers to its webserver.
package app

import (
	"context"
	"fmt"
	"net/url"

	"radioclkd/pkg/app/config"
	"radioclkd/pkg/gpioedge"
	"radioclkd/pkg/gpiopower"
	"radioclkd/pkg/mqttpublish"
	"radioclkd/pkg/pulse"
	"radioclkd/pkg/serialport"
	"radioclkd/pkg/supervisor"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct and where the application is wired up.
type App struct {
	// web is the fiber web framework instance.
	web *fiber.App

	// config contains the application configuration.
	config *config.Config

	// urlParsed contains the parsed Config.Webserver.URL parameter and
	// makes it easier to get params out of e.g.
	//  url: http://0.0.0.0:4050/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// supervisor owns the three decode channels.
	supervisor *supervisor.Supervisor

	// port is the serial device backing any channel using the serial
	// transport; nil if every configured channel uses gpio.
	port serialport.Port

	// gpioChips holds one opened chip per distinct chip name named by a
	// gpio-transport channel, keyed by chip name.
	gpioChips map[string]*gpioedge.Chip
	gpioLines []*gpioedge.Line

	// power holds the opened gpiopower supply, if any channel enables it.
	power     *gpiopower.Supply
	powerPins []*gpiopower.Pin

	// telemetry is the optional MQTT sink for decoded samples.
	telemetry *mqttpublish.Handler

	cancel context.CancelFunc
	// shutdown signals application shutdown.
	shutdown chan struct{}
}

// New checks the web server URL and initializes the main app structure.
func New(cfg *config.Config) (*App, error) {
	u, err := url.Parse(cfg.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("error parsing url %q: %s", cfg.Webserver.URL, err.Error())
		return &App{}, err
	}

	app := App{
		config:    cfg,
		urlParsed: u,
		web:       fiber.New(),
		gpioChips: map[string]*gpioedge.Chip{},
		shutdown:  make(chan struct{}),
	}

	return &app, nil
}

// Run starts the application: it wires the configured transports to the
// supervisor, then starts the webserver, any telemetry sink, and the
// supervisor's decode loop, each in its own goroutine.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	if app.telemetry != nil {
		go app.telemetry.Service()
	}
	go app.runWebServer()

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	go app.runSupervisor(ctx)

	return nil
}

// init initializes the used modules of the application:
//   - the serial port and/or gpio lines feeding each channel
//   - the optional gpio power feed
//   - the optional mqtt telemetry sink
//   - the default http routes
func (app *App) init() error {
	sup := supervisor.New(nil)
	app.supervisor = sup

	if app.config.MQTT.Connection != "" {
		app.telemetry = mqttpublish.New(app.config.MQTT.Topic)
		if err := app.telemetry.Connect(app.config.MQTT.Connection); err != nil {
			debug.ErrorLog.Printf("can't connect to mqtt broker: %v", err)
		}
	}

	channels := map[string]*supervisor.Channel{
		"DCD": sup.DCD,
		"CTS": sup.CTS,
		"DSR": sup.DSR,
	}
	configs := map[string]config.ChannelConfig{
		"DCD": app.config.Channels.DCD,
		"CTS": app.config.Channels.CTS,
		"DSR": app.config.Channels.DSR,
	}

	needsSerial := false
	for _, cc := range configs {
		if cc.Station != "" && cc.Transport != "gpio" {
			needsSerial = true
		}
	}

	if needsSerial {
		if app.config.Flag.Test {
			app.port = serialport.NewFake(serialport.Status{})
		} else {
			var port *serialport.Linux
			var err error
			if app.config.Serial.Poll {
				port, err = serialport.OpenPolling(app.config.Serial.Device)
			} else {
				port, err = serialport.Open(app.config.Serial.Device)
			}
			if err != nil {
				debug.ErrorLog.Printf("can't open serial device %q: %v", app.config.Serial.Device, err)
				return err
			}
			if err := port.PowerOn(); err != nil {
				debug.ErrorLog.Printf("can't power on serial port: %v", err)
				return err
			}
			app.port = port
		}
		sup.Port = app.port
	}

	for _, name := range []string{"DCD", "CTS", "DSR"} {
		cc := configs[name]
		ch := channels[name]
		if cc.Station == "" {
			continue
		}
		ch.WithThresholds(cc.NoSignalThreshold(), cc.GrossSkewThreshold())
		if app.telemetry != nil {
			ch.WithTelemetry(app.telemetry)
		}

		if cc.Transport == "gpio" {
			edges, err := app.openGPIOLine(cc.GPIO)
			if err != nil {
				debug.ErrorLog.Printf("can't open gpio line for %s: %v", name, err)
				return err
			}
			sup.WithGPIO(name, edges)
		}

		if cc.Power.Enabled {
			if err := app.openPowerPin(cc.Power.Line); err != nil {
				debug.ErrorLog.Printf("can't open power pin for %s: %v", name, err)
				return err
			}
		}
	}

	// initDefaultRoutes should always be called last: it reads app.config
	// and app.supervisor, which must already be initialized.
	app.initDefaultRoutes()

	return nil
}

// openGPIOLine opens (lazily, one per chip name) the chip named by gc and
// requests the line, returning the edge channel the supervisor should
// watch.
func (app *App) openGPIOLine(gc config.GPIOLineConfig) (<-chan pulse.Edge, error) {
	chipName := gc.Chip
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, ok := app.gpioChips[chipName]
	if !ok {
		var err error
		chip, err = gpioedge.Open(chipName)
		if err != nil {
			return nil, err
		}
		app.gpioChips[chipName] = chip
	}

	line, err := chip.NewLine(gc.Line, gc.Pull)
	if err != nil {
		return nil, err
	}
	app.gpioLines = append(app.gpioLines, line)
	return line.C, nil
}

// openPowerPin lazily opens the gpiopower supply and configures pin p as a
// receiver power feed, driving it high immediately.
func (app *App) openPowerPin(p int) error {
	if app.power == nil {
		supply, err := gpiopower.Open()
		if err != nil {
			return err
		}
		app.power = supply
	}
	pin := app.power.NewPin(p)
	pin.On()
	app.powerPins = append(app.powerPins, pin)
	return nil
}

// runWebServer starts the application's web server and listens for web
// requests. Designed to run in its own goroutine; see Run.
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// runSupervisor runs the channel supervisor's decode loop until ctx is
// cancelled or it hits an environment-fatal error.
func (app *App) runSupervisor(ctx context.Context) {
	if err := app.supervisor.Run(ctx); err != nil {
		debug.FatalLog.Printf("supervisor exited: %v", err)
	}
	close(app.shutdown)
}

// Shutdown returns the read-only shutdown channel, closed once the
// supervisor loop exits.
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

// Close releases all resources held by app: the supervisor loop, the
// serial port, any gpio lines and chips, the power supply, and the mqtt
// telemetry connection.
func (app *App) Close() error {
	if app.cancel != nil {
		app.cancel()
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if app.port != nil {
		note(app.port.Close())
	}
	for _, l := range app.gpioLines {
		note(l.Close())
	}
	for _, c := range app.gpioChips {
		note(c.Close())
	}
	if app.power != nil {
		note(app.power.Close())
	}
	if app.telemetry != nil {
		note(app.telemetry.Disconnect())
	}

	if firstErr != nil {
		return fmt.Errorf("app: close: %w", firstErr)
	}
	return nil
}
