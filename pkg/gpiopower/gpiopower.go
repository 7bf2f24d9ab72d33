// Package gpiopower drives a GPIO output pin to power-feed a directly-wired
// receiver module, the GPIO equivalent of asserting DTR/RTS on a serial
// port (pkg/serialport.PowerOn).
package gpiopower

import (
	"github.com/warthog618/gpio"
)

// Supply owns the mapped GPIO memory for the lifetime of the process.
type Supply struct{}

// Open maps /dev/gpiomem for static pin control.
func Open() (*Supply, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}
	return &Supply{}, nil
}

func (s *Supply) Close() error {
	return gpio.Close()
}

// Pin is a single output pin driving one receiver's power feed.
type Pin struct {
	pin *gpio.Pin
}

// NewPin configures p (BCM numbering) as an output, initially low.
func (s *Supply) NewPin(p int) *Pin {
	gpioPin := gpio.NewPin(p)
	gpioPin.Output()
	gpioPin.Low()
	return &Pin{pin: gpioPin}
}

// On asserts the power feed.
func (p *Pin) On() {
	p.pin.High()
}

// Off de-asserts the power feed.
func (p *Pin) Off() {
	p.pin.Low()
}
