package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"radioclkd/pkg/supervisor"
)

// channelView is the JSON-facing shape of a supervisor.Status snapshot.
type channelView struct {
	Line         string `json:"line"`
	Unit         int    `json:"unit"`
	HasDecoded   bool   `json:"has_decoded"`
	LastDecoded  string `json:"last_decoded,omitempty"`
	ErrorLatched bool   `json:"error_latched"`
	PulseCount   int    `json:"pulse_count"`
}

func toView(s supervisor.Status) channelView {
	v := channelView{
		Line:         s.LineName,
		Unit:         s.Unit,
		HasDecoded:   s.HasDecoded,
		ErrorLatched: s.ErrorLatched,
		PulseCount:   s.PulseCount,
	}
	if s.HasDecoded {
		v.LastDecoded = s.LastDecoded.Format("2006-01-02T15:04:05Z")
	}
	return v
}

// HandleChannels returns the current decode state of the three status-line
// channels: last decode time, no-signal latch, pulse buffer depth. This is
// a diagnostic surface only; it never participates in the shared-memory
// publication path (spec.md §4.E).
func (app *App) HandleChannels() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request channels")

		views := []channelView{
			toView(app.supervisor.DCD.Snapshot()),
			toView(app.supervisor.CTS.Snapshot()),
			toView(app.supervisor.DSR.Snapshot()),
		}
		return ctx.JSON(views)
	}
}
