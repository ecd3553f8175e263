package modem

import (
	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
)

// ModeController owns the operating mode and frequency model the parser
// frames bytes under. Changes requested mid-cycle are queued and applied
// before the next byte once the parser is back at a boundary.
type ModeController struct {
	parser *parser.Parser
	idle   func() bool
	log    zerolog.Logger

	mode  protocol.Mode
	model protocol.FrequencyModel

	pendingMode  *protocol.Mode
	pendingModel *protocol.FrequencyModel
}

func newModeController(p *parser.Parser, idle func() bool, mode protocol.Mode, model protocol.FrequencyModel, log zerolog.Logger) *ModeController {
	mc := &ModeController{
		parser: p,
		idle:   idle,
		log:    log,
		mode:   mode,
		model:  model,
	}
	p.SetFraming(mode, model)
	return mc
}

// SetMode switches the operating mode. It returns true when the change
// took effect immediately and false when it was queued.
func (mc *ModeController) SetMode(mode protocol.Mode) bool {
	mc.pendingMode = &mode
	return mc.settle()
}

// SetFrequencyModel switches the frequency model, with SetMode's deferral rules
func (mc *ModeController) SetFrequencyModel(model protocol.FrequencyModel) bool {
	mc.pendingModel = &model
	return mc.settle()
}

// Current returns the mode and model bytes are being parsed under
func (mc *ModeController) Current() (protocol.Mode, protocol.FrequencyModel) {
	return mc.mode, mc.model
}

// Target returns the mode and model that will apply once queued changes settle
func (mc *ModeController) Target() (protocol.Mode, protocol.FrequencyModel) {
	mode, model := mc.mode, mc.model
	if mc.pendingMode != nil {
		mode = *mc.pendingMode
	}
	if mc.pendingModel != nil {
		model = *mc.pendingModel
	}
	return mode, model
}

// Pending reports whether a change is queued
func (mc *ModeController) Pending() bool {
	return mc.pendingMode != nil || mc.pendingModel != nil
}

// settle applies queued changes if the parser is at a boundary and no
// command is in flight
func (mc *ModeController) settle() bool {
	if !mc.Pending() {
		return true
	}
	if !mc.parser.AtBoundary() || (mc.idle != nil && !mc.idle()) {
		return false
	}
	mode, model := mc.Target()
	mc.pendingMode, mc.pendingModel = nil, nil
	if mode != mc.mode || model != mc.model {
		mc.log.Info().
			Str("mode", mode.String()).
			Str("model", model.String()).
			Msg("framing changed")
	}
	mc.mode, mc.model = mode, model
	mc.parser.SetFraming(mode, model)
	return true
}
