package protocol

import (
	"errors"
	"testing"
)

func TestFrequencyModel_Channels(t *testing.T) {
	tests := []struct {
		model     FrequencyModel
		wantCount int
		valid     uint8
		invalid   uint8
	}{
		{MHz429, 40, 0x07, 0x2F},
		{MHz1216, 19, 0x14, 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.model.String(), func(t *testing.T) {
			if got := tt.model.ChannelCount(); got != tt.wantCount {
				t.Errorf("ChannelCount() = %d, want %d", got, tt.wantCount)
			}
			if !tt.model.ValidChannel(tt.valid) {
				t.Errorf("ValidChannel(0x%02X) = false, want true", tt.valid)
			}
			if tt.model.ValidChannel(tt.invalid) {
				t.Errorf("ValidChannel(0x%02X) = true, want false", tt.invalid)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	if m, err := ParseMode("bin"); err != nil || m != FskBin {
		t.Errorf("ParseMode(bin) = %v, %v", m, err)
	}
	if _, err := ParseMode("turbo"); err == nil {
		t.Error("ParseMode(turbo) error = nil")
	}
	if f, err := ParseFrequencyModel("1216MHz"); err != nil || f != MHz1216 {
		t.Errorf("ParseFrequencyModel(1216MHz) = %v, %v", f, err)
	}
	if _, err := ParseFrequencyModel("868"); err == nil {
		t.Error("ParseFrequencyModel(868) error = nil")
	}
	if k, err := ParseResponseKind("rssiallchannels"); err != nil || k != KindRssiAllChannels {
		t.Errorf("ParseResponseKind() = %v, %v", k, err)
	}
}

func TestError(t *testing.T) {
	if Ok.Err() != nil {
		t.Error("Ok.Err() != nil")
	}
	var err error = FailLbt.Err()
	if !errors.Is(err, FailLbt) {
		t.Errorf("errors.Is(%v, FailLbt) = false", err)
	}
	if err.Error() != "mu: FailLbt" {
		t.Errorf("Error() = %q", err.Error())
	}
}
