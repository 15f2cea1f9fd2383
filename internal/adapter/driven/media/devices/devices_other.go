//go:build !linux

package devices

import (
	"context"
	"fmt"
	"runtime"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// Devices reports every capture as unavailable: the mediadevices drivers
// used on Linux have no counterpart wired on this platform.
type Devices struct{}

func New() (*Devices, error) {
	return &Devices{}, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (d *Devices) GetUserMedia(ctx context.Context, c port.MediaConstraints) ([]port.LocalTrack, error) {
	return nil, fmt.Errorf("%w: no capture drivers on %s", domain.ErrDeviceAcquisition, runtime.GOOS)
}

func (d *Devices) GetDisplayMedia(ctx context.Context) (port.LocalTrack, error) {
	return nil, fmt.Errorf("%w: no screen capture on %s", domain.ErrDeviceAcquisition, runtime.GOOS)
}
