//go:build !linux

package canbus

import "fmt"

// SocketCAN only exists on Linux. Other platforms get a stub so the
// control layer still builds; callers inject their own transport there.
func NewCANBus(ifname string) (bus CANBusInterface, err error) {
	return nil, fmt.Errorf("canbus: socketcan interface %s requires linux", ifname)
}
