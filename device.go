package texstage

import (
	"errors"
	"sync"
)

// DeviceListener is notified when the graphics device is lost and when it
// comes back.
type DeviceListener interface {
	// NotifyDeviceLost releases every device resource the listener holds.
	NotifyDeviceLost()

	// NotifyDeviceRestored recreates them.
	NotifyDeviceRestored() error
}

// DeviceResources broadcasts device loss and restore to its listeners.
//
// One instance is created alongside the device and handed to every object
// that must react to device events. The mutex only guards the broadcast;
// listeners themselves are not serialised with their regular use.
type DeviceResources struct {
	mu        sync.Mutex
	listeners []DeviceListener
}

// NewDeviceResources creates an empty registry.
func NewDeviceResources() *DeviceResources {
	return &DeviceResources{}
}

// Register adds l. Registering the same listener twice is a no-op.
func (d *DeviceResources) Register(l DeviceListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, x := range d.listeners {
		if x == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

// Unregister removes l.
func (d *DeviceResources) Unregister(l DeviceListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.listeners {
		if x == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of listeners.
func (d *DeviceResources) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// NotifyDeviceLost tells every listener the device is gone.
func (d *DeviceResources) NotifyDeviceLost() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.listeners {
		l.NotifyDeviceLost()
	}
}

// NotifyDeviceRestored tells every listener to recreate its resources and
// returns their joined errors.
func (d *DeviceResources) NotifyDeviceRestored() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, l := range d.listeners {
		if err := l.NotifyDeviceRestored(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
