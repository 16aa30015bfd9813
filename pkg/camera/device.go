package camera

// Device is an opened video source.
// Read blocks until the next buffer is available.
type Device interface {
	Read() (RawBuffer, error)
	Close() error
}

// Provider selects and opens devices.
type Provider interface {
	// Check reports whether some device can serve cfg without opening it.
	// It returns ErrDeviceUnavailable when no device matches.
	Check(cfg Config) error

	// Open attaches the device selected by cfg.
	Open(cfg Config) (Device, error)
}
