package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNilHALDevice is returned when creating a backend without a device
	// or queue.
	ErrNilHALDevice = errors.New("native: HAL device is nil")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL handles.
	ErrNoHALProvider = errors.New("native: provider does not expose HAL types")

	// ErrTextureDestroyed is returned when operating on a destroyed texture.
	ErrTextureDestroyed = errors.New("native: texture has been destroyed")

	// ErrInvalidTextureSize is returned when texture dimensions are invalid.
	ErrInvalidTextureSize = errors.New("native: invalid texture size")

	// ErrForeignTexture is returned when copying into a texture that was not
	// created by this package.
	ErrForeignTexture = errors.New("native: destination is not a native texture")

	// ErrInvalidSlice is returned for slices outside the staging buffer.
	ErrInvalidSlice = errors.New("native: slice out of range")

	// ErrStagingDestroyed is returned when using a destroyed staging buffer.
	ErrStagingDestroyed = errors.New("native: staging buffer destroyed")
)
