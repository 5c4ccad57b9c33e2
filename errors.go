package texstage

import "errors"

// Surface errors.
var (
	// ErrUnsupportedFormat is returned when a surface is created for a format
	// with no known memory footprint.
	ErrUnsupportedFormat = errors.New("texstage: unsupported pixel format")

	// ErrInvalidSize is returned when a surface is created with a zero extent.
	ErrInvalidSize = errors.New("texstage: invalid surface size")

	// ErrNilBackend is returned when a surface or manager has no backend.
	ErrNilBackend = errors.New("texstage: backend is nil")

	// ErrSurfaceDestroyed is returned when operating on a destroyed surface.
	ErrSurfaceDestroyed = errors.New("texstage: surface has been destroyed")

	// ErrDeviceLost is returned when the surface's staging memory was
	// released by a device loss and has not been restored yet.
	ErrDeviceLost = errors.New("texstage: device lost")

	// ErrDevice wraps failures reported by the backend while mapping,
	// copying or submitting.
	ErrDevice = errors.New("texstage: device error")
)

// Upload errors.
var (
	// ErrEmptyBox is returned when uploading a box that was never mapped.
	ErrEmptyBox = errors.New("texstage: empty texture box")

	// ErrNotOwned is returned when a box was not carved from the surface
	// it is uploaded with.
	ErrNotOwned = errors.New("texstage: texture box does not belong to this surface")

	// ErrStaleBox is returned when a box outlived the bracket it was mapped in.
	ErrStaleBox = errors.New("texstage: texture box is from an earlier map bracket")

	// ErrStillMapped is returned by Upload while the map bracket is open.
	ErrStillMapped = errors.New("texstage: stopMapRegion must be called before upload")

	// ErrMipOutOfRange is returned when the destination mip does not exist.
	ErrMipOutOfRange = errors.New("texstage: mip level out of range")

	// ErrMultisampled is returned when the destination texture uses MSAA.
	ErrMultisampled = errors.New("texstage: cannot upload to a multisampled texture")

	// ErrFormatMismatch is returned when the destination format is not in the
	// surface's format family.
	ErrFormatMismatch = errors.New("texstage: destination format not in surface family")

	// ErrBoxOutOfBounds is returned when the copy does not fit the destination.
	ErrBoxOutOfBounds = errors.New("texstage: box exceeds destination bounds")

	// ErrSizeMismatch is returned when source and destination boxes differ in size.
	ErrSizeMismatch = errors.New("texstage: source and destination sizes differ")
)

// Manager errors.
var (
	// ErrNotAcquired is returned when releasing a surface the manager did
	// not hand out.
	ErrNotAcquired = errors.New("texstage: surface was not acquired from this manager")

	// ErrManagerClosed is returned when operating on a closed manager.
	ErrManagerClosed = errors.New("texstage: manager is closed")
)
