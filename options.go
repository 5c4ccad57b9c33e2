package texstage

import "log/slog"

// SurfaceOption configures a Surface during creation.
//
// Example:
//
//	s, err := texstage.NewSurface(b, 1024, 1024, 1, 4, gputypes.TextureFormatRGBA8Unorm,
//	    texstage.WithLabel("streaming"),
//	    texstage.WithFrameTracker(frames))
type SurfaceOption func(*surfaceOptions)

type surfaceOptions struct {
	label   string
	kind    SurfaceKind
	frames  *FrameTracker
	devices *DeviceResources
	logger  *slog.Logger
}

func defaultSurfaceOptions() surfaceOptions {
	return surfaceOptions{
		kind:   KindArray,
		logger: nil, // package logger
	}
}

// WithLabel sets the debug label passed to the backend.
func WithLabel(label string) SurfaceOption {
	return func(o *surfaceOptions) {
		o.label = label
	}
}

// WithKind selects array or volume slice addressing. The default is
// KindArray.
func WithKind(k SurfaceKind) SurfaceOption {
	return func(o *surfaceOptions) {
		o.kind = k
	}
}

// WithFrameTracker makes the surface track the frame of its last upload so
// that StartMapRegion can wait for the GPU to finish reading it. Without a
// tracker uploads are assumed complete when Upload returns.
func WithFrameTracker(f *FrameTracker) SurfaceOption {
	return func(o *surfaceOptions) {
		o.frames = f
	}
}

// WithDeviceResources subscribes the surface to device loss and restore
// notifications.
func WithDeviceResources(d *DeviceResources) SurfaceOption {
	return func(o *surfaceOptions) {
		o.devices = d
	}
}

// WithLogger overrides the package logger for one surface.
func WithLogger(l *slog.Logger) SurfaceOption {
	return func(o *surfaceOptions) {
		o.logger = l
	}
}

// UploadOption configures a single Upload call.
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	dstBox         *TextureBox
	cpuSrcBox      *TextureBox
	skipSysRAMCopy bool
}

// WithDstBox sets the destination region. Its origin (X, Y and Z or
// SliceStart) is where the copy lands; its extent must equal the source
// box. Without it the copy lands at the destination origin.
func WithDstBox(b TextureBox) UploadOption {
	return func(o *uploadOptions) {
		o.dstBox = &b
	}
}

// WithCPUSrcBox supplies a CPU copy of the uploaded pixels. Staging memory
// is unmapped by the time Upload runs, so textures that keep a system RAM
// copy are only refreshed from this box.
func WithCPUSrcBox(b TextureBox) UploadOption {
	return func(o *uploadOptions) {
		o.cpuSrcBox = &b
	}
}

// SkipSysRAMCopy leaves the destination's system RAM copy untouched.
func SkipSysRAMCopy() UploadOption {
	return func(o *uploadOptions) {
		o.skipSysRAMCopy = true
	}
}

// ManagerOption configures a Manager during creation.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	budget  uint64
	frames  *FrameTracker
	devices *DeviceResources
	logger  *slog.Logger
	kind    SurfaceKind
}

// DefaultStagingBudget is the default soft limit on the bytes held by
// surfaces that are not in use.
const DefaultStagingBudget = 512 << 20

func defaultManagerOptions() managerOptions {
	return managerOptions{
		budget: DefaultStagingBudget,
		kind:   KindArray,
	}
}

// WithBudget sets the soft limit on staging bytes. Acquire first waits for
// the GPU and then destroys idle surfaces before going over it.
func WithBudget(bytes uint64) ManagerOption {
	return func(o *managerOptions) {
		o.budget = bytes
	}
}

// WithManagerFrameTracker shares a frame tracker with every pooled surface.
func WithManagerFrameTracker(f *FrameTracker) ManagerOption {
	return func(o *managerOptions) {
		o.frames = f
	}
}

// WithManagerDeviceResources subscribes pooled surfaces to device events.
func WithManagerDeviceResources(d *DeviceResources) ManagerOption {
	return func(o *managerOptions) {
		o.devices = d
	}
}

// WithManagerLogger overrides the package logger for the manager and the
// surfaces it creates.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = l
	}
}

// WithManagerKind sets the kind of surfaces the manager creates.
func WithManagerKind(k SurfaceKind) ManagerOption {
	return func(o *managerOptions) {
		o.kind = k
	}
}
