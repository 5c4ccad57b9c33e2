package texstage

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
)

// Manager pools staging surfaces.
//
// Acquire hands out the smallest idle surface that can serve a request
// without stalling, or creates one. Release puts it back. The bytes held by
// idle surfaces are kept under a soft budget: when a new surface would go
// over it, Acquire first waits for the GPU so stalled surfaces become
// reusable, and then destroys idle surfaces until the request fits.
//
// Manager is safe for concurrent use. The surfaces it hands out are not.
type Manager struct {
	mu        sync.Mutex
	backend   Backend
	opts      managerOptions
	log       *slog.Logger
	available []*Surface
	inUse     []*Surface
	created   uint64
	closed    bool
}

// NewManager creates an empty pool over backend.
func NewManager(backend Backend, opts ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	o := defaultManagerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	return &Manager{backend: backend, opts: o, log: log}, nil
}

// Acquire returns a surface able to map a width x height x depth x slices
// region of format. The caller owns it until Release.
//
// minConsumptionRatio (0-100) rejects idle surfaces the request would use
// less than that percentage of, so that small uploads do not tie up big
// surfaces. 0 accepts any surface. Idle surfaces that lost their device
// are skipped until it is restored.
func (m *Manager) Acquire(width, height, depth, layers uint32, format gputypes.TextureFormat,
	minConsumptionRatio uint32) (*Surface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := LookupFormat(format); !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	minConsumptionRatio = min(minConsumptionRatio, 100)
	required := SizeBytes(width, height, depth, layers, format, 4)

	best := -1
	for i, s := range m.available {
		if s.usable() != nil || !s.SupportsFormat(width, height, depth, layers, format) {
			continue
		}
		if best >= 0 && !s.IsSmallerThan(m.available[best]) {
			continue
		}
		if !s.UploadWillStall() {
			best = i
		}
	}
	if best >= 0 && minConsumptionRatio != 0 &&
		required*100/m.available[best].SizeBytes() < uint64(minConsumptionRatio) {
		best = -1
	}
	if best >= 0 {
		return m.take(best), nil
	}

	if s := m.enforceBudget(width, height, depth, layers, format, required, minConsumptionRatio); s != nil {
		return s, nil
	}
	return m.create(width, height, depth, layers, format)
}

// enforceBudget makes room for required more bytes. It returns an idle
// surface when waiting for the GPU made one usable.
func (m *Manager) enforceBudget(width, height, depth, layers uint32, format gputypes.TextureFormat,
	required uint64, minConsumptionRatio uint32) *Surface {
	consumed := m.availableBytes()
	if consumed+required < m.opts.budget {
		return nil
	}
	m.log.Info("texstage: staging budget exceeded, stalling GPU",
		"consumed", consumed, "required", required, "budget", m.opts.budget)

	waited := make(map[uint64]bool)
	best := -1
	for i, s := range m.available {
		if frame, used := s.LastFrameUsed(); used && s.frames != nil && !waited[frame] {
			if err := s.frames.WaitForFrame(frame); err != nil {
				m.log.Warn("texstage: waiting for frame failed", "frame", frame, "err", err)
			}
			waited[frame] = true
		}
		if s.usable() != nil || !s.SupportsFormat(width, height, depth, layers, format) {
			continue
		}
		if best >= 0 && !s.IsSmallerThan(m.available[best]) {
			continue
		}
		if required*100/s.SizeBytes() >= uint64(minConsumptionRatio) {
			best = i
		}
	}
	if best >= 0 {
		return m.take(best)
	}

	m.log.Info("texstage: stalling was not enough, freeing staging memory")
	n := 0
	for n < len(m.available) && consumed+required > m.opts.budget {
		s := m.available[n]
		consumed -= s.SizeBytes()
		s.Destroy()
		n++
	}
	m.available = slices.Delete(m.available, 0, n)
	return nil
}

func (m *Manager) take(i int) *Surface {
	s := m.available[i]
	m.available = slices.Delete(m.available, i, i+1)
	m.inUse = append(m.inUse, s)
	return s
}

func (m *Manager) create(width, height, depth, layers uint32, format gputypes.TextureFormat) (*Surface, error) {
	m.created++
	opts := []SurfaceOption{
		WithLabel(fmt.Sprintf("staging#%d", m.created)),
		WithLogger(m.log),
	}
	if depth > 1 {
		opts = append(opts, WithKind(KindVolume))
	} else {
		opts = append(opts, WithKind(m.opts.kind))
	}
	if m.opts.frames != nil {
		opts = append(opts, WithFrameTracker(m.opts.frames))
	}
	if m.opts.devices != nil {
		opts = append(opts, WithDeviceResources(m.opts.devices))
	}
	s, err := NewSurface(m.backend, width, height, depth, layers, format, opts...)
	if err != nil {
		return nil, err
	}
	m.inUse = append(m.inUse, s)
	m.log.Info("texstage: staging surface created", "label", s.Label(), "bytes", s.SizeBytes())
	return s, nil
}

// Release returns a surface to the pool. An open bracket is closed first.
func (m *Manager) Release(s *Surface) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Most releases return what was just acquired.
	i := len(m.inUse) - 1
	for i >= 0 && m.inUse[i] != s {
		i--
	}
	if i < 0 {
		return ErrNotAcquired
	}
	m.inUse = slices.Delete(m.inUse, i, i+1)
	if m.closed {
		s.Destroy()
		return nil
	}
	if s.IsMapped() {
		m.log.Warn("texstage: released surface still mapped", "label", s.Label())
		if err := s.StopMapRegion(); err != nil {
			s.Destroy()
			return err
		}
	}
	m.available = append(m.available, s)
	return nil
}

func (m *Manager) availableBytes() uint64 {
	var n uint64
	for _, s := range m.available {
		n += s.SizeBytes()
	}
	return n
}

// Stats returns a snapshot of the pool.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := ManagerStats{
		Available:      len(m.available),
		InUse:          len(m.inUse),
		AvailableBytes: m.availableBytes(),
		BudgetBytes:    m.opts.budget,
		Created:        m.created,
	}
	for _, s := range m.inUse {
		st.InUseBytes += s.SizeBytes()
	}
	return st
}

// Close destroys every idle surface. Surfaces still in use are destroyed
// when released.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, s := range m.available {
		s.Destroy()
	}
	m.available = nil
	m.closed = true
}
