// Package readback moves contact output from the device to the host through
// two staging buffers without ever waiting on the device.
package readback

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"voxelstudio/internal/collision"
	"voxelstudio/internal/engine"
)

var logger = log.WithPrefix("readback")

var ErrMapFailed = errors.New("staging buffer map failed")

// State is the role of one staging buffer.
type State int

const (
	Idle State = iota
	Writing
	MapPending
	Readable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Writing:
		return "writing"
	case MapPending:
		return "map-pending"
	case Readable:
		return "readable"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type slot struct {
	id       collision.StagingID
	state    State
	frame    uint64
	entities map[engine.EntityID]struct{}
	failed   bool
}

// Stats counts readback outcomes since creation.
type Stats struct {
	Delivered           int
	Dropped             int
	MapFailures         int
	SkippedFrames       int
	ConsecutiveFailures int
	Overflows           int
	Stale               int
}

// Pipeline is the staging buffer pair. The write target alternates every
// frame; a buffer is never written while a map on it is outstanding.
type Pipeline struct {
	dev         collision.Device
	maxContacts int
	slots       [2]slot
	next        int
	deliveries  chan collision.Batch
	stats       Stats
	minFrame    uint64
}

// New creates a pipeline over dev.
func New(dev collision.Device, maxContacts int) *Pipeline {
	return &Pipeline{
		dev:         dev,
		maxContacts: maxContacts,
		slots:       [2]slot{{id: 0}, {id: 1}},
		deliveries:  make(chan collision.Batch, 1),
	}
}

// Deliveries is the one-shot channel contact batches arrive on. It holds at
// most one batch; a newer batch replaces an unconsumed one.
func (p *Pipeline) Deliveries() <-chan collision.Batch {
	return p.deliveries
}

// States returns the current state of both buffers.
func (p *Pipeline) States() [2]State {
	return [2]State{p.slots[0].state, p.slots[1].state}
}

// Stats returns a copy of the counters.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// ConsecutiveFailures is the number of frames in a row whose contacts were lost
// to map errors or an unavailable write target.
func (p *Pipeline) ConsecutiveFailures() int {
	return p.stats.ConsecutiveFailures
}

// ResetFailures clears the consecutive failure count, for a caller that
// re-enables the device after falling back.
func (p *Pipeline) ResetFailures() {
	p.stats.ConsecutiveFailures = 0
}

// DiscardBefore drops every batch computed before frame, including one
// already waiting on the delivery channel. Maps still pending for those frames
// complete normally and free their buffer without delivering.
func (p *Pipeline) DiscardBefore(frame uint64) {
	p.minFrame = frame
	select {
	case b := <-p.deliveries:
		if b.Frame >= frame {
			p.deliveries <- b
			return
		}
		p.stats.Stale++
	default:
	}
}

// Begin claims the next write target for this frame. It returns false when
// that buffer is still waiting on an older map; the frame is then skipped, its
// contacts are lost and the failure is counted. The target alternates on every
// call either way.
func (p *Pipeline) Begin() (collision.StagingID, bool) {
	s := &p.slots[p.next]
	p.next ^= 1

	if s.state != Idle {
		p.stats.SkippedFrames++
		p.stats.Dropped++
		p.stats.ConsecutiveFailures++
		logger.Debug("write target busy, skipping frame", "buffer", s.id, "state", s.state)
		return s.id, false
	}
	s.state = Writing
	return s.id, true
}

// Abort returns a claimed write target to Idle without submitting it.
func (p *Pipeline) Abort(id collision.StagingID) {
	if s := &p.slots[id]; s.state == Writing {
		s.state = Idle
	}
}

// Submit copies this frame's contact output into the claimed buffer and
// requests an asynchronous map. It never waits for the map to complete.
func (p *Pipeline) Submit(id collision.StagingID, sub collision.Submission) error {
	s := &p.slots[id]
	if s.state != Writing {
		return fmt.Errorf("staging buffer %d is %v, not writing", id, s.state)
	}
	s.frame = sub.Frame
	s.entities = make(map[engine.EntityID]struct{}, len(sub.Entities))
	for _, e := range sub.Entities {
		s.entities[e] = struct{}{}
	}

	if err := p.dev.CopyContacts(s.id); err != nil {
		s.state = Idle
		p.fail()
		return fmt.Errorf("%w: copy: %v", ErrMapFailed, err)
	}

	s.state = MapPending
	s.failed = false
	err := p.dev.MapAsync(s.id, func(status collision.MapStatus) {
		if status == collision.MapSuccess {
			s.state = Readable
			return
		}
		s.failed = true
	})
	if err != nil {
		s.state = Idle
		p.fail()
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	return nil
}

func (p *Pipeline) fail() {
	p.stats.MapFailures++
	p.stats.Dropped++
	p.stats.ConsecutiveFailures++
}

// Poll checks the device once without waiting and delivers at most one
// readable batch, oldest frame first. Failed maps return their buffer to Idle.
func (p *Pipeline) Poll() {
	p.dev.Poll()

	for i := range p.slots {
		s := &p.slots[i]
		if s.state == MapPending && s.failed {
			s.state = Idle
			s.failed = false
			p.fail()
			logger.Warn("map failed, dropping contacts", "frame", s.frame, "consecutive", p.stats.ConsecutiveFailures)
		}
	}

	s := p.oldestReadable()
	if s == nil {
		return
	}
	batch, err := p.read(s)
	p.dev.Unmap(s.id)
	s.state = Idle
	s.entities = nil
	if err != nil && !errors.Is(err, collision.ErrCapacityExceeded) {
		p.fail()
		logger.Warn("contact decode failed", "frame", s.frame, "err", err)
		return
	}
	if batch.Frame < p.minFrame {
		p.stats.Stale++
		logger.Debug("discarding stale contact batch", "frame", batch.Frame, "min", p.minFrame)
		return
	}
	if batch.Overflow {
		p.stats.Overflows++
		logger.Warn("contact capacity exceeded", "frame", batch.Frame, "capacity", p.maxContacts)
	}
	p.stats.ConsecutiveFailures = 0
	p.deliver(batch)
}

func (p *Pipeline) oldestReadable() *slot {
	var best *slot
	for i := range p.slots {
		s := &p.slots[i]
		if s.state != Readable {
			continue
		}
		if best == nil || s.frame < best.frame {
			best = s
		}
	}
	return best
}

func (p *Pipeline) read(s *slot) (collision.Batch, error) {
	raw := p.dev.MappedRange(s.id)
	contacts, err := collision.DecodeContacts(raw, p.maxContacts)
	batch := collision.Batch{
		Frame:    s.frame,
		Overflow: errors.Is(err, collision.ErrCapacityExceeded),
	}
	if err != nil && !batch.Overflow {
		return batch, err
	}
	batch.Contacts = contacts
	return batch.Filter(s.entities), err
}

// deliver hands the batch over without blocking. An unconsumed older batch is
// discarded in favour of the new one.
func (p *Pipeline) deliver(b collision.Batch) {
	select {
	case old := <-p.deliveries:
		p.stats.Dropped++
		logger.Debug("replacing unconsumed contact batch", "old", old.Frame, "new", b.Frame)
	default:
	}
	select {
	case p.deliveries <- b:
		p.stats.Delivered++
	default:
		p.stats.Dropped++
	}
}
