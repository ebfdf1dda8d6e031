// Package collision tests voxel fragments against terrain occupancy. The
// kernel runs on a Device, either the GPU or an in-process emulation, and a
// host fallback computes the same contacts synchronously.
package collision

import (
	"errors"
)

var ErrCapacityExceeded = errors.New("contact capacity exceeded")

// StagingID selects one of the two readback staging buffers.
type StagingID int

// MapStatus is the outcome of an asynchronous map request.
type MapStatus int

const (
	MapSuccess MapStatus = iota
	MapError
)

func (s MapStatus) String() string {
	if s == MapSuccess {
		return "success"
	}
	return "error"
}

// Device is the execution target of the collision kernel. Calls are made from
// the frame loop only. MapAsync must not block; completion callbacks run
// inside Poll.
type Device interface {
	Name() string

	UploadChunkTable(packed []int32) error
	UploadChunk(layer int, words []uint32) error
	UploadFragments(records []GPUFragment, occupancy []uint32) error

	// ResetContacts zeroes the output counter before the first dispatch of a frame.
	ResetContacts() error
	// Dispatch runs the kernel for one fragment with its own uniform block.
	Dispatch(u Uniforms, groups [3]uint32) error

	CopyContacts(dst StagingID) error
	MapAsync(dst StagingID, done func(MapStatus)) error
	Poll()
	MappedRange(dst StagingID) []byte
	Unmap(dst StagingID)

	Release()
}
