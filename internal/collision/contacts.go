package collision

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/engine"
)

// cardinalThreshold is the normal component above which a contact counts as
// facing that axis direction.
const cardinalThreshold = 0.7

// Contact is a decoded contact record.
type Contact struct {
	Entity      engine.EntityID
	Position    mgl32.Vec3
	Normal      mgl32.Vec3
	Penetration float32
	VoxelIndex  uint32
	Kind        ContactKind
}

// Batch is the set of contacts computed for one extracted frame.
type Batch struct {
	Frame    uint64
	Contacts []Contact
	// Overflow is set when the kernel produced more contacts than the output
	// buffer holds. The excess contacts are missing from Contacts.
	Overflow bool
}

// ForEntity returns the contacts of one entity. Contacts must be sorted, as
// DecodeContacts and HostCollider leave them.
func (b Batch) ForEntity(id engine.EntityID) []Contact {
	lo := sort.Search(len(b.Contacts), func(i int) bool { return b.Contacts[i].Entity >= id })
	hi := lo
	for hi < len(b.Contacts) && b.Contacts[hi].Entity == id {
		hi++
	}
	return b.Contacts[lo:hi]
}

// Entities returns the distinct entities with contacts, ascending.
func (b Batch) Entities() []engine.EntityID {
	var out []engine.EntityID
	for i, c := range b.Contacts {
		if i == 0 || c.Entity != b.Contacts[i-1].Entity {
			out = append(out, c.Entity)
		}
	}
	return out
}

// Filter keeps only contacts whose entity is in keep.
func (b Batch) Filter(keep map[engine.EntityID]struct{}) Batch {
	out := b
	out.Contacts = make([]Contact, 0, len(b.Contacts))
	for _, c := range b.Contacts {
		if _, ok := keep[c.Entity]; ok {
			out.Contacts = append(out.Contacts, c)
		}
	}
	return out
}

func toContact(r GPUContact) Contact {
	return Contact{
		Entity:      engine.EntityID(uint64(r.EntityHi)<<32 | uint64(r.EntityLo)),
		Position:    mgl32.Vec3(r.Position),
		Normal:      mgl32.Vec3(r.Normal),
		Penetration: r.Penetration,
		VoxelIndex:  r.VoxelIndex,
		Kind:        ContactKind(r.Kind),
	}
}

func sortContacts(cs []Contact) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.VoxelIndex < b.VoxelIndex
	})
}

// DecodeContacts parses a mapped output buffer. The device appends records in
// completion order, so the result is sorted by entity and voxel index. When the
// header count exceeds maxContacts the stored contacts are returned together
// with ErrCapacityExceeded.
func DecodeContacts(raw []byte, maxContacts int) ([]Contact, error) {
	if len(raw) < ContactHeaderSize {
		return nil, fmt.Errorf("contact buffer too short: %d bytes", len(raw))
	}
	total := int(le.Uint32(raw))
	n := min(total, maxContacts, (len(raw)-ContactHeaderSize)/ContactRecordSize)

	out := make([]Contact, n)
	for i := range out {
		out[i] = toContact(readContact(raw[ContactHeaderSize+i*ContactRecordSize:]))
	}
	sortContacts(out)

	if total > maxContacts {
		return out, fmt.Errorf("%w: %d contacts, capacity %d", ErrCapacityExceeded, total, maxContacts)
	}
	return out, nil
}

// ResolutionVector returns the displacement that separates a body from its
// contacts. Each cardinal direction contributes its maximum penetration;
// summing would over-correct when many voxels overlap the same face.
func ResolutionVector(cs []Contact) mgl32.Vec3 {
	var pos, neg [3]float32
	for _, c := range cs {
		for axis := 0; axis < 3; axis++ {
			switch {
			case c.Normal[axis] > cardinalThreshold:
				pos[axis] = max(pos[axis], c.Penetration)
			case c.Normal[axis] < -cardinalThreshold:
				neg[axis] = max(neg[axis], c.Penetration)
			}
		}
	}
	return mgl32.Vec3{pos[0] - neg[0], pos[1] - neg[1], pos[2] - neg[2]}
}

// IsFloor reports whether the contact pushes its body upward.
func (c Contact) IsFloor() bool {
	return c.Normal[1] > cardinalThreshold
}

// HasFloorContact reports whether any contact is a floor contact.
func HasFloorContact(cs []Contact) bool {
	for _, c := range cs {
		if c.IsFloor() {
			return true
		}
	}
	return false
}
