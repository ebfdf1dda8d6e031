package collision

import (
	"voxelstudio/internal/extract"
)

// HostCollider runs the kernel synchronously on the host terrain copy. It is
// the fallback when the device is unavailable or unreliable. The device contact
// limit does not apply: the sink grows to the largest fragment seen, so every
// contact is kept.
type HostCollider struct {
	terrain *Terrain
	limits  Limits
	sink    *contactSink
}

func NewHostCollider(terrain *Terrain, limits Limits) *HostCollider {
	return &HostCollider{
		terrain: terrain,
		limits:  limits,
		sink:    newContactSink(limits.MaxContacts),
	}
}

// Collide returns the contacts of snap, sorted by entity and voxel index.
func (h *HostCollider) Collide(snap extract.FragmentSnapshot) Batch {
	batch := Batch{Frame: snap.Frame}
	records, occ, dropped := packFragments(snap, h.limits.MaxFragmentWords)
	if dropped > 0 {
		logger.Warn("fragment occupancy buffer full", "dropped", dropped, "capacity", h.limits.MaxFragmentWords)
	}

	view := h.terrain.View()
	tableSize := h.terrain.Table().Size()
	for i, rec := range records {
		// one contact per voxel at most
		if need := int(rec.Size[0] * rec.Size[1] * rec.Size[2]); need > len(h.sink.records) {
			h.sink = newContactSink(need)
		}
		h.sink.reset()
		runFragment(uniformsFor(i, records, h.limits, tableSize), rec, occ, view, h.sink)

		for _, r := range h.sink.records[:h.sink.count.Load()] {
			batch.Contacts = append(batch.Contacts, toContact(r))
		}
	}
	sortContacts(batch.Contacts)
	return batch
}
