package registry

import "sort"

// PackObject is one object candidate for decommission relocation: its
// location-qualified identity plus size, the only two fields the packer
// needs (spec §4.7 step 4: "sort objects by size descending").
type PackObject struct {
	Bucket string
	Key    string
	Size   uint64
}

// Placement assigns a batch of objects (copies of the input entries) to a
// target node id.
type Placement struct {
	TargetID string
	Objects  []PackObject
}

// FirstFitDescending packs objects (sorted descending by size) into
// targets using first-fit-descending bin packing, clamped so that
// target.used+obj.Size never exceeds target.Available() (spec §4.7 step 6);
// an object that exactly fills a target's remaining capacity is placed
// there. Objects that fit nowhere are returned separately rather than
// silently dropped.
func FirstFitDescending(objects []PackObject, targets []Node) (placements []Placement, unplaced []PackObject) {
	sorted := make([]PackObject, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Size > sorted[j].Size })

	type bin struct {
		id        string
		remaining uint64
	}
	bins := make([]*bin, len(targets))
	for i, t := range targets {
		bins[i] = &bin{id: t.ID, remaining: t.Stats.Available()}
	}

	var order []string
	byID := make(map[string][]PackObject, len(targets))

	for _, obj := range sorted {
		placed := false
		for _, b := range bins {
			if obj.Size <= b.remaining {
				b.remaining -= obj.Size
				if _, ok := byID[b.id]; !ok {
					order = append(order, b.id)
				}
				byID[b.id] = append(byID[b.id], obj)
				placed = true
				break
			}
		}
		if !placed {
			unplaced = append(unplaced, obj)
		}
	}

	placements = make([]Placement, 0, len(order))
	for _, id := range order {
		placements = append(placements, Placement{TargetID: id, Objects: byID[id]})
	}
	return placements, unplaced
}
