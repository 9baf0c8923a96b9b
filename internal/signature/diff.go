package signature

// Delta describes how a newer signature differs from an older one.
type Delta struct {
	OldBlocks int      `json:"old_blocks"`
	NewBlocks int      `json:"new_blocks"`
	Changed   []uint64 `json:"changed"`
	Appended  int      `json:"appended"`
	Removed   int      `json:"removed"`
}

// Unchanged reports whether both signatures are identical.
func (d Delta) Unchanged() bool {
	return len(d.Changed) == 0 && d.Appended == 0 && d.Removed == 0
}

// Diff compares two signatures made with the same block size. Blocks present
// in both are compared by index; blocks only in newer count as appended and
// blocks only in older count as removed.
func Diff(older, newer []uint32) Delta {
	d := Delta{
		OldBlocks: len(older),
		NewBlocks: len(newer),
		Changed:   []uint64{},
	}
	common := min(len(older), len(newer))
	for i := 0; i < common; i++ {
		if older[i] != newer[i] {
			d.Changed = append(d.Changed, uint64(i))
		}
	}
	if len(newer) > common {
		d.Appended = len(newer) - common
	}
	if len(older) > common {
		d.Removed = len(older) - common
	}
	return d
}
