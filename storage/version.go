package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// OpKind tags which variant an Op is.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
	OpClean
	OpLoad
	OpLoads
)

// Op is a tagged operation recorded by the version controller: a forward
// mutation or its computed inverse ("revert").
type Op struct {
	Kind OpKind
	Key  string // Set, Delete
	Val  Value  // Set
	Path string // Load
	Text string // Loads
}

// SetOp builds a Set(key, value) operation.
func SetOp(key string, value Value) Op { return Op{Kind: OpSet, Key: key, Val: value} }

// DeleteOp builds a Delete(key) operation.
func DeleteOp(key string) Op { return Op{Kind: OpDelete, Key: key} }

// CleanOp builds a Clean operation.
func CleanOp() Op { return Op{Kind: OpClean} }

// LoadOp builds a Load(path) operation.
func LoadOp(path string) Op { return Op{Kind: OpLoad, Path: path} }

// LoadsOp builds a Loads(jsonText) operation.
func LoadsOp(text string) Op { return Op{Kind: OpLoads, Text: text} }

type opRecord struct {
	forward Op
	revert  *Op
}

// VersionController is an append-only log of forward+revert operation
// pairs with a cursor ("current"), supporting undo (RevertOne), redo
// (ForwardOne), and arbitrary jumps (ToVersion). A new AddOperation while
// current is not the latest id truncates the redo tail — there is no
// branching history.
type VersionController struct {
	ops     []string
	recs    map[string]opRecord
	current string // "" means before the first op
	limitMB float64
}

// NewVersionController returns an empty log warning at limitMB of
// estimated memory.
func NewVersionController(limitMB float64) *VersionController {
	return &VersionController{
		recs:    make(map[string]opRecord),
		limitMB: limitMB,
	}
}

// Versions returns the ordered operation ids.
func (v *VersionController) Versions() []string {
	out := make([]string, len(v.ops))
	copy(out, v.ops)
	return out
}

// Current returns the current operation id, or "" if none.
func (v *VersionController) Current() string { return v.current }

func (v *VersionController) indexOf(id string) int {
	for i, x := range v.ops {
		if x == id {
			return i
		}
	}
	return -1
}

// estimateMemoryMB approximates the log's memory footprint the same way
// the rest of the package approximates everything: serialized length.
func (v *VersionController) estimateMemoryMB() float64 {
	b, err := Marshal(opSnapshotValue(v.ops, v.current, v.recs))
	if err != nil {
		return 0
	}
	return float64(len(b)) / (1024 * 1024)
}

// opSnapshotValue renders the log into a plain Value so Marshal can size
// it without requiring Op/opRecord to implement json.Marshaler.
func opSnapshotValue(ops []string, current string, recs map[string]opRecord) Value {
	m := make(map[string]Value, len(recs))
	for id, r := range recs {
		entry := map[string]Value{"forward": opValue(r.forward)}
		if r.revert != nil {
			entry["revert"] = opValue(*r.revert)
		}
		m[id] = entry
	}
	return map[string]Value{"ops": ops, "current": current, "map": m}
}

func opValue(op Op) Value {
	return map[string]Value{
		"kind": int(op.Kind),
		"key":  op.Key,
		"val":  op.Val,
		"path": op.Path,
		"text": op.Text,
	}
}

// AddOperation records forward (with its precomputed revert, if any) as
// the new current op. If current pointed at an earlier id, the redo tail
// after it is discarded first. Returns a non-empty warning string
// (MemoryWarningPrefix-prefixed) if the estimated log size now exceeds
// limitMB; the operation is recorded regardless.
func (v *VersionController) AddOperation(forward Op, revert *Op) string {
	id := uuid.NewString()

	if v.current != "" {
		if idx := v.indexOf(v.current); idx != -1 {
			for _, dropped := range v.ops[idx+1:] {
				delete(v.recs, dropped)
			}
			v.ops = v.ops[:idx+1]
		}
	}

	v.ops = append(v.ops, id)
	v.recs[id] = opRecord{forward: forward, revert: revert}
	v.current = id

	if mb := v.estimateMemoryMB(); mb > v.limitMB {
		return fmt.Sprintf("%s%.1f MB exceeds limit of %.1f MB", MemoryWarningPrefix, mb, v.limitMB)
	}
	return ""
}

// ForwardOne applies the op after current (redo), advancing current, if
// one exists.
func (v *VersionController) ForwardOne(apply func(Op)) {
	curIdx := v.indexOf(v.current)
	nextIdx := curIdx + 1
	if nextIdx >= len(v.ops) {
		return
	}
	id := v.ops[nextIdx]
	rec, ok := v.recs[id]
	if !ok {
		return
	}
	apply(rec.forward)
	v.current = id
}

// RevertOne applies current's revert op (undo), if it has one, and moves
// current back one slot, if current is not already at position 0 (or unset).
func (v *VersionController) RevertOne(apply func(Op)) {
	curIdx := v.indexOf(v.current)
	if curIdx <= 0 {
		return
	}
	if rec, ok := v.recs[v.current]; ok && rec.revert != nil {
		apply(*rec.revert)
	}
	v.current = v.ops[curIdx-1]
}

// ToVersion walks forward or backward from current until it reaches
// target, applying each intervening op via apply. Returns ErrUnknownVersion
// if target is not in the log.
func (v *VersionController) ToVersion(target string, apply func(Op)) error {
	ti := v.indexOf(target)
	if ti == -1 {
		return fmt.Errorf("%w of %s", ErrUnknownVersion, target)
	}

	ci := v.indexOf(v.current) // -1 means "before 0", matching an unset current
	for ci != ti {
		if ci > ti {
			v.RevertOne(apply)
			ci--
		} else {
			v.ForwardOne(apply)
			ci++
		}
	}
	return nil
}

// PopOperation removes up to n records. The natural pop end is the head,
// unless current is the head, in which case the tail is popped instead —
// an idiosyncrasy of the original implementation preserved here
// deliberately (see DESIGN.md). current is rebound to the last remaining
// id if it was among those removed.
func (v *VersionController) PopOperation(n int) []Op {
	var out []Op
	for i := 0; i < n && len(v.ops) > 0; i++ {
		popIdx := 0
		if v.current != "" && v.ops[0] == v.current {
			popIdx = len(v.ops) - 1
		}
		id := v.ops[popIdx]
		v.ops = append(v.ops[:popIdx], v.ops[popIdx+1:]...)
		if rec, ok := v.recs[id]; ok {
			out = append(out, rec.forward)
			delete(v.recs, id)
		}
	}
	if v.indexOf(v.current) == -1 {
		if len(v.ops) > 0 {
			v.current = v.ops[len(v.ops)-1]
		} else {
			v.current = ""
		}
	}
	return out
}
