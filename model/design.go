package model

// DesignSlot places Count copies of a catalog component in a design.
type DesignSlot struct {
	Component string
	Count     int
}

// Design is a named ship blueprint. Designs referenced by built ships or
// queued production are immutable.
type Design struct {
	Name  string
	Owner EmpireID // empty for designs shared by every empire
	Hull  string
	Slots []DesignSlot
}

// Clone returns a deep copy of d.
func (d *Design) Clone() *Design {
	if d == nil {
		return nil
	}
	out := *d
	out.Slots = cloneSlice(d.Slots)
	return &out
}

// UsableBy reports whether empire may build ships of this design.
func (d *Design) UsableBy(empire EmpireID) bool {
	return d != nil && (d.Owner == "" || d.Owner == empire)
}

// DesignKey addresses a design by owner and name. Shared designs have an
// empty owner.
type DesignKey struct {
	Owner EmpireID
	Name  string
}

// Key returns the lookup key of d.
func (d *Design) Key() DesignKey { return DesignKey{Owner: d.Owner, Name: d.Name} }

// Less orders keys by owner then name.
func (k DesignKey) Less(o DesignKey) bool {
	if k.Owner != o.Owner {
		return k.Owner < o.Owner
	}
	return k.Name < o.Name
}
