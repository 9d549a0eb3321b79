package model

// Sight is what one empire observes after movement: the foreign stars and
// fleets inside its scan coverage. Own assets are always visible and are
// not listed.
type Sight struct {
	Stars  []StarID
	Fleets []FleetKey
}

// SeesStar reports whether id is in the sight list.
func (s Sight) SeesStar(id StarID) bool {
	for _, v := range s.Stars {
		if v == id {
			return true
		}
	}
	return false
}

// SeesFleet reports whether key is in the sight list.
func (s Sight) SeesFleet(key FleetKey) bool {
	for _, v := range s.Fleets {
		if v == key {
			return true
		}
	}
	return false
}
