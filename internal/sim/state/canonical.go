package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/signalsfoundry/stellar-empires/model"
)

// canonicalDoc is the stable serialised form of a Galaxy: every collection
// is a slice in canonical order and every map is string-keyed, which
// encoding/json writes in sorted key order.
type canonicalDoc struct {
	Seed       uint64          `json:"seed"`
	Turn       int             `json:"turn"`
	Empires    []*model.Empire `json:"empires"`
	Stars      []*model.Star   `json:"stars"`
	Fleets     []*model.Fleet  `json:"fleets"`
	Designs    []*model.Design `json:"designs"`
	Visibility []visibilityDoc `json:"visibility"`
}

type visibilityDoc struct {
	Empire model.EmpireID `json:"empire"`
	Sight  model.Sight    `json:"sight"`
}

// MarshalCanonical encodes g deterministically: two galaxies with equal
// content always produce identical bytes.
func (g *Galaxy) MarshalCanonical() ([]byte, error) {
	doc := canonicalDoc{Seed: g.Seed, Turn: g.Turn}
	for _, id := range g.EmpireIDs() {
		doc.Empires = append(doc.Empires, g.empires[id])
	}
	for _, id := range g.StarIDs() {
		doc.Stars = append(doc.Stars, g.stars[id])
	}
	for _, k := range g.FleetKeys() {
		doc.Fleets = append(doc.Fleets, g.fleets[k])
	}
	doc.Designs = g.Designs()
	for _, id := range g.EmpireIDs() {
		if s, ok := g.visibility[id]; ok {
			doc.Visibility = append(doc.Visibility, visibilityDoc{Empire: id, Sight: s})
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal galaxy: %w", err)
	}
	return raw, nil
}

// UnmarshalCanonical rebuilds a Galaxy from MarshalCanonical output.
func UnmarshalCanonical(raw []byte) (*Galaxy, error) {
	var doc canonicalDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal galaxy: %w", err)
	}
	g := NewGalaxy(doc.Seed)
	g.Turn = doc.Turn
	for _, e := range doc.Empires {
		if err := g.AddEmpire(e); err != nil {
			return nil, err
		}
	}
	for _, s := range doc.Stars {
		if err := g.AddStar(s); err != nil {
			return nil, err
		}
	}
	for _, f := range doc.Fleets {
		if err := g.AddFleet(f); err != nil {
			return nil, err
		}
	}
	for _, d := range doc.Designs {
		if err := g.AddDesign(d); err != nil {
			return nil, err
		}
	}
	for _, v := range doc.Visibility {
		g.visibility[v.Empire] = v.Sight
	}
	return g, nil
}

// Digest is the blake3 hash of the canonical encoding, hex encoded.
func (g *Galaxy) Digest() (string, error) {
	raw, err := g.MarshalCanonical()
	if err != nil {
		return "", err
	}
	return DigestBytes(raw), nil
}

// DigestBytes hashes an already encoded galaxy.
func DigestBytes(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
