package kb

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

func catalogDigest(c *DesignCatalog) string {
	h := blake3.New(32, nil)
	for _, id := range c.hullIDs {
		hull := c.hulls[id]
		fmt.Fprintf(h, "hull|%s|%s|%g|%g|%g|%g|%g|%s:%d\n",
			hull.ID, hull.Name, hull.Mass, hull.Cost, hull.Armor,
			hull.FuelCapacity, hull.CargoCapacity, hull.Requires.Field, hull.Requires.Level)
		for _, s := range hull.Slots {
			fmt.Fprintf(h, "slot|%v|%d\n", s.Kinds, s.Max)
		}
	}
	for _, id := range c.componentIDs {
		comp := c.components[id]
		fmt.Fprintf(h, "component|%s|%s|%g|%g|%s:%d|%T%+v\n",
			comp.ID, comp.Name, comp.Mass, comp.Cost,
			comp.Requires.Field, comp.Requires.Level, comp.Stats, comp.Stats)
	}
	return hex.EncodeToString(h.Sum(nil))
}
