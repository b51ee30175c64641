package scene

import (
	"bufio"
	"fmt"
	"image/color"
	"io"

	"github.com/golang/geo/r3"

	"github.com/rennybird/Vilota/dataset"
)

// WritePositionsPLY writes positions as an ascii PLY colored point list, one
// vertex per position. Useful for eyeballing the camera trajectory before and
// after optimization.
func WritePositionsPLY(w io.Writer, positions []r3.Vector, c color.NRGBA) error {
	buf := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(buf,
		"ply\nformat ascii 1.0\nelement vertex %d\n"+
			"property double x\nproperty double y\nproperty double z\n"+
			"property uchar red\nproperty uchar green\nproperty uchar blue\n"+
			"end_header\n", len(positions)); err != nil {
		return err
	}
	for _, p := range positions {
		if _, err := fmt.Fprintf(buf, "%v %v %v %d %d %d\n", p.X, p.Y, p.Z, c.R, c.G, c.B); err != nil {
			return err
		}
	}
	return buf.Flush()
}

// ViewPositions collects the camera positions of every view, in view id order.
func ViewPositions(ds *dataset.Dataset) []r3.Vector {
	ids := ds.ViewIDs()
	out := make([]r3.Vector, 0, len(ids))
	for _, id := range ids {
		out = append(out, ds.View(id).Position)
	}
	return out
}
