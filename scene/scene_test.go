package scene

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rennybird/Vilota/dataset"
)

const sceneJSON = `{
 "image_width": 1920,
 "image_height": 1080,
 "camera_fps": 30.0,
 "scene_pts": {
  "0": [0.0, 0.0, 0.0],
  "1": [0.04, 0.0, 0.0],
  "9": [0.0, 0.04, 0.0]
 },
 "views": {
  "1500000": {
   "image_points": {
    "0": [960.5, 540.25],
    "1": [1013.0, 540.5]
   }
  },
  "1533333": {
   "image_points": {
    "0": [958.0, 541.0]
   }
  }
 }
}`

func TestReadScene(t *testing.T) {
	sc, err := ReadScene(strings.NewReader(sceneJSON))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sc.ImageWidth, test.ShouldEqual, 1920)
	test.That(t, sc.ImageHeight, test.ShouldEqual, 1080)
	test.That(t, sc.CameraFPS, test.ShouldEqual, 30.0)

	points, err := sc.BoardPoints()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 3)
	test.That(t, points[1], test.ShouldResemble, r3.Vector{X: 0.04})

	_, err = ReadScene(strings.NewReader(`{"image_width": 0, "image_height": 1080}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "image size")

	_, err = ReadScene(strings.NewReader(`not json`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSceneBatches(t *testing.T) {
	sc, err := ReadScene(strings.NewReader(sceneJSON))
	test.That(t, err, test.ShouldBeNil)

	batches, err := sc.Batches()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, batches, test.ShouldHaveLength, 2)

	byTimestamp := map[float64]int{}
	for _, b := range batches {
		byTimestamp[b.Timestamp] = len(b.Corners)
	}
	// view keys are microseconds, batch timestamps are seconds
	test.That(t, byTimestamp[1.5], test.ShouldEqual, 2)
	test.That(t, byTimestamp[1.533333], test.ShouldEqual, 1)

	for _, b := range batches {
		if b.Timestamp == 1.5 {
			test.That(t, b.Corners[0].X, test.ShouldEqual, 960.5)
			test.That(t, b.Corners[0].Y, test.ShouldEqual, 540.25)
		}
	}
}

func TestSceneBatchesBadKeys(t *testing.T) {
	sc := &Scene{Views: map[string]rawSceneView{"not-a-number": {}}}
	_, err := sc.Batches()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timestamp")

	sc = &Scene{Views: map[string]rawSceneView{
		"100": {ImagePoints: map[string][]float64{"0": {1, 2, 3}}},
	}}
	_, err = sc.Batches()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "coordinates")
}

func TestScenePopulate(t *testing.T) {
	sc, err := ReadScene(strings.NewReader(sceneJSON))
	test.That(t, err, test.ShouldBeNil)

	ds := dataset.New()
	test.That(t, sc.Populate(ds), test.ShouldBeNil)
	test.That(t, ds.NumPoints(), test.ShouldEqual, 3)
	test.That(t, ds.BoardPoint(9).Position(), test.ShouldResemble, r3.Vector{Y: 0.04})

	// populating twice collides on point ids
	test.That(t, sc.Populate(ds), test.ShouldNotBeNil)
}

func TestWritePositionsPLY(t *testing.T) {
	var buf bytes.Buffer
	positions := []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: -0.5, Y: 0, Z: 0.25}}
	err := WritePositionsPLY(&buf, positions, color.NRGBA{R: 255})
	test.That(t, err, test.ShouldBeNil)

	out := buf.String()
	test.That(t, out, test.ShouldStartWith, "ply\nformat ascii 1.0\nelement vertex 2\n")
	test.That(t, out, test.ShouldContainSubstring, "end_header\n")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	// two vertex lines follow the header
	test.That(t, lines[len(lines)-2], test.ShouldContainSubstring, "1")
	header := strings.SplitN(out, "end_header\n", 2)
	vertexLines := strings.Split(strings.TrimSuffix(header[1], "\n"), "\n")
	test.That(t, vertexLines, test.ShouldHaveLength, 2)
	test.That(t, vertexLines[0], test.ShouldContainSubstring, "255 0 0")
}
