// Package main calibrates camera intrinsics from a scene description of
// planar target detections.
package main

import (
	"context"
	"image/color"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/rennybird/Vilota/calibrate"
	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
	"github.com/rennybird/Vilota/scene"
)

var logger = golog.NewDevelopmentLogger("calibrate")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ScenePath   string  `flag:"scene,required,usage=path to the scene description JSON"`
	OutputPath  string  `flag:"out,usage=output path prefix for calibration results"`
	CameraModel string  `flag:"model,default=PINHOLE,usage=camera model to calibrate"`
	GridSize    float64 `flag:"grid-size,default=0.01,usage=minimum distance between accepted camera positions"`
	MinViews    int     `flag:"min-views,default=10,usage=fewest views required for calibration"`
	BoardPoints bool    `flag:"optimize-board-points,usage=also refine the target's 3D points"`
	Verbose     bool    `flag:"verbose"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Verbose {
		logger = golog.NewDebugLogger("calibrate")
	}
	kind, err := camera.ParseModelKind(argsParsed.CameraModel)
	if err != nil {
		return err
	}

	sc, err := scene.ReadSceneFile(argsParsed.ScenePath)
	if err != nil {
		return err
	}
	ds := dataset.New()
	if err := sc.Populate(ds); err != nil {
		return err
	}
	batches, err := sc.Batches()
	if err != nil {
		return err
	}

	ingestCfg := calibrate.DefaultIngestConfig(sc.ImageWidth, sc.ImageHeight, kind)
	ingestCfg.FPS = sc.CameraFPS
	ingestCfg.GridSize = argsParsed.GridSize
	if _, err := calibrate.Ingest(ds, batches, ingestCfg, logger); err != nil {
		return err
	}

	if argsParsed.OutputPath != "" {
		if err := writePLY(argsParsed.OutputPath+"_ransac_poses.ply", ds); err != nil {
			return err
		}
	}

	opts := calibrate.DefaultOptions()
	opts.MinViews = argsParsed.MinViews
	opts.OptimizeBoardPoints = argsParsed.BoardPoints
	if _, err := calibrate.Calibrate(ctx, ds, opts, logger); err != nil {
		return errors.Wrap(err, "calibration failed")
	}

	result, err := calibrate.Report(ds, dataset.DefaultGroup, sc.CameraFPS)
	if err != nil {
		return err
	}
	logger.Infow("calibration finished",
		"model", result.Kind.String(),
		"focal_length_px", result.FocalLength,
		"principal_point_x", result.PrincipalPointX,
		"principal_point_y", result.PrincipalPointY,
		"rms_reproj_error", result.RMSError,
		"views", result.NumViews)

	if argsParsed.OutputPath == "" {
		return nil
	}
	if err := writePLY(argsParsed.OutputPath+"_final_poses.ply", ds); err != nil {
		return err
	}
	//nolint:gosec
	out, err := os.Create(argsParsed.OutputPath + ".json")
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(out.Close)
	return scene.WriteCalibration(out, result)
}

func writePLY(path string, ds *dataset.Dataset) error {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return scene.WritePositionsPLY(f, scene.ViewPositions(ds), color.NRGBA{R: 255})
}
