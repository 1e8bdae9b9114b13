// Copyright (C) 2026 The cellflow authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cellflow/internal/channel"
	"cellflow/internal/flow"
	"cellflow/internal/ops"
	"cellflow/internal/pipeline"
)

const version = "0.1.0"

var out = flag.String("out", ".", "write output files to `directory`")
var logFile = flag.String("log", "", "also write log output to `file`")

var window = flag.Int64("window", 3, "gliding temporal median window in frames")
var tolerance = flag.Float64("tolerance", channel.DefaultIntervalTolerance, "relative tolerance for the frame interval sanity check")

var pyrScale = flag.Float64("pyrScale", 0.5, "flow pyramid downscale ratio")
var levels = flag.Int64("levels", 3, "flow pyramid levels")
var winSize = flag.Int64("winSize", 15, "flow averaging window size in pixels")
var iterations = flag.Int64("iterations", 3, "flow iterations per pyramid level")
var polyN = flag.Int64("polyN", 5, "flow polynomial expansion neighborhood size")
var polySigma = flag.Float64("polySigma", 1.2, "flow polynomial expansion smoothing sigma")
var flowFlags = flag.Int64("flowFlags", 0, "flow solver variant flags")

var step = flag.Int64("step", 15, "overlay glyph grid spacing in pixels")
var arrowScale = flag.Float64("arrowScale", 20, "overlay glyph length per px/frame of flow")
var thickness = flag.Int64("thickness", 2, "overlay line thickness in pixels")
var scaleBar = flag.Bool("scalebar", false, "draw a scale bar on the overlay")
var scaleBarLength = flag.Float64("scalebarLength", 1, "physical length represented by the scale bar, in um/min")

var hist = flag.Bool("hist", false, "compute per-frame speed histograms")
var bins = flag.Int64("bins", 10, "speed histogram buckets")
var dirmap = flag.Bool("dirmap", false, "write a direction-coded preview of the first flow pair")
var medpreview = flag.Bool("medpreview", false, "write a grayscale preview of the first median-filtered frame")

var threads = flag.Int64("threads", 0, "number of worker threads, 0=all cores")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"cellflow %s -- dense optical flow analysis of Micro-Manager time lapse stacks\n\n"+
				"usage: %s [options] file.ome.tif ...\n\n", version, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var fileNames []string
	for _, pattern := range flag.Args() {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "no files match %q\n", pattern)
			os.Exit(2)
		}
		fileNames = append(fileNames, matches...)
	}

	var log io.Writer = os.Stdout
	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot create log file: %s\n", err)
			os.Exit(2)
		}
		defer f.Close()
		log = io.MultiWriter(os.Stdout, f)
	}

	c := ops.NewContext(log)
	if *threads > 0 {
		c.MaxThreads = int(*threads)
	}

	p := pipeline.DefaultParams()
	p.MedianWindow = int32(*window)
	p.Tolerance = *tolerance
	p.Histogram = *hist
	p.Bins = int(*bins)
	p.DirectionPreview = *dirmap
	p.MedianPreview = *medpreview
	p.Flow = flow.Params{
		PyrScale:   *pyrScale,
		Levels:     int(*levels),
		WinSize:    int(*winSize),
		Iterations: int(*iterations),
		PolyN:      int(*polyN),
		PolySigma:  *polySigma,
		Flags:      int(*flowFlags),
	}
	p.Overlay.Step = int32(*step)
	p.Overlay.ArrowScale = float32(*arrowScale)
	p.Overlay.LineThickness = int32(*thickness)
	p.Overlay.ScaleBar = *scaleBar
	p.Overlay.ScaleBarPhysical = *scaleBarLength

	results := pipeline.AnalyzeFiles(fileNames, *out, p, flow.Farneback{}, c)
	for _, r := range results {
		if r.Err != nil {
			os.Exit(1)
		}
	}
}
