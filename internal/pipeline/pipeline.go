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

// Package pipeline orchestrates one analysis run: container opening,
// channel extraction, interval reconciliation, temporal median filtering,
// flow estimation, speed conversion and output writing, per input file.
// Failures are fatal per file only; the batch continues.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"cellflow/internal/channel"
	"cellflow/internal/draw"
	"cellflow/internal/flow"
	"cellflow/internal/imagej"
	"cellflow/internal/mmtiff"
	"cellflow/internal/ops"
)

// Parameters of an analysis run.
type Params struct {
	MedianWindow int32 // gliding temporal median window, in frames
	Flow         flow.Params
	Overlay      draw.Options

	Histogram bool // per-frame speed histograms
	Bins      int

	// Relative tolerance for the frame interval sanity check.
	Tolerance float64

	// Write a direction-coded preview of the first flow pair.
	DirectionPreview bool

	// Write a 16-bit grayscale preview of the first median-filtered frame.
	MedianPreview bool
}

func DefaultParams() Params {
	return Params{
		MedianWindow: 3,
		Flow:         flow.DefaultParams(),
		Overlay:      draw.DefaultOptions(),
		Bins:         10,
		Tolerance:    channel.DefaultIntervalTolerance,
	}
}

// Outcome of one input file.
type FileResult struct {
	FileName  string
	Label     string
	Err       error
	Elapsed   time.Duration
	MeanUmMin float64 // mean of per-frame mean speeds
}

// Analyzes each input file in order and writes the outputs to outDir. A
// failing file is recorded in its result and does not abort the batch.
func AnalyzeFiles(fileNames []string, outDir string, p Params, est flow.Estimator, c *ops.Context) []FileResult {
	fmt.Fprintf(c.Log, "using up to %d threads and %d MB of memory\n", c.MaxThreads, c.MemoryMB)

	results := make([]FileResult, 0, len(fileNames))
	for _, fileName := range fileNames {
		start := time.Now()
		label := Label(fileName)
		fmt.Fprintf(c.Log, "working on %s as %s\n", fileName, label)

		mean, err := analyzeFile(fileName, label, outDir, p, est, c)
		if err != nil {
			fmt.Fprintf(c.Log, "%s: FAILED: %s\n", label, err)
		}
		results = append(results, FileResult{
			FileName:  fileName,
			Label:     label,
			Err:       err,
			Elapsed:   time.Since(start),
			MeanUmMin: mean,
		})
	}

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	fmt.Fprintf(c.Log, "batch done: %d of %d files analyzed\n", ok, len(results))
	return results
}

// Derives the output label from an input file name, dropping the
// Micro-Manager ".ome.tif" suffix.
func Label(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, ".tif")
	base = strings.TrimSuffix(base, ".ome")
	return base
}

func analyzeFile(fileName, label, outDir string, p Params, est flow.Estimator, c *ops.Context) (meanSpeed float64, err error) {
	f, err := mmtiff.Open(fileName)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ch0, err := channel.New(f, 0, 0, label+"_Ch1")
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(c.Log, "%s: intended interval %.2f s, pixel size %.3f um\n",
		ch0.Name, ch0.FIntervalMs/1000, ch0.PixelSizeUm)

	// use the actual acquisition timing if it diverges from the settings
	if fintervalMs, replaced := ch0.ReconcileInterval(p.Tolerance, c.Log); replaced {
		ch0.OverrideInterval(fintervalMs)
	}
	scaler := flow.Scaler(ch0.PixelSizeUm, ch0.FIntervalMs)
	fintervalS := ch0.FIntervalMs / 1000

	med, err := ch0.TemporalMedian(0, 0, p.MedianWindow, false, c)
	if err != nil {
		return 0, err
	}

	field, err := flow.Compute(med, est, p.Flow, c)
	if err != nil {
		return 0, err
	}

	speeds, err := flow.ToSpeed(field, scaler, flow.SpeedOptions{
		Histogram: p.Histogram,
		Average:   true,
		Bins:      p.Bins,
	})
	if err != nil {
		return 0, err
	}

	overlayOpt := p.Overlay
	overlayOpt.Scaler = scaler
	overlay, err := draw.Overlay(field, med, overlayOpt)
	if err != nil {
		return 0, err
	}

	// dual-channel inputs carry the second channel alongside the overlay
	overlayPlanes := make([][]uint8, 0, 2*overlay.Frames)
	overlayName := filepath.Join(outDir, label+"_flow.tif")
	numChannels := int32(1)
	if f.Summary.Channels == 2 {
		var planes [][]uint8
		if planes, err = secondChannelPlanes(f, label, field.Pairs, p, c); err != nil {
			return 0, err
		}
		for t := int32(0); t < overlay.Frames; t++ {
			overlayPlanes = append(overlayPlanes, overlay.Frame(t), planes[t])
		}
		overlayName = filepath.Join(outDir, label+"_2Chan_flow.tif")
		numChannels = 2
	} else {
		for t := int32(0); t < overlay.Frames; t++ {
			overlayPlanes = append(overlayPlanes, overlay.Frame(t))
		}
	}

	// all computation succeeded; only now touch the output directory
	md := imagej.Metadata{
		Unit:        "um",
		FIntervalS:  roundTo(fintervalS, 2),
		TUnit:       "s",
		Frames:      speeds.Frames,
		Slices:      1,
		Channels:    1,
		PixelSizeUm: ch0.PixelSizeUm,
	}
	if err = imagej.WriteFloat32(filepath.Join(outDir, label+"_Ch1_speeds.tif"), speeds.Stack, md); err != nil {
		return 0, err
	}
	if err = writeSpeedCSV(filepath.Join(outDir, label+"_Ch1_speeds.csv"), speeds.AvgSpeeds, p.MedianWindow, fintervalS); err != nil {
		return 0, err
	}

	md.Channels = numChannels
	md.Info = string(f.Summary.Raw)
	if err = imagej.WriteUint8(overlayName, overlayPlanes, overlay.Height, overlay.Width, md); err != nil {
		return 0, err
	}

	if p.DirectionPreview {
		rgb := draw.DirectionFrame(field, 0)
		if err = imagej.WriteRGBPreview(filepath.Join(outDir, label+"_dirmap.tif"), rgb, field.Width, field.Height); err != nil {
			return 0, err
		}
	}
	if p.MedianPreview {
		min, max := med.MinMax()
		if err = imagej.WriteGrayPreview16(filepath.Join(outDir, label+"_median.tif"),
			med.Frame(0), med.Width, med.Height, min, max); err != nil {
			return 0, err
		}
	}

	avg64 := make([]float64, len(speeds.AvgSpeeds))
	for i, v := range speeds.AvgSpeeds {
		avg64[i] = float64(v)
	}
	meanSpeed = stat.Mean(avg64, nil)
	fmt.Fprintf(c.Log, "%s: mean frame speed %.3f um/min\n", label, meanSpeed)
	return meanSpeed, nil
}

// Prepares the second channel of a dual-channel acquisition for the
// overlay output: temporal median, normalization to 8 bit with a 10% low
// clip, and the last frame dropped to match the flow's reduced length.
func secondChannelPlanes(f *mmtiff.File, label string, pairs int32, p Params, c *ops.Context) ([][]uint8, error) {
	ch1, err := channel.New(f, 1, 0, label+"_Ch2")
	if err != nil {
		return nil, err
	}
	med, err := ch1.TemporalMedian(0, 0, p.MedianWindow, false, c)
	if err != nil {
		return nil, err
	}
	norm := draw.Normalize8Bit(med, 10, 0)
	if norm.Frames < pairs {
		return nil, fmt.Errorf("%s: median stack has %d frames, flow needs %d", ch1.Name, norm.Frames, pairs)
	}
	planes := make([][]uint8, pairs)
	for t := int32(0); t < pairs; t++ {
		planes[t] = norm.Frame(t)
	}
	return planes, nil
}

func roundTo(v float64, digits int) float64 {
	pow := 1.0
	for i := 0; i < digits; i++ {
		pow *= 10
	}
	return float64(int64(v*pow+0.5)) / pow
}
