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

package channel

import (
	"errors"
	"fmt"
	"regexp"

	"cellflow/internal/mmtiff"
)

// ErrUnknownVersion is returned when the acquisition metadata does not
// match any of the supported Micro-Manager versions.
var ErrUnknownVersion = errors.New("unrecognized MicroManagerVersion")

// Micro-Manager versions verified against real acquisitions:
// 1.4.23 20180220, 2.0.0-gamma1 20190527, 2.0.0-beta3 20180923.
// 1.4 and 2.0-gamma share their metadata layout; 2.0-beta stores the frame
// interval in Summary.WaitInterval and the pixel size outside the summary
// block, in the per-page metadata.
var reOneFour = regexp.MustCompile(`1\.4\.\d`)
var reGamma = regexp.MustCompile(`gamma`)
var reBeta = regexp.MustCompile(`beta`)

// Determines pixel size (um) and intended frame interval (ms) from the
// acquisition metadata of an opened file. Pure; fails on unknown versions.
func ResolveAcquisitionParams(f *mmtiff.File) (pixelSizeUm, fintervalMs float64, err error) {
	version := f.Summary.Version

	switch {
	case reBeta.MatchString(version):
		pixelSizeUm = 0
		if len(f.Pages) > 0 {
			pixelSizeUm = f.Pages[0].PixelSizeUm
		}
		return pixelSizeUm, f.Summary.WaitInterval, nil

	case reOneFour.MatchString(version), reGamma.MatchString(version):
		return f.Summary.PixelSizeUm, f.Summary.IntervalMs, nil
	}

	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
}
