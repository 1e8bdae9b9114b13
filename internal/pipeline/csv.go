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

package pipeline

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
)

// Writes the per-frame mean speed time series: index column "Time(s)" in
// absolute seconds, offset by the median window so each row carries the
// time of the last frame entering its gliding window, and one value column
// in um/min. Written via temp file and rename, like the TIFF outputs.
func writeSpeedCSV(fileName string, avgSpeeds []float32, medianWindow int32, fintervalS float64) error {
	tmp, err := os.CreateTemp(filepath.Dir(fileName), ".cellflow-*")
	if err != nil {
		return err
	}

	w := csv.NewWriter(tmp)
	err = w.Write([]string{"Time(s)", "AVG_frame_flow_um_per_min"})
	for i, v := range avgSpeeds {
		if err != nil {
			break
		}
		t := (float64(medianWindow) - 1 + float64(i)) * fintervalS
		err = w.Write([]string{
			strconv.FormatFloat(t, 'g', -1, 64),
			strconv.FormatFloat(float64(v), 'g', -1, 32),
		})
	}
	if err == nil {
		w.Flush()
		err = w.Error()
	}
	if errClose := tmp.Close(); err == nil {
		err = errClose
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fileName)
}
