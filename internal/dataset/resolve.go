package dataset

import (
	"strconv"
	"strings"
)

// SynthesizeFilename returns the conventional partition file name.
func SynthesizeFilename(year int, region string) string {
	return "accidents_" + strconv.Itoa(year) + "_" + region + ".geojson"
}

// ParseFilename is the inverse of SynthesizeFilename.
func ParseFilename(file string) (Descriptor, bool) {
	rest, ok := strings.CutPrefix(file, "accidents_")
	if !ok {
		return Descriptor{}, false
	}
	rest, ok = strings.CutSuffix(rest, ".geojson")
	if !ok {
		return Descriptor{}, false
	}
	yearPart, region, ok := strings.Cut(rest, "_")
	if !ok || region == "" {
		return Descriptor{}, false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Descriptor{}, false
	}
	return Descriptor{File: file, Year: year, Region: region}, true
}

// Resolve maps a selection to partition descriptors. With a non-empty index
// the matching entries are returned in index order; otherwise names are
// synthesised region by region, year by year.
func Resolve(sel Selection, index Index) []Descriptor {
	sel = NewSelection(sel.Years, sel.Regions)
	if sel.Empty() {
		return nil
	}

	if len(index) > 0 {
		years := make(map[int]bool, len(sel.Years))
		for _, y := range sel.Years {
			years[y] = true
		}
		regions := make(map[string]bool, len(sel.Regions))
		for _, r := range sel.Regions {
			regions[r] = true
		}

		var out []Descriptor
		seen := make(map[string]bool)
		for _, d := range index {
			if years[d.Year] && regions[d.Region] && !seen[d.File] {
				seen[d.File] = true
				out = append(out, d)
			}
		}
		return out
	}

	out := make([]Descriptor, 0, len(sel.Years)*len(sel.Regions))
	for _, region := range sel.Regions {
		for _, year := range sel.Years {
			out = append(out, Descriptor{
				File:   SynthesizeFilename(year, region),
				Year:   year,
				Region: region,
			})
		}
	}
	return out
}
