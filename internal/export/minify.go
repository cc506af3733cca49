package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Minify removes insignificant whitespace from a JSON document. Non-ASCII
// text is kept as is.
func Minify(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("minifying: %w", err)
	}
	return buf.Bytes(), nil
}

// MinifyResult reports one minified file.
type MinifyResult struct {
	Path   string
	Before int64
	After  int64
	Err    error
}

// Reduction is the size saving in percent.
func (r MinifyResult) Reduction() float64 {
	if r.Before == 0 {
		return 0
	}
	return float64(r.Before-r.After) / float64(r.Before) * 100
}

// MinifyFile rewrites a .geojson file in compact form.
func MinifyFile(path string) MinifyResult {
	res := MinifyResult{Path: path}
	if !strings.EqualFold(filepath.Ext(path), ".geojson") {
		res.Err = fmt.Errorf("%s is not a .geojson file", path)
		return res
	}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Before = int64(len(data))

	out, err := Minify(data)
	if err != nil {
		res.Err = err
		return res
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		res.Err = err
		return res
	}
	res.After = int64(len(out))
	return res
}

// MinifyDir minifies every .geojson file directly inside dir. A file that
// fails does not stop the others.
func MinifyDir(dir string) ([]MinifyResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.geojson"))
	if err != nil {
		return nil, err
	}
	results := make([]MinifyResult, 0, len(matches))
	for _, path := range matches {
		results = append(results, MinifyFile(path))
	}
	return results, nil
}
