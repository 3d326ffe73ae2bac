package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrMissingColumn = errors.New("registry: missing csv column")

// Column headers, as written by the dashboard export.
var (
	viewerColumns  = []string{"Viewer", "Account_Type", "Total_Gifts", "Last_Gift_Time", "Trust_Level"}
	creatorColumns = []string{"Creator", "Views", "Likes", "Shares", "Points"}
)

// FallbackViewers is used when the viewer file is missing.
func FallbackViewers() []Viewer {
	return []Viewer{{Name: "viewer_1", AccountType: "new", TotalGifts: 0, TrustLevel: "new"}}
}

// FallbackCreators is used when the creator file is missing.
func FallbackCreators() []Creator {
	return []Creator{{Name: "Alice", Views: 1200, Likes: 300, Shares: 10, Points: 120}}
}

// lastGiftLayouts are tried in order when parsing Last_Gift_Time.
var lastGiftLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadFiles reads both tables. A missing file falls back to the built-in
// single-row table and is logged as a warning; any other error is returned.
// Times without a zone are read in loc.
func LoadFiles(viewersPath, creatorsPath string, loc *time.Location, logger *slog.Logger) (*MemoryRegistry, error) {
	viewers, err := loadFile(viewersPath, func(r io.Reader) ([]Viewer, error) { return ParseViewers(r, loc) })
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("viewer file not found, using fallback", "path", viewersPath)
		viewers = FallbackViewers()
	} else if err != nil {
		return nil, err
	}

	creators, err := loadFile(creatorsPath, ParseCreators)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("creator file not found, using fallback", "path", creatorsPath)
		creators = FallbackCreators()
	} else if err != nil {
		return nil, err
	}

	logger.Info("registry loaded", "viewers", len(viewers), "creators", len(creators))
	return NewMemoryRegistry(viewers, creators), nil
}

func loadFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-configured path
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ParseViewers reads a viewer table.
func ParseViewers(r io.Reader, loc *time.Location) ([]Viewer, error) {
	records, idx, err := readTable(r, viewerColumns)
	if err != nil {
		return nil, err
	}

	viewers := make([]Viewer, 0, len(records))
	for line, rec := range records {
		v := Viewer{
			Name:        rec[idx["Viewer"]],
			AccountType: rec[idx["Account_Type"]],
			TrustLevel:  rec[idx["Trust_Level"]],
		}
		if v.Name == "" {
			continue
		}
		if v.TotalGifts, err = parseCount(rec[idx["Total_Gifts"]]); err != nil {
			return nil, fmt.Errorf("row %d Total_Gifts: %w", line+2, err)
		}
		if raw := rec[idx["Last_Gift_Time"]]; raw != "" {
			t, err := parseTime(raw, loc)
			if err != nil {
				return nil, fmt.Errorf("row %d Last_Gift_Time: %w", line+2, err)
			}
			v.LastGiftTime = &t
		}
		viewers = append(viewers, v)
	}
	return viewers, nil
}

// ParseCreators reads a creator table.
func ParseCreators(r io.Reader) ([]Creator, error) {
	records, idx, err := readTable(r, creatorColumns)
	if err != nil {
		return nil, err
	}

	creators := make([]Creator, 0, len(records))
	for line, rec := range records {
		c := Creator{Name: rec[idx["Creator"]]}
		if c.Name == "" {
			continue
		}
		fields := []struct {
			col string
			dst *int64
		}{
			{"Views", &c.Views},
			{"Likes", &c.Likes},
			{"Shares", &c.Shares},
			{"Points", &c.Points},
		}
		for _, f := range fields {
			if *f.dst, err = parseCount(rec[idx[f.col]]); err != nil {
				return nil, fmt.Errorf("row %d %s: %w", line+2, f.col, err)
			}
		}
		creators = append(creators, c)
	}
	return creators, nil
}

// readTable returns the data rows and a header index. Columns may appear in
// any order; extra columns are ignored.
func readTable(r io.Reader, required []string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		// Pad short rows so index lookups stay in range.
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return rows, idx, nil
}

// parseCount accepts integers and float-formatted integers ("120.0").
// Empty and NaN cells read as zero.
func parseCount(s string) (int64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) {
		return 0, nil
	}
	return int64(f), nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range lastGiftLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
