package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default file name parts of the data directory layout.
const (
	DefaultGeoClass = "db"
	DefaultLocName  = "canada"
)

// DataDir resolves input and output files inside a data directory.
type DataDir struct {
	Root     string
	GeoClass string
	LocName  string
}

// NewDataDir returns a DataDir rooted at root with the default name parts.
func NewDataDir(root string) *DataDir {
	return &DataDir{Root: root, GeoClass: DefaultGeoClass, LocName: DefaultLocName}
}

func (d *DataDir) stem(distance int, units string) string {
	return fmt.Sprintf("%s-%s-%d%s", d.GeoClass, d.LocName, distance, units)
}

// GeodesicPath is the default input file for a buffer distance such as 30 km.
func (d *DataDir) GeodesicPath(distance int, units string) string {
	return filepath.Join(d.Root, d.stem(distance, units)+"-geodesic.db")
}

// NetworkPath is the default output file for a buffer distance.
func (d *DataDir) NetworkPath(distance int, units string) string {
	return filepath.Join(d.Root, d.stem(distance, units)+"-network.db")
}

// Resolve returns name unchanged when it is absolute or contains a
// directory, and joins it to the data directory otherwise.
func (d *DataDir) Resolve(name string) string {
	if name == "" || filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(d.Root, name)
}

// Ensure creates the data directory if it does not exist.
func (d *DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// FileType determines the input type from a file extension.
func FileType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	default:
		return "unknown"
	}
}
