package utils

import (
	"path"
	"strconv"
	"strings"
)

// StagingPath is where one version of a staged photo lives in storage
func StagingPath(workspace, photoID string, version int) string {
	return path.Join("staging", workspace, photoID+"-v"+strconv.Itoa(version))
}

// CleanFileName keeps the base name and drops characters that would break
// a Content-Disposition header
func CleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "photo.jpg"
	}
	return name
}

func StringToFloat64(in string, def float64) float64 {
	f, err := strconv.ParseFloat(in, 64)
	if err != nil {
		return def
	}
	return f
}
