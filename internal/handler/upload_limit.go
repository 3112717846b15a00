package handler

import "strconv"

// formatUploadLimit renders a byte limit for error messages, in whole MB
// below 1GB and in GB with one decimal above.
func formatUploadLimit(bytes int64) string {
	const (
		mb = 1024 * 1024
		gb = 1024 * mb
	)
	switch {
	case bytes <= 0:
		return "0MB"
	case bytes >= gb:
		return strconv.FormatFloat(float64(bytes)/gb, 'f', 1, 64) + "GB"
	}
	value := bytes / mb
	if value <= 0 {
		value = 1
	}
	return strconv.FormatInt(value, 10) + "MB"
}
