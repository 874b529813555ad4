package util

import (
	"encoding/json"
	"os"
	"strings"
)

// JSONStringify converts any value to a JSON string.
func JSONStringify(val any) string {
	buf, _ := json.Marshal(val)
	return string(buf)
}

// Exists returns true if the filename or directory specified by fn exists.
func Exists(fn string) bool {
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		return false
	}
	return true
}

// SliceContains returns true if the slice contains the value.
func SliceContains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}

// IsLocalhost returns true if the URL is localhost or 127.0.0.1 or 0.0.0.0.
func IsLocalhost(url string) bool {
	// technically 127.0.0.0 – 127.255.255.255 is the loopback range but most people use 127.0.0.1
	return strings.Contains(url, "localhost") || strings.Contains(url, "127.0.0.1") || strings.Contains(url, "0.0.0.0")
}
