package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/logex"
)

// parseSize accepts a byte count with an optional k, m, g or b suffix.
func parseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, logex.NewError("empty size")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1024
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1024 * 1024
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1024 * 1024 * 1024
		ss = strings.TrimSuffix(ss, "g")
	case strings.HasSuffix(ss, "b"):
		ss = strings.TrimSuffix(ss, "b")
	}
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, logex.Trace(err)
	}
	n := int64(v * float64(mult))
	if n <= 0 {
		return 0, logex.NewErrorf("size must be positive: %q", s)
	}
	return n, nil
}

func human(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%dG", b/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%dM", b/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%dK", b/1024)
	}
	return fmt.Sprintf("%dB", b)
}
