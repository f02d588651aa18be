package util

import (
	"math"
	"time"
)

func Now() uint64 {
	return uint64(time.Now().UnixNano())
}

func SaturatingSub(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return 0
}

func SaturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
