package util

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const SysCPUDir = "/sys/devices/system/cpu/"

// CacheLevel identifies a shared cache domain.
type CacheLevel int32

const (
	L2 CacheLevel = 2
	L3 CacheLevel = 3
)

// Topology maps a cache level to its CPU groups, keyed by the raw shared_cpu_list string.
type Topology map[CacheLevel]map[string][]int

// ParseCPUList parses a kernel cpu list such as "0-3,8,10-11".
func ParseCPUList(cpuList string) ([]int, error) {
	var result []int
	cpuList = strings.TrimSpace(cpuList)
	if cpuList == "" {
		return result, nil
	}

	for _, segment := range strings.Split(cpuList, ",") {
		segment = strings.TrimSpace(segment)
		if strings.Contains(segment, "-") {
			bounds := strings.Split(segment, "-")
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range: %s", segment)
			}

			start, err := strconv.Atoi(bounds[0])
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %s", bounds[0])
			}

			end, err := strconv.Atoi(bounds[1])
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %s", bounds[1])
			}

			if start > end {
				return nil, fmt.Errorf("start greater than end in range: %s", segment)
			}
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
		} else {
			num, err := strconv.Atoi(segment)
			if err != nil {
				return nil, fmt.Errorf("invalid number: %s", segment)
			}
			result = append(result, num)
		}
	}

	return result, nil
}

// GetTopology walks the sysfs cpu directory rooted at cpuDir and groups CPUs by L2/L3 cache.
func GetTopology(cpuDir string) (Topology, error) {
	topo := Topology{
		L2: map[string][]int{},
		L3: map[string][]int{},
	}

	err := filepath.WalkDir(cpuDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, "shared_cpu_list") {
			return nil
		}
		var level CacheLevel
		switch {
		case strings.Contains(path, "/cache/index2/"):
			level = L2
		case strings.Contains(path, "/cache/index3/"):
			level = L3
		default:
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		key := strings.TrimSpace(string(content))
		cpus, err := ParseCPUList(key)
		if err != nil {
			// skip malformed entries, the domain is just not enabled
			return nil
		}
		topo[level][key] = cpus
		return nil
	})

	return topo, err
}

// SiblingPairs returns every (cpu, sibling) pair sharing a cache at the given level, in a
// stable order.
func (t Topology) SiblingPairs(level CacheLevel) [][2]int {
	keys := make([]string, 0, len(t[level]))
	for k := range t[level] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs [][2]int
	for _, k := range keys {
		group := t[level][k]
		for _, cpu := range group {
			for _, sib := range group {
				pairs = append(pairs, [2]int{cpu, sib})
			}
		}
	}
	return pairs
}
