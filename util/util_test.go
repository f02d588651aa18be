package util

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUList(t *testing.T) {
	cpus, err := ParseCPUList("0-3,8, 10-11\n")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 8, 10, 11}, cpus)

	cpus, err = ParseCPUList("")
	require.NoError(t, err)
	assert.Empty(t, cpus)

	for _, bad := range []string{"3-1", "a", "1-2-3", "1-x"} {
		_, err := ParseCPUList(bad)
		assert.Error(t, err, bad)
	}
}

func writeCache(t *testing.T, root string, cpu int, index int, list string) {
	t.Helper()
	dir := filepath.Join(root, "cpu"+strconv.Itoa(cpu), "cache", "index"+strconv.Itoa(index))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared_cpu_list"), []byte(list+"\n"), 0o644))
}

func TestGetTopology(t *testing.T) {
	root := t.TempDir()
	writeCache(t, root, 0, 2, "0-1")
	writeCache(t, root, 1, 2, "0-1")
	writeCache(t, root, 2, 2, "2-3")
	writeCache(t, root, 0, 3, "0-3")
	writeCache(t, root, 0, 1, "0")

	topo, err := GetTopology(root)
	require.NoError(t, err)
	assert.Len(t, topo[L2], 2)
	assert.Equal(t, []int{0, 1}, topo[L2]["0-1"])
	assert.Equal(t, []int{2, 3}, topo[L2]["2-3"])
	assert.Equal(t, []int{0, 1, 2, 3}, topo[L3]["0-3"])

	pairs := topo.SiblingPairs(L2)
	assert.Len(t, pairs, 8)
	assert.Equal(t, [2]int{0, 0}, pairs[0])
	assert.Equal(t, [2]int{3, 3}, pairs[7])
}

func TestSaturatingArithmetic(t *testing.T) {
	assert.EqualValues(t, 0, SaturatingSub(1, 2))
	assert.EqualValues(t, 1, SaturatingSub(3, 2))
	assert.EqualValues(t, uint64(math.MaxUint64), SaturatingAdd(math.MaxUint64-1, 5))
	assert.EqualValues(t, 7, SaturatingAdd(3, 4))
}
