package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarax/blocksig/internal/checksum"
	"github.com/quantarax/blocksig/internal/signature"
	"github.com/quantarax/blocksig/internal/testutil"
)

func writeSignature(t *testing.T, gen *testutil.FileGenerator, name string, sums ...uint32) string {
	t.Helper()
	var buf bytes.Buffer
	w := signature.NewWriter(&buf)
	records := make([]checksum.Record, len(sums))
	for i, s := range sums {
		records[i] = checksum.Record{Index: uint64(i), Value: s}
	}
	require.NoError(t, w.Write(records))
	require.NoError(t, w.Flush())

	path, err := gen.WriteFile(name, buf.Bytes())
	require.NoError(t, err)
	return path
}

func TestDiffIdentical(t *testing.T) {
	gen := testutil.NewFileGenerator(t, 1)
	a := writeSignature(t, gen, "a.sig", 1, 2, 3)
	b := writeSignature(t, gen, "b.sig", 1, 2, 3)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--pretty=false", a, b}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var d signature.Delta
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &d))
	assert.True(t, d.Unchanged())
	assert.Equal(t, 3, d.OldBlocks)
}

func TestDiffChangedAndAppended(t *testing.T) {
	gen := testutil.NewFileGenerator(t, 2)
	a := writeSignature(t, gen, "a.sig", 1, 2, 3)
	b := writeSignature(t, gen, "b.sig", 1, 9, 3, 4, 5)

	var stdout, stderr bytes.Buffer
	code := run([]string{a, b}, &stdout, &stderr)
	assert.Equal(t, 1, code)

	var d signature.Delta
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &d))
	assert.Equal(t, []uint64{1}, d.Changed)
	assert.Equal(t, 2, d.Appended)
	assert.Zero(t, d.Removed)
}

func TestDiffErrors(t *testing.T) {
	gen := testutil.NewFileGenerator(t, 3)
	a := writeSignature(t, gen, "a.sig", 1)
	truncated, err := gen.WriteFile("bad.sig", []byte{1, 2, 3})
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{a}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{a, truncated}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{a, gen.Path("missing.sig")}, &stdout, &stderr))
	assert.Equal(t, 0, run([]string{"-h"}, &stdout, &stderr))
}

func TestDiffListsChangedBlocksOfInput(t *testing.T) {
	gen := testutil.NewFileGenerator(t, 4)
	data := bytes.Repeat([]byte("0123456789abcdef"), 3*1024/16)
	data = append(data, "tail"...)
	input, err := gen.WriteFile("input.bin", data)
	require.NoError(t, err)

	sums, err := checksum.Sequential(bytes.NewReader(data), 1024)
	require.NoError(t, err)
	require.Len(t, sums, 4)
	a := writeSignature(t, gen, "a.sig", sums[0], sums[1]+1, sums[2])
	b := writeSignature(t, gen, "b.sig", sums...)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--pretty=false", "--input", input, "--block", "1K", a, b}, &stdout, &stderr)
	require.Equal(t, 1, code, stderr.String())

	var r report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &r))
	assert.Equal(t, []uint64{1}, r.Changed)
	assert.Equal(t, 1, r.Appended)
	require.Len(t, r.Blocks, 2)

	assert.Equal(t, blockReport{Index: 1, Offset: 1024, Length: 1024, Checksum: sums[1], Matches: true}, r.Blocks[0])
	assert.Equal(t, blockReport{Index: 3, Offset: 3072, Length: 4, Checksum: sums[3], Matches: true}, r.Blocks[1])
}

func TestDiffInputErrors(t *testing.T) {
	gen := testutil.NewFileGenerator(t, 5)
	a := writeSignature(t, gen, "a.sig", 1)
	b := writeSignature(t, gen, "b.sig", 2)
	input, err := gen.WriteFile("input.bin", []byte("data"))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"--input", gen.Path("missing.bin"), a, b}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"--input", input, "--block", "12X", a, b}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"--input", input, "--block", "100", a, b}, &stdout, &stderr))
}
