package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/quantarax/blocksig/internal/blocksize"
	"github.com/quantarax/blocksig/internal/checksum"
	"github.com/quantarax/blocksig/internal/chunker"
	"github.com/quantarax/blocksig/internal/signature"
)

// report is the delta plus, when an input file is given, the blocks of that
// file behind every changed or appended checksum.
type report struct {
	signature.Delta
	Blocks []blockReport `json:"blocks,omitempty"`
}

type blockReport struct {
	Index    uint64 `json:"index"`
	Offset   int64  `json:"offset"`
	Length   int    `json:"length"`
	Checksum uint32 `json:"checksum"`
	Matches  bool   `json:"matches"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run prints the difference between two signatures as JSON. It exits 0 when
// the signatures match, 1 when they differ and 2 on error.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sigdiff", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pretty := fs.Bool("pretty", true, "Pretty-print JSON output")
	input := fs.String("input", "", "File the new signature was made from; its changed blocks are listed")
	block := fs.String("block", "1M", "Block size the new signature was made with")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: sigdiff [options] <old.sig> <new.sig>")
		fmt.Fprintln(fs.Output(), "")
		fmt.Fprintln(fs.Output(), "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}

	older, err := signature.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", fs.Arg(0), err)
		return 2
	}
	newer, err := signature.ReadFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", fs.Arg(1), err)
		return 2
	}

	out := report{Delta: signature.Diff(older, newer)}
	if *input != "" {
		out.Blocks, err = inspectBlocks(*input, *block, out.Delta, newer)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading %s: %v\n", *input, err)
			return 2
		}
	}

	var jsonData []byte
	if *pretty {
		jsonData, err = json.MarshalIndent(out, "", "  ")
	} else {
		jsonData, err = json.Marshal(out)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error serializing delta: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(jsonData))

	if !out.Unchanged() {
		return 1
	}
	return 0
}

// inspectBlocks reads each changed or appended block of input and checks it
// against the new signature.
func inspectBlocks(input, block string, d signature.Delta, newer []uint32) ([]blockReport, error) {
	bs, err := blocksize.ParseWithin(block, blocksize.DefaultLimits)
	if err != nil {
		return nil, err
	}
	size, err := bs.Int()
	if err != nil {
		return nil, err
	}

	indices := append([]uint64(nil), d.Changed...)
	for i := d.OldBlocks; i < d.NewBlocks; i++ {
		indices = append(indices, uint64(i))
	}

	blocks := make([]blockReport, 0, len(indices))
	for _, idx := range indices {
		data, err := chunker.ReadBlock(input, idx, size)
		if err != nil {
			return nil, err
		}
		sum := checksum.Compute(data)
		blocks = append(blocks, blockReport{
			Index:    idx,
			Offset:   int64(idx) * int64(size),
			Length:   len(data),
			Checksum: sum,
			Matches:  len(data) > 0 && sum == newer[idx],
		})
	}
	return blocks, nil
}
