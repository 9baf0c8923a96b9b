package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrInvalidPath   = errors.New("invalid file path")
	ErrPathNotExists = errors.New("path does not exist")
	ErrSamePath      = errors.New("input and output must be different files")
	ErrEmptyString   = errors.New("value must not be empty")
	ErrOutOfRange    = errors.New("value out of range")
)

func ValidateFilePath(p string, mustExist bool) error {
	if p == "" {
		return ErrInvalidPath
	}
	p = filepath.Clean(p)
	if mustExist {
		fi, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPathNotExists, err)
		}
		if fi.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, p)
		}
	}
	return nil
}

// ValidateDistinctPaths fails when input and output name the same file, either
// by path or, when both exist, by identity (hard links, symlinks).
// It inspects paths only and never opens either file.
func ValidateDistinctPaths(input, output string) error {
	in, err := filepath.Abs(input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if in == out {
		return fmt.Errorf("%w: %s", ErrSamePath, input)
	}

	inInfo, inErr := os.Stat(in)
	outInfo, outErr := os.Stat(out)
	if inErr == nil && outErr == nil && os.SameFile(inInfo, outInfo) {
		return fmt.Errorf("%w: %s and %s", ErrSamePath, input, output)
	}
	return nil
}

func ValidateStringNonEmpty(s string) error {
	if s == "" {
		return ErrEmptyString
	}
	return nil
}

func ValidateRangeInt(v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrOutOfRange, v, min, max)
	}
	return nil
}
