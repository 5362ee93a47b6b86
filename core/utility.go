package core

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, fmt.Sprintf("%s\x00", s))
	}
	return safe
}

func clampUint32(val, min, max uint32) uint32 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// executableRelative resolves a path against the directory of the
// running executable. Shader bytecode and the pipeline cache are
// looked up this way rather than against the working directory.
func executableRelative(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("os.Executable(): %s", err)
	}
	return filepath.Join(filepath.Dir(exe), path), nil
}

// loadShaderWords reads a compiled SPIR-V file as a sequence of
// little-endian 32-bit words.
func loadShaderWords(path string) ([]uint32, error) {
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 || len(contents)%4 != 0 {
		return nil, fmt.Errorf("shader %s is not a whole number of 32-bit words", path)
	}
	words := make([]uint32, len(contents)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(contents[i*4:])
	}
	return words, nil
}
