package hasher

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// ContainerDigest computes the crc32 of the file exactly as stored on disk.
func ContainerDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum %s: %w", path, err)
	}
	defer f.Close()

	sum, err := ContainerDigestReader(f)
	if err != nil {
		return "", fmt.Errorf("checksum file %s: %w", path, err)
	}
	return sum, nil
}

// ContainerDigestReader computes the crc32 of everything read from r.
func ContainerDigestReader(r io.Reader) (string, error) {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}
