package upload

import (
	"crypto/md5" //nolint:gosec // required for wire compatibility with declared digests, not a security property
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valyala/bytebufferpool"
)

const digestReadChunk = 256 * 1024

// Verify streams filePath in fixed-size reads, computes its MD5 digest,
// and compares the hex form to expectedHex case-insensitively.
func Verify(filePath, expectedHex string) (bool, error) {
	actual, err := computeDigest(filePath)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expectedHex), nil
}

func computeDigest(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("digest: open: %w", err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.Set(make([]byte, digestReadChunk))

	if _, err := io.CopyBuffer(h, f, buf.B); err != nil {
		return "", fmt.Errorf("digest: read: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
