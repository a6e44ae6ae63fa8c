package detector

import (
	"bytes"
	"fmt"
	"image"
	"math/bits"

	// Frame payloads arrive as user-submitted screenshots in whatever format
	// the chat client handed over.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
)

const hashBits = 64

// Signature computes the 64-bit perceptual hash of an encoded frame.
func Signature(data []byte) (uint64, error) {
	img, err := DecodeFrame(data)
	if err != nil {
		return 0, err
	}
	return SignatureOf(img)
}

// SignatureOf hashes an already decoded image.
func SignatureOf(img image.Image) (uint64, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return hash.GetHash(), nil
}

// DecodeFrame decodes frame bytes, mapping any failure to ErrMediaDecode so
// the pipeline can skip the frame without aborting the submission.
func DecodeFrame(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMediaDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaDecode, err)
	}
	return img, nil
}

// Similarity maps the hamming distance between two signatures onto [0,1].
func Similarity(a, b uint64) float64 {
	return 1 - float64(bits.OnesCount64(a^b))/hashBits
}

// Distance is the raw hamming distance between two signatures.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
