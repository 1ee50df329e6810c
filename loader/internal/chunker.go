package internal

import (
	"errors"
	"fmt"
)

var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Chunker cuts text into fixed-size windows measured in runes. Every window
// except the last is exactly Size runes long, and consecutive windows share
// exactly Overlap runes.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.Size - c.Overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.Size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
