package content

import (
	"errors"
	"fmt"
)

// MaxGroupSize is the largest number of media items the provider accepts in one group.
const MaxGroupSize = 10

var (
	// ErrInvalidPost is wrapped by every validation failure of a Post.
	ErrInvalidPost = errors.New("invalid post")

	// ErrEmptyPost is returned for a Post with neither caption nor media.
	ErrEmptyPost = fmt.Errorf("%w: post has no caption and no media", ErrInvalidPost)
)

// Post is one logical publish action.
type Post struct {
	Media   []Media
	Caption string

	// Origin is the candidate this post was built from. Empty for posts
	// that must never be disposed, such as split chunks.
	Origin string
}

// HasOrigin reports whether the post may be disposed.
func (p Post) HasOrigin() bool {
	return p.Origin != ""
}

// IsEmpty reports whether the post carries nothing to send.
func (p Post) IsEmpty() bool {
	return len(p.Media) == 0 && p.Caption == ""
}

// Validate fails fast on an empty post.
func (p Post) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPost
	}
	return nil
}

// Split partitions the media into consecutive chunks of at most size items.
// The caption stays on the first chunk only and no chunk carries an origin.
// A post that already fits is returned as a single chunk.
func (p Post) Split(size int) []Post {
	if size <= 0 {
		size = MaxGroupSize
	}

	if len(p.Media) <= size {
		return []Post{{Media: p.Media, Caption: p.Caption}}
	}

	chunks := make([]Post, 0, (len(p.Media)+size-1)/size)
	for start := 0; start < len(p.Media); start += size {
		end := min(start+size, len(p.Media))
		chunk := Post{Media: p.Media[start:end]}
		if start == 0 {
			chunk.Caption = p.Caption
		}
		chunks = append(chunks, chunk)
	}

	return chunks
}

func (p Post) String() string {
	return fmt.Sprintf("post(origin=%q media=%d caption=%d chars)", p.Origin, len(p.Media), len([]rune(p.Caption)))
}
