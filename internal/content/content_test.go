package content

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		path     string
		expected Kind
	}{
		{"a.png", KindImage},
		{"a.jpg", KindImage},
		{"a.jpeg", KindImage},
		{"A.JPG", KindImage},
		{"clip.mp4", KindVideo},
		{"funny.gif", KindVideo},
		{"notes.pdf", KindDocument},
		{"archive.tar.gz", KindDocument},
		{"noext", KindDocument},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.path))
		})
	}
}

func TestMedia_DeliveryKind(t *testing.T) {
	t.Run("gif is grouped as video but delivered as gif", func(t *testing.T) {
		m := NewMedia("/src/funny.gif")
		assert.Equal(t, KindVideo, m.Kind)
		assert.Equal(t, KindGif, m.DeliveryKind())
	})

	t.Run("other kinds are unchanged", func(t *testing.T) {
		assert.Equal(t, KindImage, NewMedia("a.png").DeliveryKind())
		assert.Equal(t, KindVideo, NewMedia("a.mp4").DeliveryKind())
		assert.Equal(t, KindDocument, NewMedia("a.zip").DeliveryKind())
	})
}

func TestPost_Validate(t *testing.T) {
	t.Run("empty post is invalid", func(t *testing.T) {
		err := Post{}.Validate()
		assert.ErrorIs(t, err, ErrEmptyPost)
		assert.ErrorIs(t, err, ErrInvalidPost)
	})

	t.Run("caption only is valid", func(t *testing.T) {
		assert.NoError(t, Post{Caption: "hello"}.Validate())
	})

	t.Run("media only is valid", func(t *testing.T) {
		assert.NoError(t, Post{Media: []Media{NewMedia("a.png")}}.Validate())
	})
}

func mediaN(n int) []Media {
	media := make([]Media, n)
	for i := range media {
		media[i] = NewMedia(fmt.Sprintf("%02d.jpg", i))
	}
	return media
}

func TestPost_Split(t *testing.T) {
	t.Run("fits in one chunk", func(t *testing.T) {
		p := Post{Media: mediaN(10), Caption: "cap", Origin: "/src/a"}
		chunks := p.Split(MaxGroupSize)

		require.Len(t, chunks, 1)
		assert.Equal(t, "cap", chunks[0].Caption)
		assert.Len(t, chunks[0].Media, 10)
		assert.False(t, chunks[0].HasOrigin())
	})

	t.Run("23 items split into 10, 10, 3", func(t *testing.T) {
		media := mediaN(23)
		p := Post{Media: media, Caption: "cap", Origin: "/src/a"}
		chunks := p.Split(MaxGroupSize)

		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0].Media, 10)
		assert.Len(t, chunks[1].Media, 10)
		assert.Len(t, chunks[2].Media, 3)

		assert.Equal(t, "cap", chunks[0].Caption)
		assert.Empty(t, chunks[1].Caption)
		assert.Empty(t, chunks[2].Caption)

		var joined []Media
		for _, c := range chunks {
			assert.False(t, c.HasOrigin())
			joined = append(joined, c.Media...)
		}
		assert.Equal(t, media, joined)
	})

	t.Run("chunk count is ceil(m/10)", func(t *testing.T) {
		for _, m := range []int{11, 20, 21, 30, 99} {
			chunks := Post{Media: mediaN(m)}.Split(MaxGroupSize)
			assert.Len(t, chunks, (m+9)/10, "m=%d", m)
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c.Media), MaxGroupSize)
			}
		}
	})

	t.Run("text only post is one chunk", func(t *testing.T) {
		chunks := Post{Caption: "hello"}.Split(MaxGroupSize)
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello", chunks[0].Caption)
		assert.Empty(t, chunks[0].Media)
	})
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in       string
		expected SortOrder
	}{
		{"name", ByName},
		{"filename", ByName},
		{"ctime", ByCreationTime},
		{"MTIME", ByModificationTime},
		{" random ", Random},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortOrder(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseSortOrder("size")
		assert.Error(t, err)
	})
}

func TestPostOrder(t *testing.T) {
	mtime := ByModificationTime

	assert.Equal(t, ByName, PostOrder(Random, nil))
	assert.Equal(t, ByCreationTime, PostOrder(ByCreationTime, nil))
	assert.Equal(t, ByModificationTime, PostOrder(Random, &mtime))
	assert.Equal(t, ByModificationTime, PostOrder(ByName, &mtime))
}
