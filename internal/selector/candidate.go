package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abdulachik/autoposter/internal/content"
)

// candidate is one entry under a source root.
type candidate struct {
	path  string
	name  string
	isDir bool
	ctime time.Time
	mtime time.Time
}

func candidateFromInfo(path string, info os.FileInfo) candidate {
	return candidate{
		path:  path,
		name:  info.Name(),
		isDir: info.IsDir(),
		ctime: changeTime(info),
		mtime: info.ModTime(),
	}
}

// listCandidates returns the immediate children of dir that are not marked posted.
func listCandidates(dir string) ([]candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	candidates := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if isPosted(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		candidates = append(candidates, candidateFromInfo(filepath.Join(dir, entry.Name()), info))
	}

	return candidates, nil
}

// sortCandidates orders candidates in place. Names compare byte-wise and
// timestamps ascend, with the name breaking ties.
func sortCandidates(candidates []candidate, order content.SortOrder, rng *lockedRand) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].name < candidates[j].name
	})

	switch order {
	case content.ByCreationTime:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].ctime.Before(candidates[j].ctime)
		})
	case content.ByModificationTime:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].mtime.Before(candidates[j].mtime)
		})
	case content.Random:
		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}
}

// postFiles returns the file set of a candidate: its children for a
// directory, itself otherwise.
func postFiles(c candidate) ([]candidate, error) {
	if !c.isDir {
		return []candidate{c}, nil
	}

	entries, err := os.ReadDir(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrMalformedCandidate, c.name, err)
	}

	files := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(c.path, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %w", ErrMalformedCandidate, path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrNestedDirectory, path)
		}
		files = append(files, candidateFromInfo(path, info))
	}

	return files, nil
}

// buildPost materializes a candidate. Text files become the caption, joined
// by a blank line, and everything else becomes media in file order.
func buildPost(ctx context.Context, c candidate, order content.SortOrder, rng *lockedRand) (content.Post, error) {
	files, err := postFiles(c)
	if err != nil {
		return content.Post{}, err
	}
	sortCandidates(files, order, rng)

	post := content.Post{Origin: c.path}
	var captions []string

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return content.Post{}, err
		}

		if !content.IsText(f.path) {
			post.Media = append(post.Media, content.NewMedia(f.path))
			continue
		}

		data, err := os.ReadFile(f.path)
		if err != nil {
			return content.Post{}, fmt.Errorf("%w: read caption: %w", ErrMalformedCandidate, err)
		}
		if !utf8.Valid(data) {
			return content.Post{}, fmt.Errorf("%w: caption %s is not valid UTF-8", ErrMalformedCandidate, f.path)
		}
		captions = append(captions, string(data))
	}

	post.Caption = strings.Join(captions, "\n\n")
	return post, nil
}

// chooseFrom builds posts from the ordered candidates until n are built.
// Malformed candidates are logged and skipped so they cannot starve the ones
// behind them; their errors come back joined next to the built posts. Any
// other error stops the selection.
func chooseFrom(candidates []candidate, n int, logger *slog.Logger, build func(candidate) (content.Post, error)) ([]content.Post, error) {
	posts := make([]content.Post, 0, min(max(n, 0), len(candidates)))
	var skipped []error
	for _, c := range candidates {
		if len(posts) >= n {
			break
		}
		post, err := build(c)
		if errors.Is(err, ErrMalformedCandidate) {
			logger.Warn("skipping malformed candidate", "candidate", c.name, "error", err)
			skipped = append(skipped, fmt.Errorf("build post from %s: %w", c.name, err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("build post from %s: %w", c.name, err)
		}
		posts = append(posts, post)
	}
	return posts, errors.Join(skipped...)
}
