package selector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
)

// S3API is the subset of the S3 client used by S3Selector.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Selector picks candidates from a bucket prefix. Objects directly under
// the prefix are file candidates, and each sub-prefix is a directory
// candidate. Chosen candidates are downloaded into a staging directory.
// Cycles of one S3Selector must not overlap.
type S3Selector struct {
	client       S3API
	bucket       string
	prefix       string
	order        content.SortOrder
	postOrder    content.SortOrder
	deletePosted bool
	stagingDir   string
	rng          *lockedRand
	logger       *slog.Logger

	mu     sync.Mutex
	staged map[string]*stagedCandidate
}

// S3Config holds configuration for the S3 selector.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string // default: us-east-1
	Endpoint  string // custom endpoint for S3-compatible storage
	AccessKey string // optional, default credential chain otherwise
	SecretKey string

	Order        content.SortOrder
	PostOrder    *content.SortOrder
	DeletePosted bool
	StagingDir   string

	// Client overrides the client built from the settings above.
	Client S3API
	Rand   *rand.Rand
	Logger *slog.Logger
}

type s3Spec struct {
	orderSettings
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	DeletePosted bool   `json:"delete_posted"`
	StagingDir   string `json:"staging_dir"`
}

// remoteCandidate is an S3 candidate before download.
type remoteCandidate struct {
	name    string
	isDir   bool
	keys    []string
	times   map[string]time.Time
	newest  time.Time
	invalid string // first key nested deeper than one level
}

type stagedCandidate struct {
	remote remoteCandidate
	dir    string
}

func s3FromSpec(spec config.Spec, deps Deps) (Selector, error) {
	var settings s3Spec
	if err := spec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("s3 selector: %w", err)
	}

	order, postOrder, err := settings.resolve()
	if err != nil {
		return nil, fmt.Errorf("s3 selector: %w", err)
	}

	stagingDir := settings.StagingDir
	if stagingDir == "" {
		stagingDir = deps.StagingDir
	}

	return NewS3Selector(context.Background(), S3Config{
		Bucket:       settings.Bucket,
		Prefix:       settings.Prefix,
		Region:       settings.Region,
		Endpoint:     settings.Endpoint,
		AccessKey:    settings.AccessKey,
		SecretKey:    settings.SecretKey,
		Order:        order,
		PostOrder:    postOrder,
		DeletePosted: settings.DeletePosted,
		StagingDir:   stagingDir,
		Client:       deps.S3,
		Rand:         deps.Rand,
		Logger:       deps.Logger,
	})
}

// NewS3Selector creates an S3 selector.
func NewS3Selector(ctx context.Context, cfg S3Config) (*S3Selector, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 selector: %w: bucket", config.ErrMissingField)
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "autoposter-staging")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		built, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client = built
	}

	prefix := strings.TrimPrefix(cfg.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	// Downloaded files only carry a modification time.
	postOrder := content.PostOrder(cfg.Order, cfg.PostOrder)
	if postOrder == content.ByCreationTime {
		postOrder = content.ByModificationTime
	}

	return &S3Selector{
		client:       client,
		bucket:       cfg.Bucket,
		prefix:       prefix,
		order:        cfg.Order,
		postOrder:    postOrder,
		deletePosted: cfg.DeletePosted,
		stagingDir:   cfg.StagingDir,
		rng:          newLockedRand(cfg.Rand),
		logger:       logger.With("bucket", cfg.Bucket, "prefix", prefix),
		staged:       make(map[string]*stagedCandidate),
	}, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))

	// Use explicit credentials if provided, otherwise the default chain
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Choose lists the prefix, orders the candidates and downloads the first n.
func (s *S3Selector) Choose(ctx context.Context, n int) ([]content.Post, error) {
	s.purgeStaged()

	remotes, err := s.listRemote(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]remoteCandidate, len(remotes))
	candidates := make([]candidate, 0, len(remotes))
	for _, r := range remotes {
		byName[r.name] = r
		candidates = append(candidates, candidate{
			path:  r.name,
			name:  r.name,
			isDir: r.isDir,
			ctime: r.newest,
			mtime: r.newest,
		})
	}
	sortCandidates(candidates, s.order, s.rng)

	posts, err := chooseFrom(candidates, n, s.logger, func(c candidate) (content.Post, error) {
		return s.stage(ctx, byName[c.name])
	})
	if posts == nil && err != nil {
		return nil, err
	}

	s.logger.Debug("chose remote candidates", "requested", n, "chosen", len(posts))
	return posts, err
}

// listRemote groups every key under the prefix into candidates.
func (s *S3Selector) listRemote(ctx context.Context) ([]remoteCandidate, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	grouped := make(map[string]*remoteCandidate)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, s.prefix)
			if rel == "" {
				continue
			}

			name, child, nested := strings.Cut(rel, "/")
			if isPosted(name) {
				continue
			}

			r, ok := grouped[name]
			if !ok {
				r = &remoteCandidate{name: name, isDir: nested, times: make(map[string]time.Time)}
				grouped[name] = r
			}

			modified := aws.ToTime(obj.LastModified)
			if modified.After(r.newest) {
				r.newest = modified
			}

			switch {
			case !nested:
				r.keys = append(r.keys, key)
				r.times[key] = modified
			case child == "":
				// directory marker object
			case strings.Contains(child, "/"):
				if r.invalid == "" {
					r.invalid = key
				}
			default:
				r.keys = append(r.keys, key)
				r.times[key] = modified
			}
		}
	}

	remotes := make([]remoteCandidate, 0, len(grouped))
	for _, r := range grouped {
		sort.Strings(r.keys)
		remotes = append(remotes, *r)
	}
	return remotes, nil
}

// stage downloads a candidate and builds its post.
func (s *S3Selector) stage(ctx context.Context, r remoteCandidate) (content.Post, error) {
	if r.invalid != "" {
		return content.Post{}, fmt.Errorf("%w: s3://%s/%s", ErrNestedDirectory, s.bucket, r.invalid)
	}

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return content.Post{}, fmt.Errorf("create staging dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.stagingDir, "s3-*")
	if err != nil {
		return content.Post{}, fmt.Errorf("create staging dir: %w", err)
	}

	root := filepath.Join(dir, r.name)
	if r.isDir {
		if err := os.Mkdir(root, 0755); err != nil {
			os.RemoveAll(dir)
			return content.Post{}, fmt.Errorf("create staging dir: %w", err)
		}
	}

	for _, key := range r.keys {
		local := root
		if r.isDir {
			local = filepath.Join(root, filepath.Base(key))
		}
		if err := s.download(ctx, key, local, r.times[key]); err != nil {
			os.RemoveAll(dir)
			return content.Post{}, err
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		os.RemoveAll(dir)
		return content.Post{}, fmt.Errorf("stat staged candidate: %w", err)
	}

	post, err := buildPost(ctx, candidateFromInfo(root, info), s.postOrder, s.rng)
	if err != nil {
		os.RemoveAll(dir)
		return content.Post{}, err
	}
	post.Origin = s.originOf(r.name)

	s.mu.Lock()
	s.staged[post.Origin] = &stagedCandidate{remote: r, dir: dir}
	s.mu.Unlock()

	return post, nil
}

func (s *S3Selector) download(ctx context.Context, key, local string, modified time.Time) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", local, err)
	}

	if !modified.IsZero() {
		if err := os.Chtimes(local, modified, modified); err != nil {
			return fmt.Errorf("set times on %s: %w", local, err)
		}
	}
	return nil
}

// Dispose deletes the candidate's keys, or moves them under the posted prefix,
// then drops the staged copy. An existing posted_ object is overwritten.
func (s *S3Selector) Dispose(ctx context.Context, post content.Post) error {
	if !post.HasOrigin() {
		s.logger.Warn("refusing to dispose post without origin", "post", post.String())
		return nil
	}

	s.mu.Lock()
	staged, ok := s.staged[post.Origin]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("dispose %s: origin was not chosen by this selector", post.Origin)
	}

	for _, key := range staged.remote.keys {
		if !s.deletePosted {
			target := s.prefix + PostedPrefix + strings.TrimPrefix(key, s.prefix)
			_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
				Bucket:     aws.String(s.bucket),
				CopySource: aws.String(copySource(s.bucket, key)),
				Key:        aws.String(target),
			})
			if err != nil {
				return fmt.Errorf("copy %s to %s: %w", key, target, err)
			}
		}

		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	s.mu.Lock()
	delete(s.staged, post.Origin)
	s.mu.Unlock()

	if err := os.RemoveAll(staged.dir); err != nil {
		s.logger.Warn("failed to remove staging dir", "dir", staged.dir, "error", err)
	}

	s.logger.Info("disposed remote candidate",
		"origin", post.Origin,
		"keys", len(staged.remote.keys),
		"deleted", s.deletePosted,
	)
	return nil
}

// purgeStaged drops downloads left over from cycles that did not dispose them.
func (s *S3Selector) purgeStaged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for origin, staged := range s.staged {
		if err := os.RemoveAll(staged.dir); err != nil {
			s.logger.Warn("failed to remove staging dir", "dir", staged.dir, "error", err)
		}
		delete(s.staged, origin)
	}
}

func (s *S3Selector) originOf(name string) string {
	return "s3://" + s.bucket + "/" + s.prefix + name
}

func copySource(bucket, key string) string {
	return (&url.URL{Path: bucket + "/" + key}).EscapedPath()
}
