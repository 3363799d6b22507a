// Package s3store exposes an S3 bucket as a remote directory tree.
package s3store

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

// avatarPrefix holds the profile avatar, hidden from listings
const avatarPrefix = ".cloudisk/avatar/"

// Config holds what is needed to reach the bucket
type Config struct {
	AccessKey string
	SecretKey string
	Endpoint  string // full URL, empty for AWS
	Region    string
	Bucket    string
}

// Store wraps the AWS S3 client with our configuration
type Store struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

var _ remote.Service = (*Store)(nil)

// New creates a new S3-backed store
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true // Required for MinIO and some S3-compatible services
	})

	return &Store{client: client, bucket: cfg.Bucket, log: logger}, nil
}

// dirPrefix turns a directory id into the listing prefix
func dirPrefix(id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimSuffix(id, "/") + "/"
}

// parentOf returns the id of the directory containing key
func parentOf(key string) string {
	dir := path.Dir(strings.TrimSuffix(key, "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func dirEntry(prefix string) models.FileEntry {
	id := strings.TrimSuffix(prefix, "/")
	return models.FileEntry{
		ID:     id,
		Name:   path.Base(id),
		Type:   models.TypeDir,
		Parent: parentOf(id),
	}
}

func objectEntry(obj types.Object) models.FileEntry {
	key := aws.ToString(obj.Key)
	return models.FileEntry{
		ID:     key,
		Name:   path.Base(key),
		Type:   models.TypeFile,
		Parent: parentOf(key),
		Size:   aws.ToInt64(obj.Size),
		Date:   aws.ToTime(obj.LastModified),
	}
}

func hidden(key string) bool {
	return strings.HasPrefix(key, ".cloudisk/")
}

// List lists objects in a bucket under the directory prefix
func (s *Store) List(ctx context.Context, parent string, order models.SortOrder) ([]models.FileEntry, error) {
	prefix := dirPrefix(parent)
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var entries []models.FileEntry
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrap("list objects", err)
		}

		// Add directories (common prefixes)
		for _, p := range page.CommonPrefixes {
			key := aws.ToString(p.Prefix)
			if key == "" || hidden(key) {
				continue
			}
			entries = append(entries, dirEntry(key))
		}

		// Add files
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") || hidden(key) { // Skip directory markers
				continue
			}
			entries = append(entries, objectEntry(obj))
		}
	}

	if parent != "" && len(entries) == 0 {
		if ok, err := s.exists(ctx, prefix); err != nil {
			return nil, err
		} else if !ok {
			return nil, remote.Rejected(404, fmt.Sprintf("directory %q not found", parent))
		}
	}

	models.SortEntries(entries, order)
	return entries, nil
}

// exists reports whether anything, a marker included, lives under prefix
func (s *Store) exists(ctx context.Context, prefix string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, s.wrap("list objects", err)
	}
	return len(out.Contents) > 0, nil
}

// Create puts a directory marker object
func (s *Store) Create(ctx context.Context, name, parent string, typ models.EntryType) (models.FileEntry, error) {
	if typ != models.TypeDir {
		return models.FileEntry{}, remote.Rejected(400, "only directories can be created empty")
	}
	if name == "" || strings.Contains(name, "/") {
		return models.FileEntry{}, remote.Rejected(400, fmt.Sprintf("invalid directory name %q", name))
	}
	key := dirPrefix(parent) + name + "/"

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return models.FileEntry{}, s.wrap("put object", err)
	}

	entry := dirEntry(key)
	entry.Date = time.Now()
	return entry, nil
}

// Delete deletes an object, or every object under a directory
func (s *Store) Delete(ctx context.Context, id string) (string, error) {
	if ok, err := s.exists(ctx, dirPrefix(id)); err != nil {
		return "", err
	} else if ok {
		return id, s.deletePrefix(ctx, dirPrefix(id))
	}

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	}); err != nil {
		return "", s.wrap("head object", err)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return "", s.wrap("delete object", err)
	}
	return id, nil
}

func (s *Store) deletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return s.wrap("list objects", err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return s.wrap("delete objects", err)
		}
		s.log.Debug().Str("prefix", prefix).Int("objects", len(ids)).Msg("deleted directory contents")
	}
	return nil
}

// Upload uploads an object to S3
func (s *Store) Upload(ctx context.Context, u remote.Upload) (models.FileEntry, error) {
	key := dirPrefix(u.Parent) + u.Name
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   remote.NewProgressReader(u.Body, u.Size, u.Progress),
	}
	if u.Size >= 0 {
		input.ContentLength = aws.Int64(u.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return models.FileEntry{}, s.wrap("put object", err)
	}

	return models.FileEntry{
		ID:     key,
		Name:   u.Name,
		Type:   models.TypeFile,
		Parent: u.Parent,
		Size:   u.Size,
		Date:   time.Now(),
	}, nil
}

// Download downloads an object from S3
func (s *Store) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return 0, s.wrap("get object", err)
	}
	defer result.Body.Close()

	n, err := io.Copy(w, result.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read object data: %w", err)
	}
	return n, nil
}

// Search walks the whole bucket and matches base names
func (s *Store) Search(ctx context.Context, query string) ([]models.FileEntry, error) {
	q := strings.ToLower(query)
	seenDirs := map[string]bool{}
	var entries []models.FileEntry

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrap("list objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if hidden(key) {
				continue
			}
			// every ancestor directory is a candidate, markers or not
			start := parentOf(key)
			if strings.HasSuffix(key, "/") {
				start = strings.TrimSuffix(key, "/")
			}
			for dir := start; dir != ""; dir = parentOf(dir) {
				if !seenDirs[dir] {
					seenDirs[dir] = true
					if strings.Contains(strings.ToLower(path.Base(dir)), q) {
						entries = append(entries, dirEntry(dir))
					}
				}
			}
			if strings.HasSuffix(key, "/") {
				continue
			}
			if strings.Contains(strings.ToLower(path.Base(key)), q) {
				entries = append(entries, objectEntry(obj))
			}
		}
	}
	return entries, nil
}
