package fileio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/horssit/pesitd/internal/logger"
)

// ArchiveConfig configures the background S3 mirror. A completed receive's
// local path is handed off here and uploaded out-of-band; it never blocks
// the TRANS_END acknowledgement.
type ArchiveConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	WorkerCount     int
}

// Archiver mirrors completed transfer files to S3-compatible object storage
// through a small bounded pool of background workers, the way the teacher's
// transfer manager caps its own background goroutine count rather than
// spawning one per job.
type Archiver struct {
	client *s3.Client
	bucket string
	jobs   chan archiveJob
	wg     sync.WaitGroup
}

type archiveJob struct {
	localPath string
	key       string
}

// NewArchiver builds an S3 client from cfg and starts its worker pool.
func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("fileio: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 4
	}
	a := &Archiver{
		client: client,
		bucket: cfg.Bucket,
		jobs:   make(chan archiveJob, workers*4),
	}
	a.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go a.worker()
	}
	return a, nil
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for job := range a.jobs {
		if err := a.upload(job); err != nil {
			logger.Error("archival upload failed", "local_path", job.localPath, "key", job.key, "error", err)
		}
	}
}

func (a *Archiver) upload(job archiveJob) error {
	f, err := os.Open(job.localPath)
	if err != nil {
		return fmt.Errorf("fileio: opening %s for archival: %w", job.localPath, err)
	}
	defer f.Close()

	_, err = a.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(job.key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("fileio: uploading %s to s3://%s/%s: %w", job.localPath, a.bucket, job.key, err)
	}
	return nil
}

// Enqueue schedules localPath for background upload under key. It never
// blocks on the network; if the queue is full the call blocks only on
// backpressure from slow workers, never on S3 itself.
func (a *Archiver) Enqueue(localPath, key string) {
	a.jobs <- archiveJob{localPath: localPath, key: key}
}

// Close stops accepting new jobs and waits for in-flight uploads to finish.
func (a *Archiver) Close() {
	close(a.jobs)
	a.wg.Wait()
}
