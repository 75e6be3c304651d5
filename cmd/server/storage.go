package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/config"
	"github.com/sweetmon/triage-api/internal/queue"
	"github.com/sweetmon/triage-api/internal/upload"
)

func rootLocations(roots *config.StorageRoots) map[artifact.Root]string {
	return map[artifact.Root]string{
		artifact.RootCrash:    roots.Crash,
		artifact.RootFuzzer:   roots.Fuzzer,
		artifact.RootTestcase: roots.Testcase,
		artifact.RootImage:    roots.Image,
	}
}

// One uploader per root. On azure a root is a container, on s3 a bucket, on disk a directory
func buildStore(ctx context.Context, cfg *config.StorageConfig) (*artifact.Store, error) {
	_, span := tracer.Start(ctx, "buildStore")
	defer span.End()

	uploaders := make(map[artifact.Root]upload.Uploader, len(artifact.Roots))
	for root, location := range rootLocations(cfg.Roots) {
		var (
			u   upload.Uploader
			err error
		)
		switch cfg.Backend {
		case "filesystem":
			u, err = upload.NewOSUploader(filepath.Join(cfg.Filesystem.BasePath, location))
		case "azure":
			u, err = upload.NewAzureUploader(cfg.Azure.Name, cfg.Azure.Key, cfg.Azure.ServiceURL, location)
		case "s3":
			u, err = upload.NewMinioUploader(
				cfg.S3.Endpoint,
				cfg.S3.AccessKeyID,
				cfg.S3.SecretAccessKey,
				cfg.S3.SSLEnabled,
				location,
			)
		default:
			err = fmt.Errorf("unknown storage backend %q", cfg.Backend)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set up %s root: %w", root, err)
		}

		if cfg.Retry {
			u = upload.NewRetryUploader(u)
		}
		uploaders[root] = u
	}

	span.AddEvent("built_uploaders")
	return artifact.NewStore(uploaders)
}

func buildQueue(cfg *config.NotifyConfig) (queue.Queuer, error) {
	switch cfg.Queue {
	case "memory":
		return queue.NewMemoryQueuer(cfg.QueueSize), nil
	case "azure":
		qr, err := queue.NewAzureQueuer(
			cfg.Azure.Name,
			cfg.Azure.Key,
			cfg.Azure.ServiceURL,
			cfg.Azure.Queue,
		)
		if err != nil {
			return nil, err
		}
		return qr, nil
	default:
		return nil, fmt.Errorf("unknown notification queue %q", cfg.Queue)
	}
}
