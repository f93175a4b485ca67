// Package checkers verifies what the agent delivered to the services of a scenario.
package checkers

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/pkg/wait"
)

// BlobStore is the part of the storage emulator the Azure checks read.
type BlobStore interface {
	StoredBlobs(ctx context.Context) ([]string, error)
	BlobCount(ctx context.Context, includeDeleted bool) (int, error)
	SnapshotCount(ctx context.Context) (int, error)
}

type AzureChecker struct {
	store BlobStore
	log   *zap.SugaredLogger
}

func NewAzureChecker(store BlobStore) *AzureChecker {
	return &AzureChecker{store: store, log: zap.S().Named("checkers").With("checker", "azure")}
}

// CheckStorageServerData reports whether a stored blob contains data.
func (a *AzureChecker) CheckStorageServerData(ctx context.Context, data string) (bool, error) {
	blobs, err := a.store.StoredBlobs(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range blobs {
		if strings.Contains(b, data) {
			return true, nil
		}
	}
	return false, nil
}

func (a *AzureChecker) WaitForStorageServerData(ctx context.Context, data string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		return a.CheckStorageServerData(ctx, data)
	}, wait.WithName("azure blob contains "+data))
}

// BlobAndSnapshotCount counts blobs, deleted ones included, plus their snapshots.
func (a *AzureChecker) BlobAndSnapshotCount(ctx context.Context) (int, error) {
	blobs, err := a.store.BlobCount(ctx, true)
	if err != nil {
		return 0, err
	}
	snapshots, err := a.store.SnapshotCount(ctx)
	if err != nil {
		return 0, err
	}
	return blobs + snapshots, nil
}

func (a *AzureChecker) WaitForBlobAndSnapshotCount(ctx context.Context, expected int, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		n, err := a.BlobAndSnapshotCount(ctx)
		if err != nil {
			return false, err
		}
		a.log.Debugw("blob and snapshot count", "count", n, "expected", expected)
		return n == expected, nil
	}, wait.WithName("azure blob and snapshot count"))
}

func (a *AzureChecker) WaitForBlobStorageEmpty(ctx context.Context, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		n, err := a.store.BlobCount(ctx, false)
		if err != nil {
			return false, err
		}
		return n == 0, nil
	}, wait.WithName("azure blob storage empty"))
}
