package checkers_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/checkers"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

type fakeBlobStore struct {
	blobs     []string
	counts    []int
	snapshots int
	err       error
	calls     int
}

func (f *fakeBlobStore) StoredBlobs(context.Context) ([]string, error) {
	return f.blobs, f.err
}

// BlobCount walks through counts, one per call, repeating the last one.
func (f *fakeBlobStore) BlobCount(context.Context, bool) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	i := f.calls
	if i >= len(f.counts) {
		i = len(f.counts) - 1
	}
	f.calls++
	return f.counts[i], nil
}

func (f *fakeBlobStore) SnapshotCount(context.Context) (int, error) {
	return f.snapshots, f.err
}

var _ = Describe("AzureChecker", func() {
	var (
		ctx   context.Context
		store *fakeBlobStore
		check *checkers.AzureChecker
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &fakeBlobStore{counts: []int{0}}
		check = checkers.NewAzureChecker(store)
	})

	It("finds data in any stored blob", func() {
		store.blobs = []string{"other", "prefix #test_data$123$# suffix"}

		ok, err := check.CheckStorageServerData(ctx, "#test_data$123$#")

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("adds snapshots to the blob count", func() {
		store.counts = []int{1}
		store.snapshots = 1

		n, err := check.BlobAndSnapshotCount(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
	})

	// Given a storage that empties after a few polls
	// When waiting for it to be empty
	// Then the wait should succeed
	It("waits until the storage is empty", func() {
		// Arrange
		store.counts = []int{2, 1, 0}

		// Act
		err := check.WaitForBlobStorageEmpty(ctx, 10*time.Second)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(store.calls).To(Equal(3))
	})

	It("times out when the count never matches", func() {
		store.counts = []int{1}

		err := check.WaitForBlobAndSnapshotCount(ctx, 3, 1500*time.Millisecond)

		Expect(srvErrors.IsConditionTimeoutError(err)).To(BeTrue())
	})

	It("propagates storage errors", func() {
		store.err = errors.New("az failed")

		_, err := check.BlobAndSnapshotCount(ctx)

		Expect(err).To(MatchError("az failed"))
	})
})
