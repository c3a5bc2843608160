package azureblob

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/iosys"
)

type stubUploader struct {
	mu      sync.Mutex
	uploads []string
	failNth int // if > 0, the failNth-th upload returns an error
	count   int
}

func (s *stubUploader) UploadStream(ctx context.Context, container, blob string, body *bytes.Reader, opts *azblob.UploadStreamOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.failNth > 0 && s.count == s.failNth {
		return context.DeadlineExceeded
	}
	s.uploads = append(s.uploads, blob)
	return nil
}

func (s *stubUploader) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

func TestUploadsPushedSegments(t *testing.T) {
	stub := &stubUploader{}
	b := New(Config{ContainerName: "clips", BlobPrefix: "seg"}, func(ctx context.Context, accountURL string) (Uploader, error) {
		return stub, nil
	})

	reg := iosys.NewRegistry()
	reg.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.InitSys(ctx); err != nil {
		t.Fatalf("InitSys: %v", err)
	}
	if err := b.InitIO(ctx, reg); err != nil {
		t.Fatalf("InitIO: %v", err)
	}

	if err := b.entry.Input.Push(&fifo.BufElem{Data: []byte("segment-one")}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := b.entry.Input.Push(&fifo.BufElem{Data: []byte("segment-two")}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(stub.snapshot()) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("got %d uploads, want 2", len(stub.snapshot()))
}
