// Package azureblob implements an internal/iosys.API sink backend: a
// single MuxerSink-kind entry that uploads packet-sink segments pushed
// into its Input queue to Azure Blob Storage. A broken connection to the
// external sink surfaces as ON_ERROR on the entry's own event list; a
// closed queue surfaces as ON_EOS. Client construction builds one shared
// client up front and calls UploadStream per segment, authenticating via
// azidentity's DefaultAzureCredential chain.
package azureblob

import (
	"bytes"
	"context"
	"strconv"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/iosys"
	"github.com/alxayo/txproto-go/internal/logger"
)

// Uploader is the subset of *azblob.Client this backend calls, narrowed
// so tests can substitute a stub instead of a real service connection.
type Uploader interface {
	UploadStream(ctx context.Context, container, blob string, body *bytes.Reader, opts *azblob.UploadStreamOptions) error
}

// Config names the storage account and container segments are uploaded
// to, plus the blob-name prefix each segment is stored under.
type Config struct {
	AccountURL    string // e.g. "https://<account>.blob.core.windows.net"
	ContainerName string
	BlobPrefix    string
}

// Backend is the sink-side I/O API: one MuxerSink entry, fed by pushing
// completed segments into Entry.Input.
type Backend struct {
	cfg      Config
	client   Uploader
	entry    *iosys.Entry
	entryH   *class.Handle
	seq      int
	mu       sync.Mutex
	newUpload func(ctx context.Context, accountURL string) (Uploader, error)
}

// New returns a Backend for cfg. newUpload is overridable for tests;
// production callers pass nil to get the default azidentity-backed
// client construction.
func New(cfg Config, newUpload func(ctx context.Context, accountURL string) (Uploader, error)) *Backend {
	if newUpload == nil {
		newUpload = defaultUploader
	}
	return &Backend{cfg: cfg, newUpload: newUpload}
}

// Name identifies this API to the iosys registry.
func (b *Backend) Name() string { return "azureblob" }

// InitSys constructs the Azure client.
func (b *Backend) InitSys(ctx context.Context) error {
	client, err := b.newUpload(ctx, b.cfg.AccountURL)
	if err != nil {
		return errors.NewExternalError("azureblob.init_sys.new_client", 0, err)
	}
	b.client = client
	return nil
}

// InitIO registers the sink entry and starts the upload loop.
func (b *Backend) InitIO(ctx context.Context, reg *iosys.Registry) error {
	h, entry := iosys.NewEntry(b.Name(), b.cfg.ContainerName, class.MuxerSink, nil)
	entry.Input = fifo.New[*fifo.BufElem](32)
	if err := reg.RegisterEntryFor(b.Name(), entry.Identifier, h); err != nil {
		h.Unref()
		return err
	}
	b.entry = entry
	b.entryH = h

	go b.uploadLoop(ctx)
	return nil
}

func (b *Backend) uploadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		elem, ok, err := b.entry.Input.Pop()
		if err != nil {
			b.entry.Events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			return
		}
		if !ok {
			// Closed and drained: clean end of stream.
			b.entry.Events.Dispatch(events.TypeMask{Phase: events.OnEOS}, nil)
			return
		}
		b.upload(ctx, elem)
	}
}

func (b *Backend) upload(ctx context.Context, elem *fifo.BufElem) {
	defer elem.Release()

	b.mu.Lock()
	b.seq++
	name := blobName(b.cfg.BlobPrefix, b.seq)
	b.mu.Unlock()

	opts := azblob.UploadStreamOptions{}
	body := bytes.NewReader(elem.Data)
	if err := b.client.UploadStream(ctx, b.cfg.ContainerName, name, body, &opts); err != nil {
		logger.Logger().Error("azureblob upload failed", "blob", name, "error", err)
		b.entry.Events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
		return
	}
}

func blobName(prefix string, seq int) string {
	if prefix == "" {
		prefix = "segment"
	}
	return prefix + "-" + strconv.Itoa(seq)
}

// defaultUploader builds a real azblob.Client authenticated via
// azidentity's DefaultAzureCredential (environment / managed identity /
// Azure CLI chain), the SDK's documented credential-chain entry point.
func defaultUploader(ctx context.Context, accountURL string) (Uploader, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &clientAdapter{client: client}, nil
}

// clientAdapter narrows *azblob.Client to the Uploader interface.
type clientAdapter struct {
	client *azblob.Client
}

func (a *clientAdapter) UploadStream(ctx context.Context, container, blob string, body *bytes.Reader, opts *azblob.UploadStreamOptions) error {
	_, err := a.client.UploadStream(ctx, container, blob, body, opts)
	return err
}
