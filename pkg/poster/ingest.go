// ingest.go - Avatar validation and conversion into a data URI.
package poster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/metrics"
)

// DefaultMaxAvatarBytes is the exclusive avatar size limit (2 MiB).
const DefaultMaxAvatarBytes int64 = 2 << 20

// AllowedTypes are the accepted avatar MIME types.
var AllowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// File is a user-selected file as the upload control reports it.
type File struct {
	Name    string
	Type    string
	Size    int64
	Content io.Reader
}

// FileFromPath opens path and fills the metadata the way a browser would:
// the type comes from the extension, falling back to content sniffing.
func FileFromPath(path string) (File, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	typ := mime.TypeByExtension(filepath.Ext(path))
	if typ == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		typ = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return File{}, nil, fmt.Errorf("rewind %s: %w", path, err)
		}
	}
	if mt, _, err := mime.ParseMediaType(typ); err == nil {
		typ = mt
	}
	return File{Name: filepath.Base(path), Type: typ, Size: info.Size(), Content: f}, f.Close, nil
}

// FileFromMultipart adapts an uploaded multipart file.
func FileFromMultipart(fh *multipart.FileHeader) (File, func() error, error) {
	f, err := fh.Open()
	if err != nil {
		return File{}, nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	typ := fh.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(typ); err == nil {
		typ = mt
	}
	return File{Name: fh.Filename, Type: typ, Size: fh.Size, Content: f}, f.Close, nil
}

// Ingestor validates avatar files and writes accepted ones into a Store.
type Ingestor struct {
	store    *Store
	maxBytes int64
	logger   logger.Logger
	metrics  *metrics.Manager

	generation atomic.Uint64
	commit     sync.Mutex
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithMaxBytes sets the exclusive size limit.
func WithMaxBytes(n int64) IngestorOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.maxBytes = n
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l logger.Logger) IngestorOption {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithIngestMetrics sets the metrics manager.
func WithIngestMetrics(m *metrics.Manager) IngestorOption {
	return func(in *Ingestor) { in.metrics = m }
}

// NewIngestor returns an Ingestor writing into store.
func NewIngestor(store *Store, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		store:    store,
		maxBytes: DefaultMaxAvatarBytes,
		logger:   logger.Named("ingest"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Check validates type and size independently and joins both rejections.
func (in *Ingestor) Check(f File) error {
	var errs []error
	if _, ok := AllowedTypes[f.Type]; !ok {
		errs = append(errs, &RejectionError{Reason: UnsupportedType, Name: f.Name, Type: f.Type, Size: f.Size})
	}
	if f.Size >= in.maxBytes {
		errs = append(errs, &RejectionError{Reason: TooLarge, Name: f.Name, Type: f.Type, Size: f.Size})
	}
	return errors.Join(errs...)
}

// BeforeUpload is the upload control's pre-upload gate. Every rejection is
// passed to notify; the result is always false so the control never runs its
// own upload or file-list append, and ingestion happens through Ingest.
func (in *Ingestor) BeforeUpload(f File, notify func(error)) bool {
	for _, re := range Rejections(in.Check(f)) {
		if notify != nil {
			notify(re)
		}
	}
	return false
}

// Ingest validates f, reads it into a data URI and stores it as userAvatar.
// A rejected file does not count as a newer selection: ingestions already
// in flight still commit.
func (in *Ingestor) Ingest(ctx context.Context, f File) (string, error) {
	if err := in.reject(ctx, f); err != nil {
		return "", err
	}
	return in.ingest(ctx, f, in.generation.Add(1))
}

// IngestAsync runs Ingest on its own goroutine and calls done exactly once.
// If another ingestion starts before this one finishes, this result is
// dropped with ErrSuperseded and the store is left to the newer file.
func (in *Ingestor) IngestAsync(ctx context.Context, f File, done func(string, error)) {
	if done == nil {
		done = func(string, error) {}
	}
	if err := in.reject(ctx, f); err != nil {
		go done("", err)
		return
	}
	gen := in.generation.Add(1)
	go func() {
		done(in.ingest(ctx, f, gen))
	}()
}

// reject runs Check and records any rejection.
func (in *Ingestor) reject(ctx context.Context, f File) error {
	err := in.Check(f)
	if err == nil {
		return nil
	}
	for _, re := range Rejections(err) {
		in.metrics.RecordAvatarRejected(re.Reason.String())
	}
	in.logger.Info(ctx, "avatar rejected", logger.String("name", f.Name), logger.Error(err))
	return err
}

// ingest reads an accepted file and commits it unless a newer ingestion
// started meanwhile.
func (in *Ingestor) ingest(ctx context.Context, f File, gen uint64) (string, error) {
	if f.Content == nil {
		return "", fmt.Errorf("read %s: no content", f.Name)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(f.Content, in.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	if n >= in.maxBytes {
		in.metrics.RecordAvatarRejected(TooLarge.String())
		return "", &RejectionError{Reason: TooLarge, Name: f.Name, Type: f.Type, Size: n}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	uri := EncodeDataURI(f.Type, buf.Bytes())

	in.commit.Lock()
	defer in.commit.Unlock()
	if in.generation.Load() != gen {
		return "", ErrSuperseded
	}
	in.store.SetAvatar(uri)
	in.metrics.RecordAvatarIngested()
	in.logger.Debug(ctx, "avatar ingested", logger.String("name", f.Name), logger.Int("bytes", int(n)))
	return uri, nil
}
