// saver.go - Destinations for exported posters: directory, HTTP response, data URL.
package export

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/xob0t/GoPoster/pkg/poster"
)

// ContentTypeOctetStream is forced on every download so browsers save the
// file instead of displaying it.
const ContentTypeOctetStream = "application/octet-stream"

// Download is an encoded poster ready to be handed to the user.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Saver delivers a Download. It is called once per successful capture.
type Saver interface {
	Save(ctx context.Context, d Download) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, d Download) error

func (f SaverFunc) Save(ctx context.Context, d Download) error { return f(ctx, d) }

// DirSaver writes downloads into Dir.
type DirSaver struct {
	Dir string
}

// PathFor returns where a download named fileName is written.
func (s DirSaver) PathFor(fileName string) string {
	return filepath.Join(s.Dir, SanitizeFileName(fileName))
}

func (s DirSaver) Save(ctx context.Context, d Download) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.Dir, err)
	}
	path := s.PathFor(d.FileName)
	if err := os.WriteFile(path, d.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ResponseSaver streams the download as an HTTP attachment.
type ResponseSaver struct {
	W http.ResponseWriter
}

func (s ResponseSaver) Save(_ context.Context, d Download) error {
	h := s.W.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(d.Data)))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	s.W.WriteHeader(http.StatusOK)
	if _, err := s.W.Write(d.Data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// DataURLSaver keeps the last download as an anchor href, the way a page
// triggers a download without a server round trip.
type DataURLSaver struct {
	mu   sync.Mutex
	href string
	name string
}

func (s *DataURLSaver) Save(_ context.Context, d Download) error {
	href := poster.EncodeDataURI("image/octet-stream", d.Data)
	s.mu.Lock()
	s.href, s.name = href, d.FileName
	s.mu.Unlock()
	return nil
}

// Href returns the data URL and file name of the last saved download.
func (s *DataURLSaver) Href() (href, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.href, s.name
}

// SanitizeFileName makes name safe as a single path element: NFC
// normalized, with separators and characters reserved on common file
// systems replaced by '_'.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			return '_'
		case strings.ContainsRune(`:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if name == "" {
		return "poster.jpg"
	}
	return name
}
