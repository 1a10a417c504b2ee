package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxFileSize is the largest file that can be shared
const DefaultMaxFileSize = 2 * 1024 * 1024

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileNotFound        = errors.New("shared file not found")
)

// AllowedFileTypes lists the MIME types that may be shared
var AllowedFileTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// filePayload is the body of a file signal. Data is base64 on the wire.
type filePayload struct {
	Name      string    `json:"name"`
	MIME      string    `json:"type"`
	Size      int64     `json:"size"`
	Data      []byte    `json:"data"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedFile is a file sent or received during the call
type SharedFile struct {
	ID        string
	Name      string
	MIME      string
	Size      int64
	Username  string
	From      string
	Mine      bool
	Timestamp time.Time

	data []byte
}

// detectAllowed returns the detected MIME type of data if it is allowed
func detectAllowed(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	for _, allowed := range AllowedFileTypes {
		if mtype.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, mtype.String())
}

// readShareable loads path for sharing, enforcing size and type limits
func readShareable(path string, maxSize int64) (filePayload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return filePayload{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return filePayload{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return filePayload{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return filePayload{}, fmt.Errorf("read %s: %w", path, err)
	}
	mime, err := detectAllowed(data)
	if err != nil {
		return filePayload{}, err
	}
	return filePayload{
		Name: filepath.Base(path),
		MIME: mime,
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// decodeFile validates a received payload. The sender's declared type is
// not trusted.
func decodeFile(payload json.RawMessage, maxSize int64) (filePayload, error) {
	var p filePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return filePayload{}, fmt.Errorf("decode file: %w", err)
	}
	if int64(len(p.Data)) > maxSize {
		return filePayload{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(p.Data), maxSize)
	}
	mime, err := detectAllowed(p.Data)
	if err != nil {
		return filePayload{}, err
	}
	p.MIME = mime
	p.Size = int64(len(p.Data))
	p.Name = sanitizeFileName(p.Name)
	return p, nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// fileStore keeps shared files until they are saved or the call ends
type fileStore struct {
	mu    sync.Mutex
	files map[string]SharedFile
}

func newFileStore() *fileStore {
	return &fileStore{files: make(map[string]SharedFile)}
}

func (fs *fileStore) add(p filePayload, from string, mine bool) SharedFile {
	f := SharedFile{
		ID:        uuid.NewString(),
		Name:      p.Name,
		MIME:      p.MIME,
		Size:      p.Size,
		Username:  p.Username,
		From:      from,
		Mine:      mine,
		Timestamp: p.Timestamp,
		data:      p.Data,
	}
	fs.mu.Lock()
	fs.files[f.ID] = f
	fs.mu.Unlock()
	return f
}

// save writes file id into dir without overwriting, returning the path used
func (fs *fileStore) save(id, dir string) (string, error) {
	fs.mu.Lock()
	f, ok := fs.files[id]
	fs.mu.Unlock()
	if !ok {
		return "", ErrFileNotFound
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	ext := filepath.Ext(f.Name)
	stem := strings.TrimSuffix(f.Name, ext)
	for i := 0; ; i++ {
		name := f.Name
		if i > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)
		out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save %s: %w", f.Name, err)
		}
		_, werr := out.Write(f.data)
		cerr := out.Close()
		if werr != nil {
			return "", fmt.Errorf("save %s: %w", f.Name, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("save %s: %w", f.Name, cerr)
		}
		return path, nil
	}
}

func (fs *fileStore) list() []SharedFile {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]SharedFile, 0, len(fs.files))
	for _, f := range fs.files {
		out = append(out, f)
	}
	return out
}
