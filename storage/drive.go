package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/metrics"
)

const (
	// DefaultChunkSize is the payload size above which transfers are split
	// into ranged chunks.
	DefaultChunkSize = 10 * 1024 * 1024

	// DefaultUploadConcurrency bounds parallel chunk transfers. It is kept
	// below the connection pool size so chunk bursts never exhaust sockets.
	DefaultUploadConcurrency = 3

	driveRequestTimeout   = 30 * time.Second
	driveMaxIdleConns     = 32
	driveIdleConnsPerHost = 8
)

// DriveBackend implements a storage backend against a remote cloud drive
// reached over HTTPS with an OAuth bearer token.
//
// The drive API it speaks:
//
//	PUT    /v1/files/{path}              direct upload (payloads < chunk size)
//	GET    /v1/files/{path}              download, honors Range requests
//	HEAD   /v1/files/{path}              existence + Content-Length
//	DELETE /v1/files/{path}              idempotent delete
//	POST   /v1/uploads                   open a chunked upload session
//	PUT    /v1/uploads/{id}              one chunk, addressed by Content-Range
//	POST   /v1/uploads/{id}/commit       finalize a session
//	DELETE /v1/uploads/{id}              abort a session, discarding its chunks
//	POST   /v1/folders                   create a folder
//	HEAD   /v1/folders/{path}            folder existence
//	GET    /v1/folders/{path}            immediate subfolder listing
//
// Large payloads are split into fixed-size chunks transferred concurrently
// under a semaphore; every network call, chunk sub-requests included, is
// wrapped by the shared retry policy. Folder existence checks go through the
// shared DirCache to avoid redundant round-trips.
type DriveBackend struct {
	baseURL     string
	token       string
	rootFolder  string
	publicBase  string
	chunkSize   int64
	concurrency int64

	httpc *http.Client
	retry RetryPolicy
	dirs  *DirCache
	log   *slog.Logger
}

// NewDriveBackend creates a remote-drive backend from cfg, sharing dirs for
// folder existence checks. A nil dirs gets a private cache with defaults.
func NewDriveBackend(cfg interfaces.BackendConfig, dirs *DirCache, log *slog.Logger) (*DriveBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	concurrency := cfg.UploadConcurrency
	if concurrency <= 0 {
		concurrency = DefaultUploadConcurrency
	}
	if dirs == nil {
		dirs = NewDirCache(0, 0)
	}

	transport := &http.Transport{
		MaxIdleConns:        driveMaxIdleConns,
		MaxIdleConnsPerHost: driveIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	return &DriveBackend{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:       cfg.Token,
		rootFolder:  strings.Trim(cfg.RootFolder, "/"),
		publicBase:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		chunkSize:   chunkSize,
		concurrency: int64(concurrency),
		httpc: &http.Client{
			Transport: transport,
			Timeout:   driveRequestTimeout,
		},
		retry: DefaultRetryPolicy(),
		dirs:  dirs,
		log:   log,
	}, nil
}

// Save uploads data and returns its public URL. Payloads below the chunk
// size go up in a single PUT; larger ones through a chunked upload session.
func (b *DriveBackend) Save(ctx context.Context, p interfaces.LogicalPath, data []byte) (string, error) {
	start := time.Now()

	var err error
	if int64(len(data)) < b.chunkSize {
		err = b.putDirect(ctx, p, data)
	} else {
		err = b.putChunked(ctx, p, data)
	}
	if err != nil {
		metrics.OpsTotal.WithLabelValues("drive", "save", "error").Inc()
		return "", err
	}

	b.log.Debug("Stored content on drive",
		slog.String("path", b.drivePath(p)),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	metrics.OpsTotal.WithLabelValues("drive", "save", "ok").Inc()

	return b.PublicURL(p), nil
}

// Get downloads the object at path. Objects below the chunk size come back
// in one GET; larger ones as concurrent ranged requests reassembled in order.
func (b *DriveBackend) Get(ctx context.Context, p interfaces.LogicalPath) ([]byte, error) {
	start := time.Now()

	size, exists, err := b.headObject(ctx, p)
	if err != nil {
		metrics.OpsTotal.WithLabelValues("drive", "get", "error").Inc()
		return nil, err
	}
	if !exists {
		metrics.OpsTotal.WithLabelValues("drive", "get", "miss").Inc()
		return nil, interfaces.ErrNotFound
	}

	var data []byte
	if size <= b.chunkSize {
		data, err = b.getDirect(ctx, p)
	} else {
		data, err = b.getChunked(ctx, p, size)
	}
	if err != nil {
		metrics.OpsTotal.WithLabelValues("drive", "get", "error").Inc()
		return nil, err
	}

	b.log.Debug("Fetched content from drive",
		slog.String("path", b.drivePath(p)),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	metrics.OpsTotal.WithLabelValues("drive", "get", "ok").Inc()

	return data, nil
}

// Delete removes the object at path. Missing objects report false, not an
// error.
func (b *DriveBackend) Delete(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	var deleted bool
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodDelete, b.objectURL(p), nil)
		if err != nil {
			return err
		}
		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if resp.StatusCode == http.StatusNotFound {
			deleted = false
			return nil
		}
		if err := checkDriveStatus(resp); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		metrics.OpsTotal.WithLabelValues("drive", "delete", "error").Inc()
		return false, fmt.Errorf("failed to delete from drive: %w", err)
	}

	metrics.OpsTotal.WithLabelValues("drive", "delete", "ok").Inc()
	return deleted, nil
}

// Exists reports whether an object is present at path.
func (b *DriveBackend) Exists(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	_, exists, err := b.headObject(ctx, p)
	return exists, err
}

// PublicURL derives the retrieval URL by template; no network call.
func (b *DriveBackend) PublicURL(p interfaces.LogicalPath) string {
	if b.publicBase != "" {
		return b.publicBase + "/" + escapePath(b.drivePath(p))
	}
	return b.baseURL + "/v1/public/" + escapePath(b.drivePath(p))
}

// CreateDirectory ensures the folder at path exists on the drive and records
// the result in the existence cache.
func (b *DriveBackend) CreateDirectory(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	body, _ := json.Marshal(map[string]string{"path": b.drivePath(p)})

	var created bool
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodPost, b.baseURL+"/v1/folders", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if err := checkDriveStatus(resp); err != nil {
			return err
		}
		created = resp.StatusCode == http.StatusCreated
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create folder on drive: %w", err)
	}

	b.dirs.Put(b.cacheKey(p), true)
	return created, nil
}

// DirectoryExists answers from the shared cache when possible; a miss issues
// a HEAD and populates the cache with the default TTL.
func (b *DriveBackend) DirectoryExists(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	key := b.cacheKey(p)
	if exists, ok := b.dirs.Get(key); ok {
		metrics.DirCacheHits.Inc()
		return exists, nil
	}
	metrics.DirCacheMisses.Inc()

	var exists bool
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodHead, b.folderURL(p), nil)
		if err != nil {
			return err
		}
		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if resp.StatusCode == http.StatusNotFound {
			exists = false
			return nil
		}
		if err := checkDriveStatus(resp); err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check folder on drive: %w", err)
	}

	b.dirs.Put(key, exists)
	return exists, nil
}

// ListDirectories returns the names of folders directly under base.
func (b *DriveBackend) ListDirectories(ctx context.Context, base interfaces.LogicalPath) ([]string, error) {
	var listing struct {
		Folders []string `json:"folders"`
	}

	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodGet, b.folderURL(base), nil)
		if err != nil {
			return err
		}
		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if resp.StatusCode == http.StatusNotFound {
			listing.Folders = nil
			return nil
		}
		if err := checkDriveStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&listing)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders on drive: %w", err)
	}

	sort.Strings(listing.Folders)
	return listing.Folders, nil
}

// Provision creates the category and subfolder tree for a tenant.
func (b *DriveBackend) Provision(ctx context.Context, tenant string, categories, subfolders []string) ([]string, error) {
	var created []string
	for _, category := range categories {
		p, err := interfaces.NewLogicalPath(tenant, category)
		if err != nil {
			return created, err
		}
		if _, err := b.CreateDirectory(ctx, p); err != nil {
			return created, fmt.Errorf("provisioning %s: %w", p.Key(), err)
		}
		created = append(created, p.Key())

		for _, sub := range subfolders {
			sp, err := p.Join(sub)
			if err != nil {
				return created, err
			}
			if _, err := b.CreateDirectory(ctx, sp); err != nil {
				return created, fmt.Errorf("provisioning %s: %w", sp.Key(), err)
			}
			created = append(created, sp.Key())
		}
	}

	b.log.Debug("Provisioned tenant hierarchy on drive",
		slog.String("tenant", tenant),
		slog.Int("folders", len(created)))
	return created, nil
}

// Kind returns the backend kind tag.
func (b *DriveBackend) Kind() interfaces.BackendKind {
	return interfaces.KindDrive
}

// Name returns a unique identifier for this storage backend.
func (b *DriveBackend) Name() string {
	u, err := url.Parse(b.baseURL)
	if err != nil || u.Host == "" {
		return "drive"
	}
	return fmt.Sprintf("drive-%s", u.Host)
}

// putDirect uploads a payload in one request.
func (b *DriveBackend) putDirect(ctx context.Context, p interfaces.LogicalPath, data []byte) error {
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodPut, b.objectURL(p), bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.ContentLength = int64(len(data))

		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)
		return checkDriveStatus(resp)
	})
	if err != nil {
		return fmt.Errorf("failed to upload to drive: %w", err)
	}
	return nil
}

// putChunked uploads a payload through an upload session: open, transfer
// fixed-size chunks concurrently under the semaphore, then commit. The last
// chunk may be shorter. Already-dispatched chunks are not cancelled when a
// sibling fails; they complete or time out independently.
func (b *DriveBackend) putChunked(ctx context.Context, p interfaces.LogicalPath, data []byte) error {
	total := int64(len(data))

	sessionID, err := b.openUploadSession(ctx, p, total)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(b.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for offset := int64(0); offset < total; offset += b.chunkSize {
		end := offset + b.chunkSize
		if end > total {
			end = total
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(start, end int64) {
			defer sem.Release(1)
			defer wg.Done()

			if err := b.putChunk(ctx, sessionID, data[start:end], start, total); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(offset, end)
	}

	wg.Wait()
	if firstErr != nil {
		b.abortUploadSession(ctx, sessionID)
		return fmt.Errorf("chunked upload to drive failed: %w", firstErr)
	}

	return b.commitUploadSession(ctx, sessionID)
}

// openUploadSession asks the drive for a chunked upload session.
func (b *DriveBackend) openUploadSession(ctx context.Context, p interfaces.LogicalPath, total int64) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"path": b.drivePath(p),
		"size": total,
	})

	var sessionID string
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodPost, b.baseURL+"/v1/uploads", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if err := checkDriveStatus(resp); err != nil {
			return err
		}

		var session struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
			return Transient(fmt.Errorf("decoding upload session: %w", err))
		}
		if session.SessionID == "" {
			return Transient(fmt.Errorf("drive returned empty upload session"))
		}
		sessionID = session.SessionID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to open upload session: %w", err)
	}
	return sessionID, nil
}

// putChunk uploads one chunk with range addressing, retried independently.
func (b *DriveBackend) putChunk(ctx context.Context, sessionID string, chunk []byte, start, total int64) error {
	contentRange := fmt.Sprintf("bytes %d-%d/%d", start, start+int64(len(chunk))-1, total)

	return b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodPut, b.baseURL+"/v1/uploads/"+url.PathEscape(sessionID), bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Range", contentRange)
		req.ContentLength = int64(len(chunk))

		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)
		return checkDriveStatus(resp)
	})
}

// abortUploadSession discards a failed session so chunks do not accumulate on
// the remote. Best effort: the upload already failed, so an abort failure is
// only logged. Runs detached from the caller's context, which may already be
// cancelled.
func (b *DriveBackend) abortUploadSession(ctx context.Context, sessionID string) {
	req, err := b.newRequest(context.WithoutCancel(ctx), http.MethodDelete, b.baseURL+"/v1/uploads/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return
	}
	resp, err := b.httpc.Do(req)
	if err != nil {
		b.log.Debug("Failed to abort upload session",
			slog.String("session", sessionID),
			"err", err)
		return
	}
	drainBody(resp)
}

// commitUploadSession finalizes a chunked upload.
func (b *DriveBackend) commitUploadSession(ctx context.Context, sessionID string) error {
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodPost, b.baseURL+"/v1/uploads/"+url.PathEscape(sessionID)+"/commit", nil)
		if err != nil {
			return err
		}
		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)
		return checkDriveStatus(resp)
	})
	if err != nil {
		return fmt.Errorf("failed to commit upload session: %w", err)
	}
	return nil
}

// getDirect downloads the whole object in one request.
func (b *DriveBackend) getDirect(ctx context.Context, p interfaces.LogicalPath) ([]byte, error) {
	var data []byte
	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodGet, b.objectURL(p), nil)
		if err != nil {
			return err
		}
		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, b.drivePath(p))
		}
		if err := checkDriveStatus(resp); err != nil {
			return err
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return Transient(fmt.Errorf("reading drive response: %w", err))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download from drive: %w", err)
	}
	return data, nil
}

// getChunked downloads size bytes as concurrent ranged requests written into
// a preallocated buffer at their chunk offsets.
func (b *DriveBackend) getChunked(ctx context.Context, p interfaces.LogicalPath, size int64) ([]byte, error) {
	buf := make([]byte, size)

	sem := semaphore.NewWeighted(b.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for offset := int64(0); offset < size; offset += b.chunkSize {
		end := offset + b.chunkSize
		if end > size {
			end = size
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(start, end int64) {
			defer sem.Release(1)
			defer wg.Done()

			if err := b.getRange(ctx, p, buf[start:end], start, end-1); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(offset, end)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, fmt.Errorf("chunked download from drive failed: %w", firstErr)
	}
	return buf, nil
}

// getRange downloads bytes [start,end] into dst, retried independently.
func (b *DriveBackend) getRange(ctx context.Context, p interfaces.LogicalPath, dst []byte, start, end int64) error {
	return b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodGet, b.objectURL(p), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		switch resp.StatusCode {
		case http.StatusPartialContent:
			// The server honored the range; the body is exactly our slice.
		case http.StatusOK:
			// The server ignored the Range header and sent the whole
			// object. Skip to our offset instead of consuming head bytes
			// that belong to another chunk.
			if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
				return Transient(fmt.Errorf("skipping to offset %d: %w", start, err))
			}
		default:
			if err := checkDriveStatus(resp); err != nil {
				return err
			}
			// Any other 2xx carries no usable body for a range request;
			// accepting it would leave the chunk zero-filled.
			return fmt.Errorf("%w: drive returned status %d to a range request", interfaces.ErrPermanentBackend, resp.StatusCode)
		}

		if _, err := io.ReadFull(resp.Body, dst); err != nil {
			return Transient(fmt.Errorf("reading range %d-%d: %w", start, end, err))
		}
		return nil
	})
}

// headObject returns the object size and existence.
func (b *DriveBackend) headObject(ctx context.Context, p interfaces.LogicalPath) (int64, bool, error) {
	var size int64
	var exists bool

	err := b.retry.Do(ctx, func() error {
		req, err := b.newRequest(ctx, http.MethodHead, b.objectURL(p), nil)
		if err != nil {
			return err
		}
		resp, err := b.httpc.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer drainBody(resp)

		if resp.StatusCode == http.StatusNotFound {
			exists = false
			return nil
		}
		if err := checkDriveStatus(resp); err != nil {
			return err
		}

		exists = true
		size, err = strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
		if err != nil {
			size = resp.ContentLength
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to head object on drive: %w", err)
	}
	return size, exists, nil
}

// newRequest builds a request carrying the bearer token.
func (b *DriveBackend) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	return req, nil
}

// drivePath maps a logical path to its location under the root folder.
func (b *DriveBackend) drivePath(p interfaces.LogicalPath) string {
	if b.rootFolder == "" {
		return p.Key()
	}
	return path.Join(b.rootFolder, p.Key())
}

func (b *DriveBackend) objectURL(p interfaces.LogicalPath) string {
	return b.baseURL + "/v1/files/" + escapePath(b.drivePath(p))
}

func (b *DriveBackend) folderURL(p interfaces.LogicalPath) string {
	return b.baseURL + "/v1/folders/" + escapePath(b.drivePath(p))
}

// cacheKey namespaces dir-cache entries per backend instance.
func (b *DriveBackend) cacheKey(p interfaces.LogicalPath) string {
	return b.baseURL + "|" + b.drivePath(p)
}

// checkDriveStatus sorts HTTP responses into the shared taxonomy. 2xx is
// success; 429 and 5xx are transient; remaining 4xx are permanent.
func checkDriveStatus(resp *http.Response) error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return Transient(fmt.Errorf("drive returned status %d", status))
	default:
		return fmt.Errorf("%w: drive returned status %d", interfaces.ErrPermanentBackend, status)
	}
}

// drainBody releases the connection back to the pool.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
