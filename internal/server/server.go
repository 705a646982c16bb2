// Package server wires together HTTP routes, dependency injection, and business
// logic. Routing is handled by chi, which layers composable middleware over the
// standard net/http handler signature.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/PhotoFlow/internal/blob"
	"github.com/dharsanguruparan/PhotoFlow/internal/config"
	"github.com/dharsanguruparan/PhotoFlow/internal/events"
	"github.com/dharsanguruparan/PhotoFlow/internal/model"
	"github.com/dharsanguruparan/PhotoFlow/internal/scheduler"
	"github.com/dharsanguruparan/PhotoFlow/internal/signing"
	"github.com/dharsanguruparan/PhotoFlow/internal/store"
)

// Server hosts the PhotoFlow HTTP surface. It stitches together configuration,
// the metadata store, blob storage, the event bus, the background scheduler,
// and signing helpers. Struct embedding is not needed here; fields are
// explicitly referenced for clarity.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	store  *store.PhotoStore
	logbk  *store.WorkflowLog
	bus    *events.Bus
	blobs  blob.Storage
	sched  *scheduler.Scheduler
	signer *signing.Signer
	once   sync.Once
}

// New creates a configured server. In Go it's conventional to return (*Type,
// error) so callers can handle initialization failures.
func New(
	cfg *config.Config,
	log *slog.Logger,
	photos *store.PhotoStore,
	logbook *store.WorkflowLog,
	bus *events.Bus,
	blobs blob.Storage,
	sched *scheduler.Scheduler,
	signer *signing.Signer,
) *Server {
	return &Server{
		cfg:    cfg,
		log:    log,
		store:  photos,
		logbk:  logbook,
		bus:    bus,
		blobs:  blobs,
		sched:  sched,
		signer: signer,
	}
}

// Serve launches the HTTP server and the background scheduler until the
// context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.once.Do(func() {
		// sync.Once ensures we only start the scheduler loop once even if
		// Serve is called multiple times in tests.
		go func() {
			if err := s.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.ErrorContext(ctx, "scheduler stopped", slog.String("err", err.Error()))
			}
		}()
	})
	httpServer := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Routes(),
	}
	go func() {
		<-ctx.Done()
		// When the context is cancelled we gracefully shutdown with a timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes assembles the router. Exported so tests can mount it on httptest
// servers without opening a real socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/photos", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handlePhoto)
		r.Get("/{id}/signed-url", s.handleSignedURL)
	})

	r.Route("/api/logs", func(r chi.Router) {
		r.Get("/", s.handleWorkflowList)
		r.Post("/", s.handleWorkflowAppend)
		r.Delete("/", s.handleWorkflowClear)
	})

	r.Get("/events", s.handleEvents)
	r.Get("/download", s.handleDownload)
	r.Get("/uploads/{name}", s.handleUploadsFile)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Respond with JSON so clients can confirm the process is alive.
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload ingests one or more photos from a multipart form. For every
// saved file it creates a store record in status uploaded, appends the
// creation log entry, and publishes an item-created event — the scheduler
// discovers the new work on its own ticks.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// http.MaxBytesReader wraps the Body to protect against oversized payloads.
	limit := s.cfg.MaxFileSize*int64(s.cfg.MaxFilesPerUpload) + 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	// MultipartReader parses streaming uploads without loading entire files
	// into memory.
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}

	var created []*model.Photo
	for len(created) < s.cfg.MaxFilesPerUpload {
		// MultipartReader.NextPart streams one part at a time; io.EOF indicates
		// there are no more parts.
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		if part.FormName() != "files" {
			part.Close()
			continue
		}
		photo, err := s.ingestPart(ctx, part)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		created = append(created, photo)
	}
	if len(created) == 0 {
		respondError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	model.SortNewestFirst(created)
	respondJSON(w, http.StatusCreated, created)
}

// ingestPart spools one multipart file to a temp file, validates it, moves the
// bytes into blob storage, and records the new photo.
func (s *Server) ingestPart(ctx context.Context, part *multipart.Part) (*model.Photo, error) {
	defer part.Close()
	tmp, err := s.persistTemp(part)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()

	if !s.allowedType(tmp.contentType) {
		return nil, fmt.Errorf("file type %s not allowed", tmp.contentType)
	}

	storedName := storedFileName(tmp.filename)
	if _, err := tmp.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	if err := s.blobs.Save(ctx, storedName, tmp.f, tmp.size, tmp.contentType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	photo, err := s.store.Create(store.CreateInput{
		ID:           uuid.NewString(),
		Filename:     storedName,
		OriginalName: tmp.filename,
	})
	if err != nil {
		// The bytes are orphaned if metadata creation fails; best effort
		// cleanup keeps the backend tidy.
		_ = s.blobs.Remove(ctx, storedName)
		return nil, fmt.Errorf("record photo: %w", err)
	}
	if _, err := s.store.AppendLog(photo.ID, model.LogEntry{
		Timestamp: time.Now().UTC(),
		Message:   "Photo uploaded",
	}); err != nil {
		s.log.ErrorContext(ctx, "append upload log failed",
			slog.String("id", photo.ID),
			slog.String("err", err.Error()),
		)
	}
	s.bus.Publish(model.Created(photo))

	s.log.InfoContext(ctx, "photo uploaded",
		slog.String("id", photo.ID),
		slog.String("filename", storedName),
		slog.Int64("bytes", tmp.size),
	)
	return photo, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	photos, err := s.store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list photos")
		return
	}
	// Newest first
	model.SortNewestFirst(photos)
	respondJSON(w, http.StatusOK, photos)
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Photo not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch photo")
		return
	}
	respondJSON(w, http.StatusOK, photo)
}

// handleEvents is the SSE endpoint. Every state change published on the bus is
// framed as one "data: <json>\n\n" record. The subscription is tied to the
// request context, so a dropped connection releases all resources by itself.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// Subscribe before the first byte goes out: once a client observes the
	// stream opening, every later publish is guaranteed to reach it.
	sub := s.bus.Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial comment to establish the stream before the first real event.
	io.WriteString(w, ":\n\n")
	flusher.Flush()
	// The channel closes when the client disconnects, ending the range loop.
	for ev := range sub {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

func (s *Server) handleWorkflowList(w http.ResponseWriter, r *http.Request) {
	lines, err := s.logbk.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

func (s *Server) handleWorkflowAppend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Line string `json:"line"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Line == "" {
		respondError(w, http.StatusBadRequest, "Field 'line' (string) is required")
		return
	}
	lines, err := s.logbk.Append(body.Line)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to append log")
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

func (s *Server) handleWorkflowClear(w http.ResponseWriter, r *http.Request) {
	if err := s.logbk.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear logs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "Photo not found")
		return
	}
	// Build a short-lived URL by combining the ID, expiry timestamp, and HMAC
	// signature. Unix() returns seconds since epoch which is easy to transmit.
	expiry := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	signature := s.signer.Sign(id, expiry)
	downloadURL := &urlBuilder{
		base: "/download",
		params: map[string]string{
			"photo":     id,
			"expires":   strconv.FormatInt(expiry, 10),
			"signature": signature,
		},
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"url":     downloadURL.String(),
		"expires": strconv.FormatInt(expiry, 10),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	// Query parameters are retrieved via r.URL.Query().Get().
	id := r.URL.Query().Get("photo")
	expires := r.URL.Query().Get("expires")
	signature := r.URL.Query().Get("signature")
	if id == "" || expires == "" || signature == "" {
		respondError(w, http.StatusBadRequest, "missing parameters")
		return
	}
	expiryUnix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expires")
		return
	}
	if time.Unix(expiryUnix, 0).Before(time.Now()) {
		respondError(w, http.StatusUnauthorized, "url expired")
		return
	}
	if !s.signer.Validate(id, expires, signature) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	photo, err := s.store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Photo not found")
		return
	}
	obj, err := s.blobs.Open(r.Context(), photo.Filename)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "file unavailable")
		return
	}
	defer obj.Close()
	w.Header().Set("Content-Disposition", "attachment; filename=\""+photo.OriginalName+"\"")
	http.ServeContent(w, r, photo.Filename, photo.UpdatedAt, obj)
}

// handleUploadsFile serves stored bytes directly, mirroring the static
// /uploads mount of the reference frontend.
func (s *Server) handleUploadsFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	obj, err := s.blobs.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			respondError(w, http.StatusNotFound, "file not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "file unavailable")
		return
	}
	defer obj.Close()
	http.ServeContent(w, r, name, time.Time{}, obj)
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

// persistTemp drains one multipart part into a temp file while enforcing the
// per-file size limit and sniffing the content type.
func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "photoflow-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}
	var sniff []byte
	// Allocate a 32 KiB buffer reused for every Read call; this keeps memory
	// usage bounded regardless of upload size.
	buf := make([]byte, 32*1024)
	// written tracks bytes persisted so we can enforce the configured limit.
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				discard()
				return nil, fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
			}
			// Capture up to 512 bytes so http.DetectContentType can sniff the
			// MIME type according to RFC 2616.
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				discard()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			discard()
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}
	if written == 0 {
		discard()
		return nil, errors.New("empty file")
	}
	filename := part.FileName()
	if filename == "" {
		// Some clients omit filenames, so we generate a deterministic fallback.
		filename = "upload"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
		filename:    filename,
	}, nil
}

func (s *Server) allowedType(contentType string) bool {
	for _, allowed := range s.cfg.AllowedTypes {
		if allowed == contentType {
			return true
		}
	}
	return false
}

var whitespace = regexp.MustCompile(`\s+`)

// storedFileName derives the on-disk name from the client's file name:
// lower-cased base with whitespace collapsed to dashes, suffixed with the
// upload instant in milliseconds to keep repeated uploads distinct.
func storedFileName(original string) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(filepath.Base(original), ext)
	safeBase := strings.ToLower(whitespace.ReplaceAllString(base, "-"))
	return fmt.Sprintf("%s-%d%s", safeBase, time.Now().UnixMilli(), ext)
}

type urlBuilder struct {
	// Small helper struct to keep signed URL creation tidy.
	base   string
	params map[string]string
}

func (u *urlBuilder) String() string {
	q := make([]string, 0, len(u.params))
	for k, v := range u.params {
		// url.QueryEscape ensures values are encoded safely for URLs.
		q = append(q, k+"="+url.QueryEscape(v))
	}
	return u.base + "?" + strings.Join(q, "&")
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	// ResponseWriter exposes headers + status writing; once WriteHeader is
	// called we must send the body, so always set headers first.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode json failed", slog.String("err", err.Error()))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.InfoContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)),
		)
	})
}
