package sqfuse

import (
	"sync"

	"emperror.dev/errors"
	"github.com/rs/zerolog"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// SessionOptions tunes a Session. The zero value is usable.
type SessionOptions struct {
	// Serialize runs every archive call under one mutex. The squashfs
	// reader does not need it; other Archive implementations might.
	Serialize bool

	// HandleLimit caps concurrently open directory and file handles.
	// 0 means no cap.
	HandleLimit int

	// CacheBlocks sets the archive's metadata and fragment cache size in
	// blocks. 0 keeps the reader's default, a negative value disables
	// caching. Only used by Open.
	CacheBlocks int

	// Logger receives lifecycle events at Info and failed operations at
	// Debug. nil discards them.
	Logger *zerolog.Logger
}

// Session serves one archive image. It is created by Open or NewSession,
// borrowed by every operation and torn down by Destroy.
//
// Operations hold the read side of mu for their whole run, so Destroy
// waits for in-flight calls and later calls fail with ErrClosed.
type Session struct {
	mu     sync.RWMutex
	closed bool

	archive Archive
	root    squashfs.Inode
	handles *HandleTracker
	stats   *statsCollector
	logger  *zerolog.Logger
}

// Open opens the image at imagePath, starting offset bytes into the
// file, and prepares a session for it. Anything acquired before a
// failure is released again.
func Open(imagePath string, offset int64, opts *SessionOptions) (*Session, error) {
	if opts == nil {
		opts = &SessionOptions{}
	}

	var archiveOpts []squashfs.Option
	if opts.CacheBlocks != 0 {
		archiveOpts = append(archiveOpts, squashfs.WithCacheSize(max(opts.CacheBlocks, 0)))
	}
	a, err := squashfs.Open(imagePath, offset, archiveOpts...)
	if err != nil {
		return nil, errors.WithMessage(err, "cannot open image")
	}
	return NewSession(NewArchive(a), opts)
}

// NewSession prepares a session for an already opened archive. The
// session owns the archive from here on, including on failure.
func NewSession(a Archive, opts *SessionOptions) (*Session, error) {
	if opts == nil {
		opts = &SessionOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Serialize {
		a = serialize(a)
	}

	root, err := a.Root()
	if err != nil {
		a.Close()
		return nil, errors.WithMessage(err, "cannot resolve root directory")
	}

	s := &Session{
		archive: a,
		root:    root,
		handles: NewHandleTracker(opts.HandleLimit),
		stats:   newStatsCollector(),
		logger:  logger,
	}

	info := a.Info()
	logger.Info().
		Str("compression", info.Compression.String()).
		Uint32("blockSize", info.BlockSize).
		Uint32("inodes", info.Inodes).
		Bool("serialized", opts.Serialize).
		Msg("session opened")
	return s, nil
}

// Destroy closes the archive. Handles still open are dropped and every
// later operation fails with ErrClosed. Calling Destroy again is a
// no-op.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	dropped := s.handles.CloseAll()
	err := s.archive.Close()
	ev := s.logger.Info().Int("droppedHandles", dropped).Uint64("operations", s.stats.operations.Load())
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("session destroyed")
	return errors.WithMessage(err, "cannot close archive")
}

// enter admits an operation. Callers must call leave when enter
// succeeds.
func (s *Session) enter() error {
	s.stats.recordOperation()
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.stats.recordError()
		return errors.WithStack(ErrClosed)
	}
	return nil
}

func (s *Session) leave() {
	s.mu.RUnlock()
}

// fail records a failed operation.
func (s *Session) fail(op, path string, err error) error {
	s.stats.recordError()
	s.logger.Debug().Err(err).Str("op", op).Str("path", path).Str("errno", mapError(err).Error()).Msg("operation failed")
	return err
}

// Info reports image-wide figures.
func (s *Session) Info() (squashfs.Info, error) {
	if err := s.enter(); err != nil {
		return squashfs.Info{}, err
	}
	defer s.leave()
	return s.archive.Info(), nil
}

// Stats returns session statistics.
func (s *Session) Stats() Stats {
	stats := s.stats.snapshot()
	stats.OpenHandles = s.handles.Count()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed {
		info := s.archive.Info()
		stats.MetadataCacheHitRate = info.MetadataCache.HitRate
		stats.FragmentCacheHitRate = info.FragmentCache.HitRate
	}
	return stats
}

// Logger returns the session logger.
func (s *Session) Logger() *zerolog.Logger {
	return s.logger
}
