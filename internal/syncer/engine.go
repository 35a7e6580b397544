package syncer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/device"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/storage"
	"github.com/xxxsen/romsync/internal/system"
)

// ErrSessionActive is returned when Start is called while another session runs.
var ErrSessionActive = errors.New("sync session already active")

// RecordSource lists the catalog records tagged with any of tagIDs.
type RecordSource interface {
	ListByTags(ctx context.Context, tagIDs []int64) ([]model.CatalogRecord, error)
}

// DeviceSource resolves registered devices.
type DeviceSource interface {
	Get(ctx context.Context, id int64) (model.Device, error)
}

// ProfileResolver resolves device profiles by id.
type ProfileResolver interface {
	Resolve(id string) (device.Profile, bool)
}

// TargetOpener opens the destination filesystem of a device.
type TargetOpener func(ctx context.Context, dev model.Device) (storage.Target, error)

// Options tune one sync session.
type Options struct {
	// CleanDestination empties the device folders of the systems being synced first.
	CleanDestination bool
	// VerifyFiles re-digests every copy and removes it on mismatch.
	VerifyFiles bool
}

// Engine copies catalog records to a device, one file at a time.
type Engine struct {
	records  RecordSource
	devices  DeviceSource
	profiles ProfileResolver
	open     TargetOpener

	running   atomic.Bool
	cancelled atomic.Bool

	subMu   sync.Mutex
	subs    map[int]func(Status)
	nextSub int
}

func New(records RecordSource, devices DeviceSource, profiles ProfileResolver, open TargetOpener) *Engine {
	return &Engine{
		records:  records,
		devices:  devices,
		profiles: profiles,
		open:     open,
		subs:     make(map[int]func(Status)),
	}
}

// Subscribe registers fn for status pushes and returns a function removing it.
func (e *Engine) Subscribe(fn func(Status)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

// Cancel asks the running session to stop before its next file.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

func (e *Engine) publish(ctx context.Context, st *Status) {
	snapshot := st.clone()
	e.subMu.Lock()
	subs := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()
	for _, fn := range subs {
		deliver(ctx, fn, snapshot)
	}
}

func deliver(ctx context.Context, fn func(Status), st Status) {
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(ctx).Warn("sync progress listener panicked", zap.Any("panic", r))
		}
	}()
	fn(st)
}

func (e *Engine) stopRequested(ctx context.Context) bool {
	return e.cancelled.Load() || ctx.Err() != nil
}

// session carries the state of one Start call.
type session struct {
	e       *Engine
	ctx     context.Context
	st      Status
	target  storage.Target
	profile device.Profile
	opts    Options
	errs    []error
}

// Start runs one sync session to completion. The final status is always
// delivered to subscribers; when files failed, the returned error aggregates them.
func (e *Engine) Start(ctx context.Context, tagIDs []int64, deviceID int64, opts Options) (Status, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Status{Phase: PhaseIdle}, ErrSessionActive
	}
	defer e.running.Store(false)
	e.cancelled.Store(false)

	s := &session{e: e, ctx: ctx, opts: opts, st: Status{SessionID: uuid.NewString(), Phase: PhasePreparing}}
	logger := logutil.GetLogger(ctx).With(zap.String("session", s.st.SessionID))
	e.publish(ctx, &s.st)

	candidates, err := s.prepare(tagIDs, deviceID)
	if err != nil {
		s.st.Phase = PhaseError
		e.publish(ctx, &s.st)
		logger.Error("prepare sync failed", zap.Int64("device", deviceID), zap.Error(err))
		return s.st.clone(), err
	}
	s.st.TotalFiles = len(candidates)
	s.st.Candidates = len(candidates)

	if opts.CleanDestination {
		if err := s.clean(candidates); err != nil {
			s.st.Phase = PhaseError
			e.publish(ctx, &s.st)
			return s.st.clone(), err
		}
	}

	s.st.Phase = PhaseCopying
	e.publish(ctx, &s.st)
	for _, rec := range candidates {
		if e.stopRequested(ctx) {
			s.st.Cancelled = true
			break
		}
		s.process(rec)
		s.st.FilesProcessed++
		s.st.ProgressPercent = percent(s.st.FilesProcessed, s.st.TotalFiles)
		e.publish(ctx, &s.st)
	}

	s.st.CurrentFile = ""
	if s.st.Cancelled {
		// remaining candidates are dropped, not failed
		s.st.TotalFiles = s.st.FilesProcessed
	}
	s.st.ProgressPercent = percent(s.st.FilesProcessed, s.st.TotalFiles)
	s.st.Phase = PhaseDone
	if len(s.st.FilesFailed) > 0 {
		s.st.Phase = PhaseError
	}
	e.publish(ctx, &s.st)
	logger.Info("sync finished",
		zap.String("phase", string(s.st.Phase)),
		zap.Int("total", s.st.TotalFiles),
		zap.Int("copied", s.st.FilesCopied),
		zap.Int("skipped", len(s.st.FilesSkipped)),
		zap.Int("failed", len(s.st.FilesFailed)),
		zap.Bool("cancelled", s.st.Cancelled),
	)
	if len(s.errs) > 0 {
		return s.st.clone(), fmt.Errorf("sync finished with %d failed file(s): %w", len(s.errs), multierr.Combine(s.errs...))
	}
	return s.st.clone(), nil
}

func (s *session) prepare(tagIDs []int64, deviceID int64) ([]model.CatalogRecord, error) {
	dev, err := s.e.devices.Get(s.ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("resolve device %d: %w", deviceID, err)
	}
	profile, ok := s.e.profiles.Resolve(dev.ProfileID)
	if !ok {
		return nil, fmt.Errorf("device %s uses unknown profile %q", dev.Name, dev.ProfileID)
	}
	s.profile = profile
	if s.target, err = s.e.open(s.ctx, dev); err != nil {
		return nil, fmt.Errorf("open device %s: %w", dev.Name, err)
	}
	recs, err := s.e.records.ListByTags(s.ctx, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return recs, nil
}

// clean empties the system folders the candidate set will be copied into.
func (s *session) clean(candidates []model.CatalogRecord) error {
	dirs := make(map[string]struct{})
	for _, rec := range candidates {
		if dir, ok := s.profile.SystemDir(system.Code(rec.SystemCode)); ok {
			dirs[dir] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(dirs))
	for dir := range dirs {
		ordered = append(ordered, dir)
	}
	sort.Strings(ordered)
	for _, dir := range ordered {
		loc, err := s.target.Location(dir)
		if err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := s.target.RemoveAll(s.ctx, dir); err != nil {
			return fmt.Errorf("clean %s: %w", loc, err)
		}
		logutil.GetLogger(s.ctx).Info("destination folder cleaned", zap.String("dir", loc))
	}
	return nil
}

func (s *session) skip(rec model.CatalogRecord, reason string) {
	s.st.FilesSkipped = append(s.st.FilesSkipped, FileOutcome{RecordID: rec.ID, File: rec.FileName, Reason: reason})
}

func (s *session) fail(rec model.CatalogRecord, err error) {
	s.errs = append(s.errs, err)
	s.st.FilesFailed = append(s.st.FilesFailed, FileOutcome{RecordID: rec.ID, File: rec.FileName, Reason: err.Error()})
	logutil.GetLogger(s.ctx).Warn("sync file failed", zap.String("file", rec.FilePath), zap.Error(err))
}

// process gives rec exactly one disposition: copied, skipped or failed.
func (s *session) process(rec model.CatalogRecord) {
	s.st.CurrentFile = rec.FileName
	code := system.Code(rec.SystemCode)
	if !system.IsKnown(code) {
		s.skip(rec, ReasonUnsupportedSystem)
		return
	}
	mapping, ok := s.profile.MappingFor(code)
	if !ok {
		s.skip(rec, ReasonMissingSystemMapping)
		return
	}
	if !mapping.Accepts(filepath.Ext(rec.FileName)) {
		s.skip(rec, ReasonUnsupportedFormat)
		return
	}

	rel := path.Join(s.profile.BasePath, mapping.Folder, rec.FileName)
	exists, err := s.target.Exists(s.ctx, rel)
	if err != nil {
		s.fail(rec, fmt.Errorf("check %s: %w", rec.FileName, err))
		return
	}
	if exists {
		s.skip(rec, ReasonFileExists)
		return
	}
	if err := s.target.Put(s.ctx, rel, rec.FilePath); err != nil {
		s.fail(rec, fmt.Errorf("copy %s: %w", rec.FileName, err))
		return
	}

	if s.opts.VerifyFiles {
		if err := s.verify(rec, rel); err != nil {
			s.fail(rec, err)
			return
		}
	}
	s.st.FilesCopied++
}

func (s *session) verify(rec model.CatalogRecord, rel string) error {
	s.st.Phase = PhaseVerifying
	s.e.publish(s.ctx, &s.st)
	defer func() {
		s.st.Phase = PhaseCopying
	}()

	got, err := s.target.Checksum(s.ctx, rel)
	if err == nil && got == rec.Hashes.ContainerDigest {
		return nil
	}
	if rerr := s.target.Remove(s.ctx, rel); rerr != nil {
		logutil.GetLogger(s.ctx).Error("remove unverified copy failed", zap.String("dest", rel), zap.Error(rerr))
	}
	if err != nil {
		return fmt.Errorf("verify %s: %w", rec.FileName, err)
	}
	return fmt.Errorf("verify %s: checksum mismatch: expected %s, got %s", rec.FileName, rec.Hashes.ContainerDigest, got)
}
