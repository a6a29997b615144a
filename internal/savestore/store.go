package savestore

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/simsave/internal/storage/compressor"
	"github.com/lk2023060901/simsave/internal/storage/crypto"
	"github.com/lk2023060901/simsave/pkg/log"
	"github.com/lk2023060901/simsave/pkg/metrics"
	"github.com/lk2023060901/simsave/pkg/objgraph"
	"github.com/lk2023060901/simsave/pkg/util/conc"
	"github.com/lk2023060901/simsave/pkg/util/hardware"
	"github.com/lk2023060901/simsave/pkg/util/merr"
	"github.com/lk2023060901/simsave/pkg/util/retry"
	"github.com/lk2023060901/simsave/pkg/util/typeutil"
)

const tracerName = "github.com/lk2023060901/simsave/internal/savestore"

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// TableWriteFunc 在对象流写出之后被调用，dir 为尚未提交的临时存档目录。
// 可通过 sess.IDOf 取得对象 ID，写出与对象流关联的表格文件。
type TableWriteFunc func(ctx context.Context, dir string, sess *objgraph.WriteSession) error

// TableLoadFunc 在对象流读入之后被调用，可通过 sess.Lookup 按 ID 找回对象。
type TableLoadFunc func(ctx context.Context, dir string, sess *objgraph.ReadSession) error

type namedWriter struct {
	name string
	fn   TableWriteFunc
}

type namedLoader struct {
	name string
	fn   TableLoadFunc
}

// Option 用于配置 Store。
type Option func(*Store)

// WithTableWriter 注册一个表格写出器，其名字记录在清单的 tables 中。
func WithTableWriter(name string, fn TableWriteFunc) Option {
	return func(s *Store) {
		s.writers = append(s.writers, namedWriter{name: name, fn: fn})
	}
}

// WithTableLoader 注册一个表格加载器，只对清单中记录了同名表格的存档生效。
func WithTableLoader(name string, fn TableLoadFunc) Option {
	return func(s *Store) {
		s.loaders = append(s.loaders, namedLoader{name: name, fn: fn})
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// Unit 是 SaveMany 的一个存档单元。
type Unit struct {
	Name  string
	Roots []any
}

// Snapshot 是 Load 的结果。Session 保留了 ID 到对象的映射，供后续按 ID 解析。
type Snapshot struct {
	Manifest *Manifest
	Roots    []any
	Session  *objgraph.ReadSession
}

// Store 将对象图以存档目录的形式保存在 RootDir 下，每个存档一个子目录。
type Store struct {
	log.Binder

	cfg      Config
	codec    *streamCodec
	pool     *conc.Pool[*Manifest]
	inflight *typeutil.ConcurrentSet[string]
	writers  []namedWriter
	loaders  []namedLoader
	tracer   trace.Tracer
	closed   atomic.Bool
}

func New(cfg Config, reg *objgraph.Registry, opts ...Option) (*Store, error) {
	if reg == nil {
		return nil, merr.WrapErrParameterMissing("registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, merr.WrapErrIoFailed(cfg.RootDir, err)
	}
	comp, err := compressor.New(cfg.Compression, cfg.MinCompressSize)
	if err != nil {
		return nil, err
	}

	sealer, err := crypto.FromHexKeys(cfg.SealKey, cfg.MacKey)
	if err != nil {
		comp.Close()
		return nil, err
	}

	pool := conc.NewPool[*Manifest](cfg.Workers,
		conc.WithPoolName("savestore"), conc.WithConcealPanic(true))
	s := &Store{
		cfg:      cfg,
		codec:    &streamCodec{reg: reg, indent: cfg.Indent, compressor: comp, sealer: sealer},
		pool:     pool,
		inflight: typeutil.NewConcurrentSet[string](),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.BindComponent("savestore", zap.String("root", cfg.RootDir))
	s.removeStale()
	return s, nil
}

func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) dir(name string) string {
	return filepath.Join(s.cfg.RootDir, name)
}

func (s *Store) checkName(name string) error {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return merr.WrapErrParameterInvalidMsg("invalid save name %q", name)
	}
	return nil
}

func (s *Store) checkOpen(op string) error {
	if s.closed.Load() {
		return merr.WrapErrOperationNotSupported(op, "store closed")
	}
	return nil
}

// acquire 保证同一存档同一时刻只有一个写操作。
func (s *Store) acquire(name string) (func(), error) {
	if !s.inflight.Insert(name) {
		return nil, merr.WrapErrParameterInvalidMsg("save %q is busy", name)
	}
	return func() { s.inflight.Remove(name) }, nil
}

// Save 使用同一个写会话将 roots 写成一个存档，roots 之间共享的对象只写出一次。
// 写入先落在临时目录，全部完成后再重命名为最终目录。
func (s *Store) Save(ctx context.Context, name string, roots ...any) (m *Manifest, err error) {
	if err := s.checkOpen("save"); err != nil {
		return nil, err
	}
	if err := s.checkName(name); err != nil {
		return nil, err
	}
	release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "savestore.Save", trace.WithAttributes(attribute.String("save.name", name)))
	start := time.Now()
	defer func() {
		observe(metrics.StoreSaves, metrics.StoreSaveLatency, start, err)
		metrics.ObserveCodecError(metrics.WriteLabel, err)
		endSpan(span, err)
	}()

	final := s.dir(name)
	if !s.cfg.Overwrite {
		if _, serr := os.Stat(final); serr == nil {
			return nil, merr.WrapErrSaveAlreadyExists(name)
		}
	}
	if err := s.checkDiskSpace(); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp(s.cfg.RootDir, "."+name+".tmp-")
	if err != nil {
		return nil, merr.WrapErrIoFailed(s.cfg.RootDir, err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(tmp)
		}
	}()

	sess := objgraph.NewWriteSession()
	stream, err := s.codec.encode(ctx, sess, roots)
	if err != nil {
		return nil, err
	}
	streamPath := filepath.Join(tmp, streamFileName(stream.compression))
	err = os.WriteFile(streamPath, stream.data, 0o644)
	stream.release()
	if err != nil {
		return nil, merr.WrapErrIoFailed(streamPath, err)
	}
	for _, w := range s.writers {
		if err := w.fn(ctx, tmp, sess); err != nil {
			return nil, errors.Wrapf(err, "writing table %s", w.name)
		}
	}

	stats := sess.Stats()
	m = &Manifest{
		Format:      FormatVersion,
		Name:        name,
		Session:     sess.ID(),
		CreatedAt:   time.Now().UTC(),
		Compression: stream.compression,
		Sealing:     stream.sealing,
		Stream:      filepath.Base(streamPath),
		StreamBytes: stream.rawBytes,
		Roots:       len(roots),
		RootIDs:     stream.rootIDs,
		Objects:     stats.Objects,
		Backrefs:    stats.Backrefs,
		Tables:      lo.Map(s.writers, func(w namedWriter, _ int) string { return w.name }),
	}
	if err := writeManifest(tmp, m); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, tmp, final); err != nil {
		return nil, err
	}

	metrics.StoreStreamBytes.WithLabelValues(metrics.WriteLabel).Observe(float64(stream.rawBytes))
	metrics.CodecObjectsWritten.Add(float64(stats.Objects))
	metrics.CodecBackrefsWritten.Add(float64(stats.Backrefs))
	s.Logger().Info("save committed",
		log.FieldSave(name),
		log.FieldSession(sess.ID()),
		zap.Int("objects", stats.Objects),
		zap.Int("backrefs", stats.Backrefs),
		zap.Int64("streamBytes", stream.rawBytes),
		zap.String("compression", stream.compression))
	return m, nil
}

// SaveMany 在协程池上并发保存多个存档，每个存档使用独立的写会话。
// 返回的清单与 units 一一对应，失败的位置为 nil。
func (s *Store) SaveMany(ctx context.Context, units ...Unit) ([]*Manifest, error) {
	if err := s.checkOpen("save"); err != nil {
		return nil, err
	}
	if dup := lo.FindDuplicates(lo.Map(units, func(u Unit, _ int) string { return u.Name })); len(dup) > 0 {
		return nil, merr.WrapErrParameterInvalidMsg("duplicate save names %v", dup)
	}
	futures := lo.Map(units, func(u Unit, _ int) *conc.Future[*Manifest] {
		return s.pool.Submit(func() (*Manifest, error) {
			return s.Save(ctx, u.Name, u.Roots...)
		})
	})
	manifests, errs := conc.AwaitAll(futures...)
	return manifests, merr.Combine(errs...)
}

// Load 读取存档：先按清单重放对象流，再依次调用表格加载器。
func (s *Store) Load(ctx context.Context, name string) (snap *Snapshot, err error) {
	if err := s.checkOpen("load"); err != nil {
		return nil, err
	}
	if err := s.checkName(name); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "savestore.Load", trace.WithAttributes(attribute.String("save.name", name)))
	start := time.Now()
	defer func() {
		observe(metrics.StoreLoads, metrics.StoreLoadLatency, start, err)
		metrics.ObserveCodecError(metrics.ReadLabel, err)
		endSpan(span, err)
	}()

	dir := s.dir(name)
	m, plain, err := s.readStream(dir, name)
	if err != nil {
		return nil, err
	}

	sess := objgraph.NewReadSession()
	roots, err := s.codec.decode(ctx, sess, plain, m.Roots)
	if err != nil {
		if merr.IsCanceledOrTimeout(err) {
			return nil, err
		}
		return nil, merr.MarkSaveCorrupted(name, err)
	}
	if int64(len(plain)) != m.StreamBytes {
		return nil, merr.MarkSaveCorrupted(name, merr.WrapErrIoUnexpectEOF(filepath.Join(dir, m.Stream),
			errors.Newf("stream has %d bytes, manifest records %d", len(plain), m.StreamBytes)))
	}
	for i, id := range m.RootIDs {
		if id == objgraph.NoID {
			continue
		}
		if obj, ok := sess.Lookup(id); !ok || obj != roots[i] {
			return nil, merr.MarkSaveCorrupted(name, merr.WrapErrTypeMismatch("#"+strconv.Itoa(id), "different root object"))
		}
	}
	for _, l := range s.loaders {
		if !lo.Contains(m.Tables, l.name) {
			continue
		}
		if err := l.fn(ctx, dir, sess); err != nil {
			return nil, errors.Wrapf(err, "loading table %s", l.name)
		}
	}

	stats := sess.Stats()
	metrics.StoreStreamBytes.WithLabelValues(metrics.ReadLabel).Observe(float64(len(plain)))
	metrics.CodecObjectsRead.Add(float64(stats.Objects))
	s.Logger().Info("save loaded",
		log.FieldSave(name),
		log.FieldSession(sess.ID()),
		zap.Int("roots", len(roots)),
		zap.Int("objects", stats.Objects))
	return &Snapshot{Manifest: m, Roots: roots, Session: sess}, nil
}

// Inspect 只解析对象流而不实例化，用于查看未注册类型的存档。
func (s *Store) Inspect(ctx context.Context, name string) (*Manifest, []objgraph.Value, error) {
	if err := s.checkOpen("inspect"); err != nil {
		return nil, nil, err
	}
	if err := s.checkName(name); err != nil {
		return nil, nil, err
	}
	m, plain, err := s.readStream(s.dir(name), name)
	if err != nil {
		return nil, nil, err
	}
	values, err := s.codec.inspect(ctx, plain)
	if err != nil {
		if merr.IsCanceledOrTimeout(err) {
			return nil, nil, err
		}
		return nil, nil, merr.MarkSaveCorrupted(name, err)
	}
	return m, values, nil
}

// Stream 返回存档清单与解压后的对象流文本。
func (s *Store) Stream(ctx context.Context, name string) (*Manifest, []byte, error) {
	if err := s.checkOpen("stream"); err != nil {
		return nil, nil, err
	}
	if err := s.checkName(name); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return s.readStream(s.dir(name), name)
}

// readStream 读取清单与解压后的对象流。
func (s *Store) readStream(dir, name string) (*Manifest, []byte, error) {
	m, err := readManifest(dir, name)
	if err != nil {
		return nil, nil, err
	}
	if m.Stream != streamFileName(m.Compression) {
		return nil, nil, merr.MarkSaveCorrupted(name,
			merr.WrapErrParameterInvalid(streamFileName(m.Compression), m.Stream, "stream file"))
	}
	path := filepath.Join(dir, m.Stream)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, merr.MarkSaveCorrupted(name, merr.WrapErrIoKeyNotFound(path))
	}
	if err != nil {
		return nil, nil, merr.WrapErrIoFailed(path, err)
	}
	plain, err := s.codec.unpack(data, m)
	if err != nil {
		if errors.IsAny(err, merr.ErrParameterMissing, merr.ErrOperationNotSupported) {
			return nil, nil, err
		}
		return nil, nil, merr.MarkSaveCorrupted(name, err)
	}
	return m, plain, nil
}

// List 返回根目录下全部可读存档的清单，按名字排序；清单损坏的存档被跳过并记录日志。
func (s *Store) List(ctx context.Context) ([]*Manifest, error) {
	if err := s.checkOpen("list"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.cfg.RootDir)
	if err != nil {
		return nil, merr.WrapErrIoFailed(s.cfg.RootDir, err)
	}
	var result []*Manifest
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m, err := readManifest(s.dir(e.Name()), e.Name())
		if err != nil {
			s.Logger().RatedWarn(1, "skip unreadable save", log.FieldSave(e.Name()), zap.Error(err))
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.checkOpen("delete"); err != nil {
		return err
	}
	if err := s.checkName(name); err != nil {
		return err
	}
	release, err := s.acquire(name)
	if err != nil {
		return err
	}
	defer release()

	dir := s.dir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return merr.WrapErrSaveNotFound(name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return merr.WrapErrIoFailed(dir, err)
	}
	log.Ctx(ctx).Info("save deleted", log.FieldSave(name))
	return nil
}

// Close 释放协程池与压缩器，之后的调用均返回 ErrOperationNotSupported。
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.pool.Release()
	s.codec.compressor.Close()
}

func (s *Store) checkDiskSpace() error {
	if s.cfg.MinFreeBytes == 0 {
		return nil
	}
	free, err := hardware.GetFreeDiskBytes(s.cfg.RootDir)
	if err != nil {
		return merr.WrapErrIoFailed(s.cfg.RootDir, err)
	}
	if free < s.cfg.MinFreeBytes {
		return merr.WrapErrIoFailed(s.cfg.RootDir, errors.Newf("%d bytes free, need %d", free, s.cfg.MinFreeBytes))
	}
	return nil
}

// commit 用临时目录替换最终目录，失败时按配置重试。
func (s *Store) commit(ctx context.Context, tmp, final string) error {
	return retry.Do(ctx, func() error {
		if err := replaceDir(s.cfg.RootDir, tmp, final); err != nil {
			metrics.StoreCommitRetries.Inc()
			return merr.WrapErrIoFailed(final, err)
		}
		return nil
	}, retry.Attempts(s.cfg.CommitRetries), retry.Sleep(20*time.Millisecond), retry.RetryErr(merr.IsRetryableErr))
}

func replaceDir(root, tmp, final string) error {
	if _, err := os.Stat(final); os.IsNotExist(err) {
		return os.Rename(tmp, final)
	}
	old := filepath.Join(root, "."+filepath.Base(final)+".old-"+uuid.NewString())
	if err := os.Rename(final, old); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Rename(old, final)
		return err
	}
	return os.RemoveAll(old)
}

// removeStale 清理上次进程异常退出时遗留的临时目录。
func (s *Store) removeStale() {
	entries, err := os.ReadDir(s.cfg.RootDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, ".") {
			continue
		}
		if strings.Contains(name, ".tmp-") || strings.Contains(name, ".old-") {
			if err := os.RemoveAll(filepath.Join(s.cfg.RootDir, name)); err == nil {
				s.Logger().Info("removed stale save directory", zap.String("dir", name))
			}
		}
	}
}

func observe(counter *prometheus.CounterVec, latency prometheus.Histogram, start time.Time, err error) {
	status := metrics.SuccessLabel
	if err != nil {
		status = metrics.FailLabel
	}
	counter.WithLabelValues(status).Inc()
	latency.Observe(float64(time.Since(start).Milliseconds()))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
