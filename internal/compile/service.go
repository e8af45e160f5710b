package compile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/video-compiler/internal/executor"
	"github.com/maauso/video-compiler/internal/job"
	"github.com/maauso/video-compiler/internal/job/id"
	"github.com/maauso/video-compiler/internal/media"
	"github.com/maauso/video-compiler/internal/memory"
	"github.com/maauso/video-compiler/internal/plan"
	"github.com/maauso/video-compiler/internal/storage"
	"github.com/maauso/video-compiler/internal/telemetry"
)

// ErrPanic is reported when the pipeline panics.
var ErrPanic = errors.New("compile: internal error")

// OutputContentType is the content type of uploaded videos.
const OutputContentType = "video/mp4"

// Downloader fetches a URL to a local file.
type Downloader interface {
	Fetch(ctx context.Context, rawURL, dest string, want storage.MediaKind) (storage.FetchResult, error)
}

// DurationProber measures clip durations.
type DurationProber interface {
	Probe(ctx context.Context, path string) float64
}

// ClipNormalizer letterboxes clips to the output frame.
type ClipNormalizer interface {
	Normalize(ctx context.Context, clips []string, target media.AspectTarget) media.NormalizeResult
}

// PlanExecutor runs a primary plan with a fallback.
type PlanExecutor interface {
	ExecuteWithFallback(ctx context.Context, primary *plan.Plan, fallback func() *plan.Plan, output string) (*executor.Result, error)
}

// MemoryGovernor samples resident memory between pipeline stages. Track
// scopes a peak figure to one job.
type MemoryGovernor interface {
	Checkpoint(label string) uint64
	Threshold() uint64
	Track() memory.PeakTracker
}

type nopGovernor struct{}

func (nopGovernor) Checkpoint(string) uint64  { return 0 }
func (nopGovernor) Threshold() uint64         { return 0 }
func (nopGovernor) Track() memory.PeakTracker { return nopTracker{} }

type nopTracker struct{}

func (nopTracker) Peak() uint64 { return 0 }
func (nopTracker) Stop()        {}

// Buckets names the buckets a compile reads from and writes to.
type Buckets struct {
	Clips  string
	Music  string
	Output string
}

// Service compiles clip sequences into a single video.
type Service struct {
	store      storage.ObjectStore
	fetcher    Downloader
	prober     DurationProber
	normalizer ClipNormalizer
	executor   PlanExecutor
	repo       job.Repository
	governor   MemoryGovernor
	recorder   telemetry.Recorder
	validator  *validator.Validate
	logger     *slog.Logger

	buckets           Buckets
	signedURLTTL      time.Duration
	tempDir           string
	basicTierMinClips int
}

// Option configures a Service.
type Option func(*Service)

// WithBuckets sets the clip, music and output buckets.
func WithBuckets(b Buckets) Option {
	return func(s *Service) {
		s.buckets = b
	}
}

// WithSignedURLTTL sets the lifetime of download URLs.
func WithSignedURLTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.signedURLTTL = d
		}
	}
}

// WithTempDir sets the parent of per-job scratch directories.
func WithTempDir(dir string) Option {
	return func(s *Service) {
		s.tempDir = dir
	}
}

// WithBasicTierMinClips makes jobs with more clips than n start at the basic
// tier. Zero disables the rule.
func WithBasicTierMinClips(n int) Option {
	return func(s *Service) {
		s.basicTierMinClips = n
	}
}

// WithMemoryGovernor sets the governor sampled between stages.
func WithMemoryGovernor(g MemoryGovernor) Option {
	return func(s *Service) {
		if g != nil {
			s.governor = g
		}
	}
}

// WithRecorder sets the telemetry recorder for job events.
func WithRecorder(r telemetry.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a compile Service. A nil repo keeps records in memory.
func NewService(
	store storage.ObjectStore,
	fetcher Downloader,
	prober DurationProber,
	normalizer ClipNormalizer,
	exec PlanExecutor,
	repo job.Repository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if repo == nil {
		repo = job.NewMemoryRepository()
	}
	s := &Service{
		store:        store,
		fetcher:      fetcher,
		prober:       prober,
		normalizer:   normalizer,
		executor:     exec,
		repo:         repo,
		governor:     nopGovernor{},
		recorder:     telemetry.Nop{},
		validator:    validator.New(),
		logger:       logger,
		buckets:      Buckets{Clips: "private-photos", Music: "music-tracks", Output: "final-videos"},
		signedURLTTL: time.Hour,
		tempDir:      os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetJob retrieves a job record by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	return s.repo.FindByID(ctx, jobID)
}

// OutputKey returns the object key of a compiled video.
func OutputKey(userID, jobID string) string {
	return fmt.Sprintf("final_videos/%s/%s.mp4", userID, jobID)
}

// Compile runs the whole pipeline for req. Validation failures return 400
// before any work is done; every later failure returns 500 and marks the
// job record failed.
func (s *Service) Compile(ctx context.Context, req Request) (resp Response) {
	start := time.Now()

	clips, err := s.validate(req)
	if err != nil {
		s.logger.Warn("compile request rejected", slog.String("error", err.Error()))
		return Response{
			StatusCode: http.StatusBadRequest,
			Body:       ResponseBody{Error: err.Error(), JobID: req.JobID},
		}
	}

	jobID := s.resolveJobID(ctx, req)
	ctx = telemetry.ContextWithJobID(ctx, jobID)
	logger := s.logger.With(slog.String("job_id", jobID), slog.String("user_id", req.UserID))

	record := newRecord(jobID, req, clips)
	if err := record.Start(); err != nil {
		logger.Warn("failed to start job record", slog.String("error", err.Error()))
	}
	s.save(ctx, logger, record)

	peak := s.governor.Track()
	defer peak.Stop()

	logger.Info("compile started",
		slog.Int("clips", len(clips)),
		slog.String("transition", req.Settings.TransitionType),
		slog.String("aspect", req.Settings.OutputAspectRatio),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("compile panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			resp = s.fail(ctx, logger, record, fmt.Errorf("%w: %v", ErrPanic, r), len(clips), nil, peak.Peak(), start)
		}
	}()

	scratch, err := os.MkdirTemp(s.tempDir, "job-*")
	if err != nil {
		return s.fail(ctx, logger, record, fmt.Errorf("create scratch dir: %w", err), len(clips), nil, peak.Peak(), start)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("failed to remove scratch dir",
				slog.String("path", scratch),
				slog.String("error", err.Error()),
			)
		}
	}()

	out, err := s.run(ctx, logger, req, clips, scratch)
	if err != nil {
		return s.fail(ctx, logger, record, err, len(clips), out.result, peak.Peak(), start)
	}

	stats := out.stats(len(clips), peak.Peak(), time.Since(start))
	if err := record.Complete(out.key, stats); err != nil {
		logger.Warn("failed to complete job record", slog.String("error", err.Error()))
	}
	s.save(ctx, logger, record)

	s.recorder.Job(telemetry.JobEvent{
		JobID:       jobID,
		Clips:       len(clips),
		Normalized:  out.normalized,
		Tier:        string(out.result.Tier),
		Attempts:    out.result.Attempts,
		Success:     true,
		Elapsed:     time.Since(start),
		OutputBytes: out.result.Size,
		PeakMemory:  stats.PeakMemoryBytes,
	})

	logger.Info("compile completed",
		slog.String("output", out.key),
		slog.String("tier", string(out.result.Tier)),
		slog.Int("attempts", out.result.Attempts),
		slog.String("size", humanize.IBytes(uint64(out.result.Size))),
		slog.Duration("elapsed", time.Since(start)),
	)

	return Response{
		StatusCode: http.StatusOK,
		Body: ResponseBody{
			Message:    "Video compilation completed successfully",
			JobID:      jobID,
			OutputPath: out.key,
			Stats:      &stats,
		},
	}
}

// validate checks the request shape and returns the usable clips in order.
func (s *Service) validate(req Request) ([]ClipRef, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	clips := req.usableClips()
	if len(clips) == 0 {
		return nil, ErrNoUsableClips
	}
	for _, c := range req.Clips {
		if c.SourcePath == "" {
			s.logger.Warn("skipping clip without source path", slog.String("clip_id", c.ID))
		}
	}
	return clips, nil
}

// resolveJobID prefers the request's job ID, then the Lambda request ID.
func (s *Service) resolveJobID(ctx context.Context, req Request) string {
	if req.JobID != "" {
		return req.JobID
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return id.Generate()
}

// outcome is what a successful pipeline run produced.
type outcome struct {
	key        string
	result     *executor.Result
	duration   float64
	normalized int
}

func (o outcome) stats(clips int, peakBytes uint64, elapsed time.Duration) job.Stats {
	return job.Stats{
		ClipCount:       clips,
		NormalizedClips: o.normalized,
		DurationSeconds: o.duration,
		Tier:            string(o.result.Tier),
		Attempts:        o.result.Attempts,
		OutputBytes:     o.result.Size,
		ElapsedMs:       elapsed.Milliseconds(),
		PeakMemoryBytes: peakBytes,
	}
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, req Request, refs []ClipRef, scratch string) (outcome, error) {
	s.governor.Checkpoint("start")

	paths := make([]string, len(refs))
	for i, ref := range refs {
		dest := filepath.Join(scratch, fmt.Sprintf("clip_%03d.mp4", i))
		if err := s.download(ctx, s.buckets.Clips, ref.SourcePath, dest, storage.KindVideo); err != nil {
			return outcome{}, fmt.Errorf("download clip %s: %w", ref.ID, err)
		}
		paths[i] = dest
	}
	s.governor.Checkpoint("after_download")

	durations := make([]float64, len(paths))
	for i, p := range paths {
		durations[i] = s.prober.Probe(ctx, p)
	}
	s.governor.Checkpoint("after_probe")

	aspect := media.ParseAspect(req.Settings.OutputAspectRatio)
	norm := s.normalizer.Normalize(ctx, paths, aspect)
	clips := make([]plan.Clip, len(paths))
	for i := range paths {
		clips[i] = plan.Clip{
			Path:       norm.Paths[i],
			Index:      i,
			Duration:   durations[i],
			Normalized: norm.Paths[i] != paths[i],
		}
	}
	s.governor.Checkpoint("after_normalize")

	music, err := s.fetchMusic(ctx, logger, req.Music, scratch)
	if err != nil {
		return outcome{}, err
	}

	tr := plan.NewTransition(plan.ParsePolicy(req.Settings.TransitionType), transitionSeconds(req.Settings))
	in, err := plan.NewInput(clips, music, tr, aspect)
	if err != nil {
		return outcome{}, err
	}

	tier := s.chooseTier(len(clips))
	primary := plan.Build(in, tier)
	logger.Info("plan built",
		slog.String("tier", string(tier)),
		slog.String("policy", string(primary.Policy)),
		slog.Float64("duration", primary.Duration),
		slog.Bool("music", primary.HasMusic),
	)

	output := filepath.Join(scratch, "final_video.mp4")
	result, err := s.executor.ExecuteWithFallback(ctx, primary, func() *plan.Plan {
		return plan.Build(in, plan.TierFallback)
	}, output)
	if err != nil {
		return outcome{result: result}, err
	}

	key := OutputKey(req.UserID, telemetry.JobIDFromContext(ctx))
	if err := s.upload(ctx, output, key); err != nil {
		return outcome{result: result}, err
	}
	s.governor.Checkpoint("after_upload")

	return outcome{
		key:        key,
		result:     result,
		duration:   primary.Duration,
		normalized: norm.Normalized,
	}, nil
}

// fetchMusic downloads the music track. A missing track or a non-positive
// volume means no music.
func (s *Service) fetchMusic(ctx context.Context, logger *slog.Logger, ref *MusicRef, scratch string) (*plan.Music, error) {
	if ref == nil || ref.SourcePath == "" {
		return nil, nil
	}
	vol := ref.volume()
	if vol <= 0 {
		logger.Info("music volume is zero, compiling without music", slog.String("track_id", ref.ID))
		return nil, nil
	}
	dest := filepath.Join(scratch, "music.mp3")
	if err := s.download(ctx, s.buckets.Music, ref.SourcePath, dest, storage.KindAudio); err != nil {
		return nil, fmt.Errorf("download music %s: %w", ref.ID, err)
	}
	return &plan.Music{Path: dest, Volume: vol, TrackID: ref.ID}, nil
}

func (s *Service) download(ctx context.Context, bucket, key, dest string, kind storage.MediaKind) error {
	u, err := s.store.SignedDownloadURL(ctx, bucket, key, s.signedURLTTL)
	if err != nil {
		return fmt.Errorf("sign %s/%s: %w", bucket, key, err)
	}
	if _, err := s.fetcher.Fetch(ctx, u, dest, kind); err != nil {
		return err
	}
	return nil
}

func (s *Service) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	if _, err := s.store.Upload(ctx, s.buckets.Output, key, f, OutputContentType); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// chooseTier starts at the basic tier for long sequences or when memory is
// already above half the emergency threshold.
func (s *Service) chooseTier(clips int) plan.Tier {
	if s.basicTierMinClips > 0 && clips > s.basicTierMinClips {
		return plan.TierBasic
	}
	if threshold := s.governor.Threshold(); threshold > 0 && s.governor.Checkpoint("before_plan") > threshold/2 {
		return plan.TierBasic
	}
	return plan.TierFull
}

func transitionSeconds(st Settings) float64 {
	if st.TransitionDurationSeconds == nil {
		return plan.DefaultTransitionSeconds
	}
	return *st.TransitionDurationSeconds
}

func newRecord(jobID string, req Request, clips []ClipRef) *job.Job {
	j := job.NewWithID(jobID, req.UserID)
	j.ClipIDs = make([]string, len(clips))
	for i, c := range clips {
		j.ClipIDs[i] = c.ID
	}
	if req.Music != nil {
		j.MusicTrackID = req.Music.ID
		j.MusicVolume = req.Music.volume()
	}
	j.TransitionType = string(plan.ParsePolicy(req.Settings.TransitionType))
	j.TransitionSeconds = transitionSeconds(req.Settings)
	j.AspectRatio = string(media.ParseAspect(req.Settings.OutputAspectRatio))
	return j
}

// fail marks the record failed and builds the 500 response.
func (s *Service) fail(ctx context.Context, logger *slog.Logger, record *job.Job, err error, clips int, res *executor.Result, peak uint64, start time.Time) Response {
	logger.Error("compile failed", slog.String("error", err.Error()))

	if terr := record.Fail(err.Error()); terr != nil {
		logger.Warn("failed to mark job record failed", slog.String("error", terr.Error()))
	}
	s.save(ctx, logger, record)

	ev := telemetry.JobEvent{
		JobID:      record.ID,
		Clips:      clips,
		Success:    false,
		Elapsed:    time.Since(start),
		PeakMemory: peak,
		Err:        err,
	}
	if res != nil {
		ev.Tier = string(res.Tier)
		ev.Attempts = res.Attempts
	}
	s.recorder.Job(ev)

	return Response{
		StatusCode: http.StatusInternalServerError,
		Body: ResponseBody{
			Error: fmt.Sprintf("Video compilation failed: %v", err),
			JobID: record.ID,
		},
	}
}

// save persists the record. Failures are logged and swallowed so they never
// mask the compile outcome.
func (s *Service) save(ctx context.Context, logger *slog.Logger, record *job.Job) {
	if err := s.repo.Save(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("failed to save job record",
			slog.String("status", string(record.GetStatus())),
			slog.String("error", err.Error()),
		)
	}
}
