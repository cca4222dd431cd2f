package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/platform/observability"
)

var (
	errPipelineResolverRequired = errors.New("media edit pipeline: resolver is required")
	errPipelineDecoderRequired  = errors.New("media edit pipeline: decoder is required")
)

// PipelineState enumerates the media edit pipeline states.
type PipelineState string

const (
	PipelineIdle               PipelineState = "idle"
	PipelineTargetSelected     PipelineState = "target-selected"
	PipelineAwaitingUpload     PipelineState = "awaiting-upload"
	PipelineAwaitingGeneration PipelineState = "awaiting-generation"
)

// PipelineSnapshot is a read-only view of the pipeline.
type PipelineSnapshot struct {
	State        PipelineState
	Target       *domain.EditTarget
	Title        string
	WorkingImage string
	Creating     bool
	Staged       string
	Busy         bool
	LastError    string

	// Savable is set when a staged result can be committed. Standalone results are download-only.
	Savable bool
}

// MediaEditPipelineDeps wires the collaborators used by both replacement branches.
type MediaEditPipelineDeps struct {
	Resolver *TargetResolver
	Decoder  ImageDecoder
	Fetcher  ImageFetcher
	Editor   ImageEditor
	Haptics  HapticSink
	Logger   Logger
}

// MediaEditPipeline routes a resolved EditTarget through direct upload or AI generation onto
// the resolver's commit. The generation branch can also run without a target, in which case
// results are staged for download and never committed. Methods are safe for concurrent use;
// remote calls (fetch, generation, media offload, event publish) run without the pipeline lock
// held and their results are dropped when the edit was cancelled or re-targeted in the meantime.
type MediaEditPipeline struct {
	resolver *TargetResolver
	decoder  ImageDecoder
	fetcher  ImageFetcher
	editor   ImageEditor
	haptics  HapticSink
	logger   Logger

	mu        sync.Mutex
	state     PipelineState
	target    *domain.EditTarget
	working   string
	creating  bool
	staged    string
	busy      bool
	epoch     uint64
	lastError string
}

// NewMediaEditPipeline constructs an idle pipeline.
func NewMediaEditPipeline(deps MediaEditPipelineDeps) (*MediaEditPipeline, error) {
	if deps.Resolver == nil {
		return nil, errPipelineResolverRequired
	}
	if deps.Decoder == nil {
		return nil, errPipelineDecoderRequired
	}
	haptics := deps.Haptics
	if haptics == nil {
		haptics = noopHaptics
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &MediaEditPipeline{
		resolver: deps.Resolver,
		decoder:  deps.Decoder,
		fetcher:  deps.Fetcher,
		editor:   deps.Editor,
		haptics:  haptics,
		logger:   logger,
		state:    PipelineIdle,
	}, nil
}

// Snapshot returns the current pipeline state.
func (p *MediaEditPipeline) Snapshot() PipelineSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := PipelineSnapshot{
		State:        p.state,
		WorkingImage: p.working,
		Creating:     p.creating,
		Staged:       p.staged,
		Busy:         p.busy,
		LastError:    p.lastError,
		Savable:      p.staged != "" && p.target != nil,
	}
	if p.target != nil {
		t := *p.target
		snap.Target = &t
		snap.Title = t.Title()
	}
	return snap
}

// State returns the current state.
func (p *MediaEditPipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Begin selects target from any state. A prior unconsumed target is discarded without commit.
func (p *MediaEditPipeline) Begin(target domain.EditTarget) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.resolver.Acquire(target); err != nil {
		return err
	}
	p.reset()
	t := target
	p.target = &t
	p.state = PipelineTargetSelected
	return nil
}

// ChooseUpload moves a selected target onto the upload branch.
func (p *MediaEditPipeline) ChooseUpload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelineTargetSelected {
		return p.illegal("choose upload")
	}
	p.state = PipelineAwaitingUpload
	p.lastError = ""
	return nil
}

// CompleteUpload decodes r and commits it. Decode failure returns the pipeline to
// TargetSelected with the target retained.
func (p *MediaEditPipeline) CompleteUpload(ctx context.Context, r io.Reader) (domain.EditTarget, error) {
	p.mu.Lock()
	if p.state != PipelineAwaitingUpload {
		defer p.mu.Unlock()
		return domain.EditTarget{}, p.illegal("complete upload")
	}
	if p.busy {
		p.mu.Unlock()
		return domain.EditTarget{}, ErrPipelineBusy
	}
	p.busy = true
	epoch := p.epoch
	p.mu.Unlock()

	dataURI, decodeErr := p.decoder.Decode(r)

	p.mu.Lock()
	if epoch != p.epoch {
		p.busy = false
		p.mu.Unlock()
		return domain.EditTarget{}, ErrEditCancelled
	}
	target := *p.target
	if decodeErr != nil {
		p.busy = false
		p.state = PipelineTargetSelected
		p.lastError = decodeErr.Error()
		p.haptics.Notify(domain.HapticError)
		p.mu.Unlock()
		p.logger(ctx, "media_edit.upload.decode_failed", map[string]any{"target": target.String(), "error": decodeErr.Error()})
		return target, fmt.Errorf("%w: %v", ErrUploadDecodeFailed, decodeErr)
	}
	p.mu.Unlock()

	return target, p.finish(ctx, epoch, target, dataURI)
}

// ChooseGeneration moves a selected target onto the generation branch, seeding the working
// image from the slot's current value.
func (p *MediaEditPipeline) ChooseGeneration(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelineTargetSelected {
		return p.illegal("choose generation")
	}
	image, ok, err := p.resolver.Resolve(ctx, *p.target)
	if err != nil {
		return err
	}
	p.working = image
	p.creating = !ok
	p.staged = ""
	p.lastError = ""
	p.state = PipelineAwaitingGeneration
	return nil
}

// BeginStandalone opens the generation branch without a target. The working image must be
// supplied with SetWorkingImage, and staged results can be retried but never saved.
func (p *MediaEditPipeline) BeginStandalone() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelineIdle {
		return p.illegal("open the studio")
	}
	p.reset()
	p.state = PipelineAwaitingGeneration
	return nil
}

// Standalone reports whether the generation branch is running without a target.
func (p *MediaEditPipeline) Standalone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == PipelineAwaitingGeneration && p.target == nil
}

// SetWorkingImage replaces the source image used for generation and discards any staged result.
func (p *MediaEditPipeline) SetWorkingImage(payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelineAwaitingGeneration {
		return p.illegal("set working image")
	}
	if p.busy {
		return ErrPipelineBusy
	}
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("%w: image is required", ErrValidationGuard)
	}
	p.working = payload
	p.staged = ""
	p.lastError = ""
	return nil
}

// Generate asks the image editor to transform the working image according to prompt and
// stages the result for preview. Nothing is committed until Save.
func (p *MediaEditPipeline) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)

	p.mu.Lock()
	if p.state != PipelineAwaitingGeneration {
		defer p.mu.Unlock()
		return "", p.illegal("generate")
	}
	if p.busy {
		p.mu.Unlock()
		return "", ErrPipelineBusy
	}
	if p.staged != "" {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: a generated image is awaiting review", ErrIllegalTransition)
	}
	if p.working == "" || prompt == "" {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: an image and a prompt are required", ErrValidationGuard)
	}
	if p.editor == nil {
		p.mu.Unlock()
		return "", ErrGenerationUnavailable
	}
	p.busy = true
	p.lastError = ""
	epoch := p.epoch
	source := p.working
	label := "standalone"
	if p.target != nil {
		label = p.target.String()
	}
	p.mu.Unlock()

	ctx, end := observability.StartSpan(ctx, "media_edit.generate",
		attribute.String("media_edit.target", label))
	result, err := p.runGeneration(ctx, epoch, source, prompt)
	end(err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if epoch != p.epoch {
		p.logger(ctx, "media_edit.generate.dropped", map[string]any{"target": label})
		return "", ErrEditCancelled
	}
	if err != nil {
		p.lastError = err.Error()
		if errors.Is(err, ErrRemoteImageUnavailable) {
			p.lastError = RemoteImageUnavailableMessage
		}
		p.haptics.Notify(domain.HapticError)
		p.logger(ctx, "media_edit.generate.failed", map[string]any{"target": label, "error": err.Error()})
		return "", err
	}
	p.staged = result
	return result, nil
}

func (p *MediaEditPipeline) runGeneration(ctx context.Context, epoch uint64, source, prompt string) (string, error) {
	if isRemoteImage(source) {
		if p.fetcher == nil {
			return "", ErrRemoteImageUnavailable
		}
		fetched, err := p.fetcher.Fetch(ctx, source)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRemoteImageUnavailable, err)
		}
		p.mu.Lock()
		if epoch == p.epoch && p.working == source {
			p.working = fetched
		}
		p.mu.Unlock()
		source = fetched
	}
	result, err := p.editor.Edit(ctx, source, prompt)
	if err != nil {
		return "", newGenerationError(err)
	}
	if strings.TrimSpace(result) == "" {
		return "", newGenerationError(nil)
	}
	return result, nil
}

// TryAgain discards the staged result and returns to prompt entry.
func (p *MediaEditPipeline) TryAgain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelineAwaitingGeneration || p.staged == "" {
		return p.illegal("try again")
	}
	p.staged = ""
	return nil
}

// Save commits the staged result and returns the pipeline to Idle. Standalone results cannot
// be saved.
func (p *MediaEditPipeline) Save(ctx context.Context) (domain.EditTarget, error) {
	p.mu.Lock()
	if p.state != PipelineAwaitingGeneration || p.staged == "" {
		defer p.mu.Unlock()
		return domain.EditTarget{}, p.illegal("save")
	}
	if p.target == nil {
		p.mu.Unlock()
		return domain.EditTarget{}, fmt.Errorf("%w: a standalone result can only be downloaded", ErrIllegalTransition)
	}
	if p.busy {
		p.mu.Unlock()
		return domain.EditTarget{}, ErrPipelineBusy
	}
	p.busy = true
	epoch := p.epoch
	target := *p.target
	image := p.staged
	p.mu.Unlock()

	return target, p.finish(ctx, epoch, target, image)
}

// Cancel returns to Idle from any state and discards the target without committing. A request
// still in flight keeps running; its result is dropped.
func (p *MediaEditPipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PipelineIdle && p.target == nil {
		return
	}
	p.resolver.Release()
	p.reset()
}

// finish commits image for target and clears busy. It is called without p.mu held and with
// busy set: the media offload runs unlocked, the catalog write runs under p.mu only while epoch
// is still current, and the committed event is published after the lock is released.
func (p *MediaEditPipeline) finish(ctx context.Context, epoch uint64, target domain.EditTarget, image string) error {
	stored := p.resolver.Offload(ctx, target, image)

	p.mu.Lock()
	p.busy = false
	if epoch != p.epoch {
		p.mu.Unlock()
		p.logger(ctx, "media_edit.commit.dropped", map[string]any{"target": target.String()})
		return ErrEditCancelled
	}
	written, err := p.resolver.Write(ctx, target, stored)
	// The resolver consumed the target either way; a failed edit must be restarted.
	p.reset()
	if err != nil {
		p.lastError = err.Error()
		p.haptics.Notify(domain.HapticError)
		p.mu.Unlock()
		return err
	}
	p.haptics.Notify(domain.HapticSuccess)
	p.mu.Unlock()

	if written {
		p.resolver.Announce(ctx, target, stored)
	}
	return nil
}

// reset runs with p.mu held. busy is left alone: it tracks the outstanding request, not the edit.
func (p *MediaEditPipeline) reset() {
	p.epoch++
	p.state = PipelineIdle
	p.target = nil
	p.working = ""
	p.creating = false
	p.staged = ""
	p.lastError = ""
}

func (p *MediaEditPipeline) illegal(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrIllegalTransition, op, p.state)
}

func isRemoteImage(image string) bool {
	lower := strings.ToLower(image)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
