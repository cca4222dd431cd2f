package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/muse-store/miniapp/internal/domain"
)

type pipelineFixture struct {
	pipeline *MediaEditPipeline
	resolver *TargetResolver
	editor   *stubEditor
	haptics  *recordingHaptics
}

func newPipelineFixture(t *testing.T, mutate func(*MediaEditPipelineDeps)) pipelineFixture {
	t.Helper()
	resolver, err := NewTargetResolver(TargetResolverDeps{Catalog: newSeedCatalog(t), Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewTargetResolver: %v", err)
	}
	editor := &stubEditor{}
	haptics := &recordingHaptics{}
	deps := MediaEditPipelineDeps{
		Resolver: resolver,
		Decoder:  stubDecoder{},
		Fetcher:  stubFetcher{},
		Editor:   editor,
		Haptics:  haptics,
	}
	if mutate != nil {
		mutate(&deps)
	}
	pipeline, err := NewMediaEditPipeline(deps)
	if err != nil {
		t.Fatalf("NewMediaEditPipeline: %v", err)
	}
	return pipelineFixture{pipeline: pipeline, resolver: resolver, editor: editor, haptics: haptics}
}

func TestMediaEditPipelineUploadCommits(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)

	if err := f.pipeline.Begin(domain.ProductTarget(2)); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := f.pipeline.ChooseUpload(); err != nil {
		t.Fatalf("ChooseUpload: %v", err)
	}
	target, err := f.pipeline.CompleteUpload(ctx, strings.NewReader("UPLOAD"))
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if target != domain.ProductTarget(2) {
		t.Fatalf("unexpected target %v", target)
	}

	image, _, _ := f.resolver.Resolve(ctx, target)
	if image != "data:image/png;base64,UPLOAD" {
		t.Fatalf("expected committed upload, got %q", image)
	}
	if f.pipeline.State() != PipelineIdle {
		t.Fatalf("expected idle, got %s", f.pipeline.State())
	}
	if f.haptics.last() != domain.HapticSuccess {
		t.Fatalf("expected success haptic, got %+v", f.haptics.last())
	}
}

func TestMediaEditPipelineUploadDecodeFailureKeepsTarget(t *testing.T) {
	f := newPipelineFixture(t, nil)
	_ = f.pipeline.Begin(domain.HeroTarget(1))
	_ = f.pipeline.ChooseUpload()

	_, err := f.pipeline.CompleteUpload(context.Background(), strings.NewReader(""))
	if !errors.Is(err, ErrUploadDecodeFailed) {
		t.Fatalf("expected ErrUploadDecodeFailed, got %v", err)
	}
	snap := f.pipeline.Snapshot()
	if snap.State != PipelineTargetSelected || snap.Target == nil || *snap.Target != domain.HeroTarget(1) {
		t.Fatalf("expected target to be retained, got %+v", snap)
	}
	if f.haptics.last() != domain.HapticError {
		t.Fatalf("expected error haptic, got %+v", f.haptics.last())
	}
}

func TestMediaEditPipelineGenerationSeedsWorkingImage(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)

	_ = f.pipeline.Begin(domain.HeroTarget(4))
	if err := f.pipeline.ChooseGeneration(ctx); err != nil {
		t.Fatalf("ChooseGeneration: %v", err)
	}
	snap := f.pipeline.Snapshot()
	if !snap.Creating || snap.WorkingImage != "" {
		t.Fatalf("expected create mode without a working image, got %+v", snap)
	}

	_ = f.pipeline.Begin(domain.ProductTarget(1))
	_ = f.pipeline.ChooseGeneration(ctx)
	snap = f.pipeline.Snapshot()
	if snap.Creating || !strings.HasPrefix(snap.WorkingImage, "https://") {
		t.Fatalf("expected the product image as working image, got %+v", snap)
	}
	if snap.Title != "Edit Product Image" {
		t.Fatalf("unexpected title %q", snap.Title)
	}
}

func TestMediaEditPipelineEmptyPromptNeverCallsEditor(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	_ = f.pipeline.Begin(domain.ProductTarget(1))
	_ = f.pipeline.ChooseGeneration(ctx)

	if _, err := f.pipeline.Generate(ctx, "   "); !errors.Is(err, ErrValidationGuard) {
		t.Fatalf("expected validation guard, got %v", err)
	}

	_ = f.pipeline.Begin(domain.HeroTarget(4))
	_ = f.pipeline.ChooseGeneration(ctx)
	if _, err := f.pipeline.Generate(ctx, "make it gold"); !errors.Is(err, ErrValidationGuard) {
		t.Fatalf("expected validation guard without a working image, got %v", err)
	}
	if f.editor.callCount() != 0 {
		t.Fatalf("editor called %d times", f.editor.callCount())
	}
}

func TestMediaEditPipelineGenerateFetchesRemoteImageThenSaves(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	var editedSource string
	f.editor.editFunc = func(_ context.Context, image, prompt string) (string, error) {
		editedSource = image
		return "data:image/png;base64,GOLD", nil
	}

	_ = f.pipeline.Begin(domain.ProductTarget(1))
	_ = f.pipeline.ChooseGeneration(ctx)
	staged, err := f.pipeline.Generate(ctx, "make it gold")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if editedSource != "data:image/jpeg;base64,FETCHED" {
		t.Fatalf("expected editor to receive the fetched payload, got %q", editedSource)
	}
	if f.pipeline.Snapshot().Staged != staged {
		t.Fatal("expected result to be staged")
	}

	if _, err := f.pipeline.Generate(ctx, "again"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected staged result to block generation, got %v", err)
	}

	target, err := f.pipeline.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	image, _, _ := f.resolver.Resolve(ctx, target)
	if image != "data:image/png;base64,GOLD" {
		t.Fatalf("expected committed image, got %q", image)
	}
}

func TestMediaEditPipelineRemoteFetchFailure(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, func(d *MediaEditPipelineDeps) {
		d.Fetcher = stubFetcher{fetchFunc: func(context.Context, string) (string, error) {
			return "", errors.New("cors")
		}}
	})
	_ = f.pipeline.Begin(domain.CollectionTarget(1))
	_ = f.pipeline.ChooseGeneration(ctx)

	_, err := f.pipeline.Generate(ctx, "warmer light")
	if !errors.Is(err, ErrRemoteImageUnavailable) {
		t.Fatalf("expected ErrRemoteImageUnavailable, got %v", err)
	}
	snap := f.pipeline.Snapshot()
	if snap.LastError != RemoteImageUnavailableMessage {
		t.Fatalf("unexpected last error %q", snap.LastError)
	}
	if snap.State != PipelineAwaitingGeneration || snap.Busy {
		t.Fatalf("expected to stay in generation and idle, got %+v", snap)
	}
	if f.editor.callCount() != 0 {
		t.Fatal("editor must not run when the source cannot be fetched")
	}
}

func TestMediaEditPipelineEditorFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	f.editor.editFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("quota exceeded")
	}
	_ = f.pipeline.Begin(domain.HeroTarget(0))
	_ = f.pipeline.ChooseGeneration(ctx)

	_, err := f.pipeline.Generate(ctx, "sunset")
	if !errors.Is(err, ErrGenerationFailed) || err.Error() != "quota exceeded" {
		t.Fatalf("expected ErrGenerationFailed carrying the editor message, got %v", err)
	}
	if got := f.pipeline.Snapshot().LastError; got != "quota exceeded" {
		t.Fatalf("expected the editor message verbatim, got %q", got)
	}

	f.editor.editFunc = nil
	if _, err := f.pipeline.Generate(ctx, "sunset"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestMediaEditPipelineCancelDropsLateResult(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	f.editor.editFunc = func(context.Context, string, string) (string, error) {
		close(started)
		<-release
		return "data:image/png;base64,LATE", nil
	}
	_ = f.pipeline.Begin(domain.ProductTarget(5))
	_ = f.pipeline.ChooseGeneration(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Generate(ctx, "studio light")
		done <- err
	}()
	<-started

	f.pipeline.Cancel()
	if snap := f.pipeline.Snapshot(); snap.State != PipelineIdle || !snap.Busy {
		t.Fatalf("expected idle pipeline with request still in flight, got %+v", snap)
	}
	if err := f.pipeline.Begin(domain.ProductTarget(5)); err != nil {
		t.Fatalf("Begin after cancel: %v", err)
	}
	if err := f.pipeline.ChooseGeneration(ctx); err != nil {
		t.Fatalf("ChooseGeneration after cancel: %v", err)
	}
	if _, err := f.pipeline.Generate(ctx, "again"); !errors.Is(err, ErrPipelineBusy) {
		t.Fatalf("expected busy while the first request is outstanding, got %v", err)
	}

	close(release)
	if err := <-done; !errors.Is(err, ErrEditCancelled) {
		t.Fatalf("expected ErrEditCancelled, got %v", err)
	}
	snap := f.pipeline.Snapshot()
	if snap.Staged != "" || snap.Busy {
		t.Fatalf("late result must be dropped, got %+v", snap)
	}
}

func TestMediaEditPipelineRejectsIllegalTransitions(t *testing.T) {
	f := newPipelineFixture(t, nil)
	if err := f.pipeline.ChooseUpload(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := f.pipeline.Save(context.Background()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if err := f.pipeline.Begin(domain.EditTarget{Kind: "banner"}); !errors.Is(err, ErrEditTargetInvalid) {
		t.Fatalf("expected invalid target, got %v", err)
	}
}

func TestMediaEditPipelineGenerateWithoutEditor(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, func(d *MediaEditPipelineDeps) { d.Editor = nil })
	_ = f.pipeline.Begin(domain.ProductTarget(1))
	_ = f.pipeline.ChooseGeneration(ctx)
	if _, err := f.pipeline.Generate(ctx, "prompt"); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
}
