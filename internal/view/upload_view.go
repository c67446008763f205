package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/logging"
	"github.com/example/recipe-finder/internal/recipes"
)

var (
	// ErrNoFileSelected is returned by Submit when no image has been selected.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrSubmitInProgress is returned by Submit while another request is in flight.
	ErrSubmitInProgress = errors.New("submit already in progress")
	// ErrFetchFailed wraps every failed call to the recipe service.
	ErrFetchFailed = errors.New("failed to fetch recipes")
)

// Option customizes an UploadView.
type Option func(*UploadView)

// WithObserver registers fn to receive a snapshot after every completed upload attempt.
// fn runs on the submitting goroutine, outside the view lock.
func WithObserver(fn func(Snapshot)) Option {
	return func(v *UploadView) {
		v.observer = fn
	}
}

// WithRequestIDs overrides how submit request ids are generated.
func WithRequestIDs(fn func() string) Option {
	return func(v *UploadView) {
		v.newRequestID = fn
	}
}

// UploadView holds the state of one image-to-recipe page: the selected file,
// the last results and whether a request is in flight.
type UploadView struct {
	generator    recipes.Generator
	logger       *zap.Logger
	observer     func(Snapshot)
	newRequestID func() string

	mu          sync.Mutex
	selected    *recipes.Upload
	lastUpload  string
	ingredients []string
	recipes     []recipes.Recipe
	loading     bool
	notice      *Notice
}

// New constructs an idle view backed by generator.
func New(generator recipes.Generator, logger *zap.Logger, opts ...Option) *UploadView {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &UploadView{
		generator:    generator,
		logger:       logger.Named("upload_view"),
		newRequestID: uuid.NewString,
		ingredients:  []string{},
		recipes:      []recipes.Recipe{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SelectFile replaces the selected file. Type and size are not checked here.
// The current results stay visible until the next Submit.
func (v *UploadView) SelectFile(file *recipes.Upload) {
	if file == nil {
		return
	}
	v.mu.Lock()
	v.selected = file
	v.mu.Unlock()
}

// Submit uploads the selected file and replaces the results with the response.
//
// Without a selected file it sets the no-file notice and returns
// ErrNoFileSelected. While a request is in flight it returns
// ErrSubmitInProgress. Failures of the recipe service are logged, set the
// failure notice and leave both lists empty; they are not retried.
func (v *UploadView) Submit(ctx context.Context) error {
	v.mu.Lock()
	if v.selected == nil {
		v.notice = &Notice{Kind: NoticeWarning, Message: NoFileMessage}
		v.mu.Unlock()
		return ErrNoFileSelected
	}
	if v.loading {
		v.mu.Unlock()
		return ErrSubmitInProgress
	}
	upload := v.selected
	v.loading = true
	v.ingredients = []string{}
	v.recipes = []recipes.Recipe{}
	v.notice = nil
	v.mu.Unlock()

	requestID := v.newRequestID()
	opLogger := logging.WithOperation(v.logger, "view.submit", requestID)
	opLogger.Info("uploading image",
		zap.String("file", upload.Filename),
		zap.Int("bytes", len(upload.Data)),
	)

	started := time.Now()
	result, err := v.generate(ctx, requestID, upload)

	v.mu.Lock()
	v.loading = false
	v.lastUpload = upload.Filename
	if err != nil {
		v.notice = &Notice{Kind: NoticeWarning, Message: FetchFailedMessage}
	} else {
		v.ingredients = nonNilStrings(result.Ingredients)
		v.recipes = nonNilRecipes(result.Recipes)
	}
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	if v.observer != nil {
		v.observer(snapshot)
	}

	if err != nil {
		opLogger.Error("error uploading image", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return logging.NewOperationError("view.submit", requestID, fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}

	opLogger.Info("recipes received",
		zap.Int("ingredients", len(snapshot.Ingredients)),
		zap.Int("recipes", len(snapshot.Recipes)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// generate calls the generator and turns a panic into an error so the
// loading flag is always cleared.
func (v *UploadView) generate(ctx context.Context, requestID string, upload *recipes.Upload) (result *recipes.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("recipe generator panicked: %v", r)
		}
	}()
	if v.generator == nil {
		return nil, errors.New("no recipe generator configured")
	}
	result, err = v.generator.Generate(ctx, requestID, upload)
	if err == nil && result == nil {
		result = &recipes.Result{}
	}
	return result, err
}

// State returns a copy of the view for rendering.
func (v *UploadView) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := State{
		LastUpload:  v.lastUpload,
		Loading:     v.loading,
		Ingredients: append([]string(nil), v.ingredients...),
		Recipes:     append([]recipes.Recipe(nil), v.recipes...),
	}
	if state.Ingredients == nil {
		state.Ingredients = []string{}
	}
	if state.Recipes == nil {
		state.Recipes = []recipes.Recipe{}
	}
	if v.selected != nil {
		state.SelectedFile = v.selected.Filename
	}
	if v.notice != nil {
		n := *v.notice
		state.Notice = &n
	}
	return state
}

// TakeNotice returns the pending notice, if any, and clears it.
func (v *UploadView) TakeNotice() *Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := v.notice
	v.notice = nil
	return n
}

// Loading reports whether a request is in flight.
func (v *UploadView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Restore loads results saved by an earlier process. It is ignored while a
// request is in flight or once this view has results of its own.
func (v *UploadView) Restore(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loading || v.lastUpload != "" || len(v.ingredients) > 0 || len(v.recipes) > 0 {
		return
	}
	v.lastUpload = s.LastUpload
	v.ingredients = nonNilStrings(append([]string(nil), s.Ingredients...))
	v.recipes = nonNilRecipes(append([]recipes.Recipe(nil), s.Recipes...))
}

func (v *UploadView) snapshotLocked() Snapshot {
	return Snapshot{
		LastUpload:  v.lastUpload,
		Ingredients: append([]string(nil), v.ingredients...),
		Recipes:     append([]recipes.Recipe(nil), v.recipes...),
		UpdatedAt:   time.Now().UTC(),
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRecipes(r []recipes.Recipe) []recipes.Recipe {
	if r == nil {
		return []recipes.Recipe{}
	}
	return r
}
