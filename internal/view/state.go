package view

import (
	"time"

	"github.com/example/recipe-finder/internal/recipes"
)

const (
	// ReadyLabel is the submit control label while no request is in flight.
	ReadyLabel = "Upload & Find Recipes"
	// LoadingLabel is the submit control label while a request is in flight.
	LoadingLabel = "Processing..."

	// NoFileMessage is shown when submit is pressed without a selected image.
	NoFileMessage = "Please upload an image first!"
	// FetchFailedMessage is shown when the recipe service call fails.
	FetchFailedMessage = "Failed to fetch recipes. Check backend logs."
)

// NoticeKind classifies a user notification.
type NoticeKind string

const (
	NoticeWarning NoticeKind = "warning"
)

// Notice is a blocking message the user has to acknowledge.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// State is a point-in-time copy of an UploadView, safe to render or serialize.
type State struct {
	SelectedFile string           `json:"selected_file,omitempty"`
	LastUpload   string           `json:"last_upload,omitempty"`
	Loading      bool             `json:"loading"`
	Ingredients  []string         `json:"ingredients"`
	Recipes      []recipes.Recipe `json:"recipes"`
	Notice       *Notice          `json:"notice,omitempty"`
}

// ButtonLabel is the label the submit control shows in this state.
func (s State) ButtonLabel() string {
	if s.Loading {
		return LoadingLabel
	}
	return ReadyLabel
}

// SubmitDisabled reports whether the submit control must be disabled.
func (s State) SubmitDisabled() bool {
	return s.Loading
}

// HasIngredients reports whether the ingredient section is rendered.
func (s State) HasIngredients() bool {
	return len(s.Ingredients) > 0
}

// HasRecipes reports whether the recipe section is rendered.
func (s State) HasRecipes() bool {
	return len(s.Recipes) > 0
}

// Snapshot is the part of a view that outlives the process holding it.
// It never carries file bytes or the loading flag.
type Snapshot struct {
	LastUpload   string           `json:"last_upload,omitempty"`
	Ingredients  []string         `json:"ingredients"`
	Recipes      []recipes.Recipe `json:"recipes"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
