package recipes

import (
	"context"
	"fmt"
)

// Upload is an image picked by the user, held in memory until it is replaced.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Recipe is one suggestion returned by the recipe service.
type Recipe struct {
	Title       string   `json:"title"`
	Image       string   `json:"image,omitempty"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// HasImage reports whether the recipe carries an image URL.
func (r Recipe) HasImage() bool {
	return r.Image != ""
}

// Result is the decoded body of a successful generate call.
// Both lists are non-nil after a successful call.
type Result struct {
	Ingredients []string `json:"ingredients"`
	Recipes     []Recipe `json:"recipes"`
}

// Generator turns an uploaded image into detected ingredients and suggested recipes.
type Generator interface {
	Generate(ctx context.Context, requestID string, upload *Upload) (*Result, error)
}

// ServiceError is returned when the recipe service answers with a non-2xx status.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("recipe service responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("recipe service responded with status %d: %s", e.StatusCode, e.Body)
}
