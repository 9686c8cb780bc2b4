package repository

import (
	"context"
	"errors"

	criteriadomain "mailsweep-backend/internal/criteria/domain"
)

// ErrNotFound is returned when a criterion id does not exist.
var ErrNotFound = errors.New("criterion not found")

// Repository stores the user-defined classification criteria. The pipeline
// only ever reads the live enabled snapshot; mutation happens through the
// feedback loop and the criteria API.
type Repository interface {
	// ListEnabled returns enabled criteria in creation order, the order they
	// are rendered into the classification prompt.
	ListEnabled(ctx context.Context) ([]*criteriadomain.Criterion, error)

	// List returns all criteria in creation order.
	List(ctx context.Context) ([]*criteriadomain.Criterion, error)

	Get(ctx context.Context, id string) (*criteriadomain.Criterion, error)

	// Append adds a new enabled criterion.
	Append(ctx context.Context, text string) (*criteriadomain.Criterion, error)

	// Update changes the text and/or enabled flag; nil fields are untouched.
	Update(ctx context.Context, id string, text *string, enabled *bool) (*criteriadomain.Criterion, error)

	Delete(ctx context.Context, id string) error
}
