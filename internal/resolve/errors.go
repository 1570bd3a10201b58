package resolve

import "github.com/rotisserie/eris"

// Resolution failure taxonomy. The migration orchestrator maps these onto
// review-queue reason codes; they never propagate past the batch entrypoint.
var (
	ErrNoEmail        = eris.New("resolve: no email")
	ErrInvalidEmail   = eris.New("resolve: invalid email")
	ErrEntityCreation = eris.New("resolve: entity creation failed")
)

// Unique-constraint sentinels returned by Store implementations. A create
// hitting one of these is an expected race, retried with a single re-query
// before being classified as ErrEntityCreation.
var (
	ErrDuplicateDomain = eris.New("store: duplicate company domain")
	ErrDuplicateName   = eris.New("store: duplicate company name")
	ErrDuplicateEmail  = eris.New("store: duplicate contact email")
)
