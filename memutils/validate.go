package memutils

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method. Every pool allocator implements it by walking
// its chunk headers.
type Validatable interface {
	Validate() error
}
