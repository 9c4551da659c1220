package repokit

// Binder defers repo construction until a concrete Queryer is available.
// Modules hold binders from their repo packages and bind them against the
// store seam they were wired with
type Binder[T any] interface {
	Bind(Queryer) T
}

// BindFunc adapts a plain constructor into a Binder
type BindFunc[T any] func(Queryer) T

// Bind invokes the constructor
func (f BindFunc[T]) Bind(q Queryer) T { return f(q) }

// RequireQueryer panics on a nil seam so wiring mistakes surface at startup
func RequireQueryer(q Queryer) Queryer {
	if q == nil {
		panic("repokit: nil Queryer")
	}
	return q
}

// MustBind checks the seam then binds the repo to it
func MustBind[T any](b Binder[T], q Queryer) T {
	return b.Bind(RequireQueryer(q))
}
