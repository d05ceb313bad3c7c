package linear

// Solver selects how the least-squares problem is solved.
type Solver string

const (
	// SolverQR solves min‖Aw − y‖ with a QR factorisation of A.
	SolverQR Solver = "qr"
	// SolverCholesky solves the normal equations AᵀAw = Aᵀy.
	SolverCholesky Solver = "cholesky"
)

// Option is a function that configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// WithSolver sets the least-squares solver
func WithSolver(s Solver) Option {
	return func(lr *LinearRegression) {
		lr.solver = s
	}
}

// WithRankTol sets the relative singular-value threshold below which a
// direction of X counts as degenerate
func WithRankTol(tol float64) Option {
	return func(lr *LinearRegression) {
		lr.rankTol = tol
	}
}
