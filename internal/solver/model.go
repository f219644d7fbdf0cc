// Package solver defines the modeling surface handed to an external
// mixed-integer solver: binary/integer variables, linear constraints, a linear
// minimization objective and an optional MIP start. It deliberately contains
// no search code; implementations of Solver bridge to a real engine.
package solver

import (
	"fmt"
	"math"
)

// VarID indexes a variable inside its model.
type VarID int

// VarType distinguishes binary from general integer variables.
type VarType int

const (
	Binary VarType = iota
	Integer
)

// Variable is a single decision variable.
type Variable struct {
	Name string
	Type VarType
	LB   float64
	UB   float64
}

// Sense is a linear constraint relation.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

// Term is one coefficient-variable pair of a linear expression.
type Term struct {
	Var  VarID
	Coef float64
}

// Constraint is a named linear constraint: sum(terms) <sense> rhs.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model accumulates variables, constraints, objective and MIP start values.
type Model struct {
	Name string

	vars      []Variable
	cons      []Constraint
	objective []Term
	starts    map[VarID]float64
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{
		Name:   name,
		starts: make(map[VarID]float64),
	}
}

// AddBinary registers a binary variable and returns its id.
func (m *Model) AddBinary(name string) VarID {
	m.vars = append(m.vars, Variable{Name: name, Type: Binary, LB: 0, UB: 1})
	return VarID(len(m.vars) - 1)
}

// AddInteger registers an integer variable with lower bound lb and no upper
// bound. Capacity violation variables rely on the missing upper bound to keep
// every instance feasible.
func (m *Model) AddInteger(name string, lb float64) VarID {
	m.vars = append(m.vars, Variable{Name: name, Type: Integer, LB: lb, UB: math.Inf(1)})
	return VarID(len(m.vars) - 1)
}

// AddConstraint registers a named linear constraint.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.cons = append(m.cons, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// AddConjunction links conj = a AND b through the standard three-inequality
// linearization: conj <= a, conj <= b, conj >= a + b - 1.
func (m *Model) AddConjunction(name string, conj, a, b VarID) {
	m.AddConstraint(fmt.Sprintf("%s_le_a", name), []Term{{conj, 1}, {a, -1}}, LessEqual, 0)
	m.AddConstraint(fmt.Sprintf("%s_le_b", name), []Term{{conj, 1}, {b, -1}}, LessEqual, 0)
	m.AddConstraint(fmt.Sprintf("%s_ge_ab", name), []Term{{conj, 1}, {a, -1}, {b, -1}}, GreaterEqual, -1)
}

// SetObjective replaces the minimization objective.
func (m *Model) SetObjective(terms []Term) {
	m.objective = terms
}

// SetStart records a MIP start value for a variable. Starts are hints only;
// an infeasible start must not fail the solve.
func (m *Model) SetStart(v VarID, value float64) {
	m.starts[v] = value
}

// Var returns the variable definition for an id.
func (m *Model) Var(v VarID) Variable {
	return m.vars[v]
}

// NumVars returns the number of registered variables.
func (m *Model) NumVars() int {
	return len(m.vars)
}

// NumConstraints returns the number of registered constraints.
func (m *Model) NumConstraints() int {
	return len(m.cons)
}

// Variables exposes the variable list to solver bridges.
func (m *Model) Variables() []Variable {
	return m.vars
}

// Constraints exposes the constraint list to solver bridges.
func (m *Model) Constraints() []Constraint {
	return m.cons
}

// Objective exposes the minimization terms.
func (m *Model) Objective() []Term {
	return m.objective
}

// Starts exposes the MIP start map.
func (m *Model) Starts() map[VarID]float64 {
	return m.starts
}
