// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/samber/oops"

	"github.com/sanabi/sanabi/internal/host"
)

// Registrar is the designated initialization contract. A host whose
// module-loader instances implement it is called directly and no shape
// probing takes place.
type Registrar interface {
	RegisterModule(ctx context.Context, m host.Module) error
}

// Shape is the argument form an init contract expects.
type Shape int

// Supported init contract shapes.
const (
	ShapeRegistrar Shape = iota
	ShapeSingle
	ShapeSlice
	ShapeSequence
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeRegistrar:
		return "registrar"
	case ShapeSingle:
		return "single"
	case ShapeSlice:
		return "slice"
	case ShapeSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// ErrContractNotFound is returned when no host member can register modules.
var ErrContractNotFound = errors.New("module init contract not found")

var (
	registrarType = reflect.TypeFor[Registrar]()
	moduleSeq     = reflect.TypeFor[iter.Seq[host.Module]]()
)

// Contract is the resolved host routine that registers one module.
type Contract struct {
	// Method is nil for ShapeRegistrar.
	Method *host.Method
	// Param is the declared parameter type; nil for ShapeRegistrar.
	Param reflect.Type
	Shape Shape
}

// String describes the contract for logs.
func (c *Contract) String() string {
	if c.Method == nil {
		return "RegisterModule (" + c.Shape.String() + ")"
	}
	return fmt.Sprintf("%s (%s)", c.Method.Signature(), c.Shape)
}

// resolveContract picks the init contract on t.
func resolveContract(t *host.Type) (*Contract, error) {
	if t.Instance != nil && t.Instance.Implements(registrarType) {
		return &Contract{Shape: ShapeRegistrar}, nil
	}

	var rejected []string
	for _, m := range t.Methods() {
		if len(m.Params) != 1 {
			rejected = append(rejected, m.Signature())
			continue
		}
		if shape, ok := classify(m.Params[0]); ok {
			return &Contract{Method: m, Param: m.Params[0], Shape: shape}, nil
		}
		rejected = append(rejected, m.Signature())
	}

	return nil, oops.Code("INIT_CONTRACT_NOT_FOUND").
		With("type", t.Name).
		With("candidates", rejected).
		Wrapf(ErrContractNotFound, "no init contract on %s", t.Name)
}

func classify(p reflect.Type) (Shape, bool) {
	switch {
	case p == host.ModuleType:
		return ShapeSingle, true
	case p.Kind() == reflect.Slice && p.Elem() == host.ModuleType:
		return ShapeSlice, true
	case p.Kind() == reflect.Func && moduleSeq.ConvertibleTo(p):
		return ShapeSequence, true
	default:
		return 0, false
	}
}

// argument builds the single-module argument for the contract.
func (c *Contract) argument(m host.Module) any {
	switch c.Shape {
	case ShapeSlice:
		s := reflect.MakeSlice(c.Param, 1, 1)
		s.Index(0).Set(reflect.ValueOf(&m).Elem())
		return s.Interface()
	case ShapeSequence:
		var seq iter.Seq[host.Module] = func(yield func(host.Module) bool) {
			yield(m)
		}
		return reflect.ValueOf(seq).Convert(c.Param).Interface()
	default:
		return m
	}
}

// invoke registers m through the contract.
func (c *Contract) invoke(ctx context.Context, instance any, m host.Module) error {
	if c.Shape == ShapeRegistrar {
		r, ok := instance.(Registrar)
		if !ok {
			return oops.Code("INIT_CONTRACT_MISMATCH").
				With("instance", fmt.Sprintf("%T", instance)).
				Errorf("module loader instance does not implement Registrar")
		}
		return r.RegisterModule(ctx, m)
	}
	_, err := c.Method.Invoke(instance, c.argument(m))
	return err
}
