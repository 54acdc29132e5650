// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Bind returns a copy of l whose parameters range over infos, by position.
// A lambda may take fewer parameters than there are tables. Nested lambdas,
// such as aggregate arguments, are bound the same way, and member-inits
// naming one of the entities get its metadata. l itself is not modified.
func (l *Lambda) Bind(infos ...*typeinfo.Info) (*Lambda, error) {
	b := &binder{infos: infos, scope: map[*Param]*Param{}}
	return b.lambda(l, true)
}

// BindGroup is like Bind but leaves the parameters of l itself unbound. It
// is used for aggregate projections, whose parameter stands for a group.
func (l *Lambda) BindGroup(infos ...*typeinfo.Info) (*Lambda, error) {
	b := &binder{infos: infos, scope: map[*Param]*Param{}}
	return b.lambda(l, false)
}

type binder struct {
	infos []*typeinfo.Info
	scope map[*Param]*Param
}

func (b *binder) lambda(l *Lambda, bind bool) (*Lambda, error) {
	if bind && len(l.Params) > len(b.infos) {
		return nil, shapeError("lambda %s takes %d parameters, have %d tables", l, len(l.Params), len(b.infos))
	}
	out := &Lambda{Params: make([]*Param, len(l.Params))}
	for i, p := range l.Params {
		np := &Param{Name: p.Name}
		if bind {
			np.Info = b.infos[i]
		}
		out.Params[i] = np
		b.scope[p] = np
	}
	body, err := b.node(l.Body)
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func (b *binder) node(n Node) (Node, error) {
	switch n := n.(type) {
	case *Param:
		if np, ok := b.scope[n]; ok {
			return np, nil
		}
		return nil, shapeError("parameter %q is not declared by its lambda", n.Name)
	case *Lambda:
		return b.lambda(n, true)
	case *Constant:
		return n, nil
	case *Member:
		operand, err := b.node(n.Operand)
		if err != nil {
			return nil, err
		}
		return &Member{Operand: operand, Name: n.Name}, nil
	case *Binary:
		left, err := b.node(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.node(n.Right)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: n.Op, Left: left, Right: right}, nil
	case *Negation:
		operand, err := b.node(n.Operand)
		if err != nil {
			return nil, err
		}
		return &Negation{Operand: operand}, nil
	case *Convert:
		operand, err := b.node(n.Operand)
		if err != nil {
			return nil, err
		}
		return &Convert{Operand: operand, Type: n.Type}, nil
	case *Call:
		out := &Call{Method: n.Method, Args: make([]Node, len(n.Args))}
		if n.Receiver != nil {
			receiver, err := b.node(n.Receiver)
			if err != nil {
				return nil, err
			}
			out.Receiver = receiver
		}
		for i, a := range n.Args {
			arg, err := b.node(a)
			if err != nil {
				return nil, err
			}
			out.Args[i] = arg
		}
		return out, nil
	case *Collection:
		out := &Collection{Elements: make([]Node, len(n.Elements))}
		for i, e := range n.Elements {
			elem, err := b.node(e)
			if err != nil {
				return nil, err
			}
			out.Elements[i] = elem
		}
		return out, nil
	case *Init:
		out := &Init{TypeName: n.TypeName, Entity: n.Entity, Bindings: make([]Binding, len(n.Bindings))}
		if out.Entity == nil && out.TypeName != "" {
			for _, info := range b.infos {
				if info != nil && info.Name == out.TypeName {
					out.Entity = info
					break
				}
			}
			if out.Entity == nil {
				return nil, shapeError("entity %q of %s is not one of the tables", out.TypeName, n)
			}
		}
		for i, binding := range n.Bindings {
			value, err := b.node(binding.Value)
			if err != nil {
				return nil, err
			}
			out.Bindings[i] = Binding{Member: binding.Member, Value: value, Kind: binding.Kind}
		}
		return out, nil
	}
	return nil, shapeError("unknown expression node %T", n)
}
