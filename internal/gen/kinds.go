package gen

import (
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

// Rejects reports whether n is known to refuse every value of kind k. It
// is conservative: false means "not provably".
func Rejects(n resolve.Node, k value.Kind) bool {
	return rejects(n, k, map[*resolve.Ref]bool{})
}

// AcceptsAll reports whether n is known to accept every value of kind k.
// Also conservative.
func AcceptsAll(n resolve.Node, k value.Kind) bool {
	return acceptsAll(n, k, map[*resolve.Ref]bool{})
}

// RejectedKinds lists, in value.Kinds order, the kinds n refuses outright.
func RejectedKinds(n resolve.Node) []value.Kind {
	var out []value.Kind
	for _, k := range value.Kinds {
		if Rejects(n, k) {
			out = append(out, k)
		}
	}
	return out
}

func rejects(n resolve.Node, k value.Kind, seen map[*resolve.Ref]bool) bool {
	switch n := n.(type) {
	case *resolve.Any:
		return false
	case *resolve.Never:
		return true
	case *resolve.Leaf:
		lk, _ := value.KindOfType(n.Type)
		return !n.Implicit && lk != k
	case *resolve.Array:
		return !n.Implicit && k != value.Array
	case *resolve.Object:
		return !n.Implicit && k != value.Object
	case *resolve.Enum:
		for _, v := range n.Values {
			if vk, _ := value.KindOf(v); vk == k {
				return false
			}
		}
		return true
	case *resolve.AnyOf:
		return all(n.Of, func(c resolve.Node) bool { return rejects(c, k, seen) })
	case *resolve.OneOf:
		return all(n.Of, func(c resolve.Node) bool { return rejects(c, k, seen) })
	case *resolve.AllOf:
		return some(n.Of, func(c resolve.Node) bool { return rejects(c, k, seen) })
	case *resolve.Not:
		return acceptsAll(n.Schema, k, seen)
	case *resolve.Ref:
		if seen[n] {
			return false
		}
		seen[n] = true
		defer delete(seen, n)
		return rejects(n.Target, k, seen)
	}
	return false
}

func acceptsAll(n resolve.Node, k value.Kind, seen map[*resolve.Ref]bool) bool {
	switch n := n.(type) {
	case *resolve.Any:
		return true
	case *resolve.Never, *resolve.Enum:
		return false
	case *resolve.Leaf:
		lk, _ := value.KindOfType(n.Type)
		if lk != k {
			return n.Implicit
		}
		if n.Type == "integer" {
			return false
		}
		b := LeafBounds(n)
		return !b.HasMin && !b.HasMax && (k != value.String || n.Pattern == "")
	case *resolve.Array:
		if k != value.Array {
			return n.Implicit
		}
		_, anyItems := n.Items.(*resolve.Any)
		return anyItems && !n.UniqueItems && (n.MinItems == nil || *n.MinItems == 0) && n.MaxItems == nil
	case *resolve.Object:
		if k != value.Object {
			return n.Implicit
		}
		return len(n.Properties) == 0 && len(n.Required) == 0 && n.Additional == nil &&
			len(n.Patterns) == 0 && len(n.Depends) == 0
	case *resolve.AnyOf:
		return some(n.Of, func(c resolve.Node) bool { return acceptsAll(c, k, seen) })
	case *resolve.OneOf:
		// one branch taking everything and the others taking nothing
		hits := 0
		for _, c := range n.Of {
			switch {
			case acceptsAll(c, k, seen):
				hits++
			case !rejects(c, k, seen):
				return false
			}
		}
		return hits == 1
	case *resolve.AllOf:
		return all(n.Of, func(c resolve.Node) bool { return acceptsAll(c, k, seen) })
	case *resolve.Not:
		return rejects(n.Schema, k, seen)
	case *resolve.Ref:
		if seen[n] {
			return false
		}
		seen[n] = true
		defer delete(seen, n)
		return acceptsAll(n.Target, k, seen)
	}
	return false
}

func all(ns []resolve.Node, f func(resolve.Node) bool) bool {
	for _, n := range ns {
		if !f(n) {
			return false
		}
	}
	return true
}

func some(ns []resolve.Node, f func(resolve.Node) bool) bool {
	for _, n := range ns {
		if f(n) {
			return true
		}
	}
	return false
}
