package utils

func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	cloneM := make(map[K]V, len(m))
	for k, v := range m {
		cloneM[k] = v
	}
	return cloneM
}

func UniqueSlice[K comparable](a []K) []K {
	m := make(map[K]bool)
	for i := 0; i < len(a); {
		v := a[i]
		if !m[v] {
			m[v] = true
			i++
			continue
		}
		a = append(a[:i], a[i+1:]...)
	}
	return a
}

// FilterSlice keeps the elements of a accepted by keep, preserving order.
func FilterSlice[K any](a []K, keep func(K) bool) []K {
	out := make([]K, 0, len(a))
	for _, v := range a {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
