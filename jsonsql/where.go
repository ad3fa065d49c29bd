package jsonsql

// Where is a filter expression in the remote dialect. The engine only ever
// emits four shapes: {eq: [col, v]}, {like: [col, pattern]}, {gt: [col, v]}
// and {and: [w1, w2, ...]}.
type Where map[string]any

// Eq matches rows where col equals v. v may be nil to match NULL.
func Eq(col string, v any) Where {
	return Where{"eq": []any{col, v}}
}

// Like matches rows where col matches the SQL LIKE pattern.
func Like(col, pattern string) Where {
	return Where{"like": []any{col, pattern}}
}

// Gt matches rows where col is strictly greater than v.
func Gt(col string, v any) Where {
	return Where{"gt": []any{col, v}}
}

// And combines expressions conjunctively. A single operand collapses to
// itself so callers can fold clause lists without special-casing.
func And(ws ...Where) Where {
	if len(ws) == 1 {
		return ws[0]
	}
	ops := make([]any, len(ws))
	for i, w := range ws {
		ops[i] = w
	}
	return Where{"and": ops}
}
