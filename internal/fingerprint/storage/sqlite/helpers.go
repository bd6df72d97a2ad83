package sqlite

// Helper functions for nullable values.

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat64(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt64(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
