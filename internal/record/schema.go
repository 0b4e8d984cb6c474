package record

type ColumnType uint8

const (
	ColInt32 ColumnType = iota
	ColInt64
	ColBool
	ColFloat64
	ColText  // UTF-8
	ColBytes // opaque bytes
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

type Schema struct {
	Cols []Column
}

func (s Schema) NumCols() int { return len(s.Cols) }

// DeepCopy returns a Schema that shares no backing array with s, so the
// caller may freely mutate either without affecting the other.
func (s Schema) DeepCopy() Schema {
	cols := make([]Column, len(s.Cols))
	copy(cols, s.Cols)
	return Schema{Cols: cols}
}

// GetColumnIndex returns the index of the named column and true, or
// (0, false) if no column with that name exists.
func (s Schema) GetColumnIndex(name string) (int, bool) {
	for i := range s.Cols {
		if s.Cols[i].Name == name {
			return i, true
		}
	}
	return 0, false
}
