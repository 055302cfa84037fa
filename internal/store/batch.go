package store

// Columnar batches mirror the store tables as parallel slices. The
// extraction adapter fills them, the ingestion buffer concatenates them,
// and the bulk-insert paths bind them column-by-column without building
// per-row structs in between.

// SymbolBatch holds symbol rows in columnar form.
type SymbolBatch struct {
	ID         []string
	Name       []string
	Kind       []SymbolKind
	Language   []string
	FilePath   []string
	StartLine  []int
	EndLine    []int
	StartByte  []int
	EndByte    []int
	Signature  []string
	DocComment []string
	Visibility []string
	ParentID   []string
}

// Len returns the number of rows.
func (b *SymbolBatch) Len() int { return len(b.ID) }

// Append concatenates another batch onto this one.
func (b *SymbolBatch) Append(o *SymbolBatch) {
	b.ID = append(b.ID, o.ID...)
	b.Name = append(b.Name, o.Name...)
	b.Kind = append(b.Kind, o.Kind...)
	b.Language = append(b.Language, o.Language...)
	b.FilePath = append(b.FilePath, o.FilePath...)
	b.StartLine = append(b.StartLine, o.StartLine...)
	b.EndLine = append(b.EndLine, o.EndLine...)
	b.StartByte = append(b.StartByte, o.StartByte...)
	b.EndByte = append(b.EndByte, o.EndByte...)
	b.Signature = append(b.Signature, o.Signature...)
	b.DocComment = append(b.DocComment, o.DocComment...)
	b.Visibility = append(b.Visibility, o.Visibility...)
	b.ParentID = append(b.ParentID, o.ParentID...)
}

// AddSymbol appends one row.
func (b *SymbolBatch) AddSymbol(s *Symbol) {
	b.ID = append(b.ID, s.ID)
	b.Name = append(b.Name, s.Name)
	b.Kind = append(b.Kind, s.Kind)
	b.Language = append(b.Language, s.Language)
	b.FilePath = append(b.FilePath, s.FilePath)
	b.StartLine = append(b.StartLine, s.StartLine)
	b.EndLine = append(b.EndLine, s.EndLine)
	b.StartByte = append(b.StartByte, s.StartByte)
	b.EndByte = append(b.EndByte, s.EndByte)
	b.Signature = append(b.Signature, s.Signature)
	b.DocComment = append(b.DocComment, s.DocComment)
	b.Visibility = append(b.Visibility, s.Visibility)
	b.ParentID = append(b.ParentID, s.ParentID)
}

// Row materializes row i as a Symbol.
func (b *SymbolBatch) Row(i int) *Symbol {
	return &Symbol{
		ID:         b.ID[i],
		Name:       b.Name[i],
		Kind:       b.Kind[i],
		Language:   b.Language[i],
		FilePath:   b.FilePath[i],
		StartLine:  b.StartLine[i],
		EndLine:    b.EndLine[i],
		StartByte:  b.StartByte[i],
		EndByte:    b.EndByte[i],
		Signature:  b.Signature[i],
		DocComment: b.DocComment[i],
		Visibility: b.Visibility[i],
		ParentID:   b.ParentID[i],
	}
}

// IdentifierBatch holds identifier rows in columnar form.
type IdentifierBatch struct {
	ID                 []string
	Name               []string
	Kind               []IdentifierKind
	Language           []string
	FilePath           []string
	StartLine          []int
	StartColumn        []int
	EndLine            []int
	EndColumn          []int
	StartByte          []int
	EndByte            []int
	ContainingSymbolID []string
	TargetSymbolID     []string
	Confidence         []float64
}

// Len returns the number of rows.
func (b *IdentifierBatch) Len() int { return len(b.ID) }

// Append concatenates another batch onto this one.
func (b *IdentifierBatch) Append(o *IdentifierBatch) {
	b.ID = append(b.ID, o.ID...)
	b.Name = append(b.Name, o.Name...)
	b.Kind = append(b.Kind, o.Kind...)
	b.Language = append(b.Language, o.Language...)
	b.FilePath = append(b.FilePath, o.FilePath...)
	b.StartLine = append(b.StartLine, o.StartLine...)
	b.StartColumn = append(b.StartColumn, o.StartColumn...)
	b.EndLine = append(b.EndLine, o.EndLine...)
	b.EndColumn = append(b.EndColumn, o.EndColumn...)
	b.StartByte = append(b.StartByte, o.StartByte...)
	b.EndByte = append(b.EndByte, o.EndByte...)
	b.ContainingSymbolID = append(b.ContainingSymbolID, o.ContainingSymbolID...)
	b.TargetSymbolID = append(b.TargetSymbolID, o.TargetSymbolID...)
	b.Confidence = append(b.Confidence, o.Confidence...)
}

// AddIdentifier appends one row.
func (b *IdentifierBatch) AddIdentifier(id *Identifier) {
	b.ID = append(b.ID, id.ID)
	b.Name = append(b.Name, id.Name)
	b.Kind = append(b.Kind, id.Kind)
	b.Language = append(b.Language, id.Language)
	b.FilePath = append(b.FilePath, id.FilePath)
	b.StartLine = append(b.StartLine, id.StartLine)
	b.StartColumn = append(b.StartColumn, id.StartColumn)
	b.EndLine = append(b.EndLine, id.EndLine)
	b.EndColumn = append(b.EndColumn, id.EndColumn)
	b.StartByte = append(b.StartByte, id.StartByte)
	b.EndByte = append(b.EndByte, id.EndByte)
	b.ContainingSymbolID = append(b.ContainingSymbolID, id.ContainingSymbolID)
	b.TargetSymbolID = append(b.TargetSymbolID, id.TargetSymbolID)
	b.Confidence = append(b.Confidence, id.Confidence)
}

// Filter keeps only rows where keep(i) is true, compacting in place.
func (b *IdentifierBatch) Filter(keep func(i int) bool) {
	n := 0
	for i := 0; i < b.Len(); i++ {
		if !keep(i) {
			continue
		}
		b.ID[n] = b.ID[i]
		b.Name[n] = b.Name[i]
		b.Kind[n] = b.Kind[i]
		b.Language[n] = b.Language[i]
		b.FilePath[n] = b.FilePath[i]
		b.StartLine[n] = b.StartLine[i]
		b.StartColumn[n] = b.StartColumn[i]
		b.EndLine[n] = b.EndLine[i]
		b.EndColumn[n] = b.EndColumn[i]
		b.StartByte[n] = b.StartByte[i]
		b.EndByte[n] = b.EndByte[i]
		b.ContainingSymbolID[n] = b.ContainingSymbolID[i]
		b.TargetSymbolID[n] = b.TargetSymbolID[i]
		b.Confidence[n] = b.Confidence[i]
		n++
	}
	b.ID = b.ID[:n]
	b.Name = b.Name[:n]
	b.Kind = b.Kind[:n]
	b.Language = b.Language[:n]
	b.FilePath = b.FilePath[:n]
	b.StartLine = b.StartLine[:n]
	b.StartColumn = b.StartColumn[:n]
	b.EndLine = b.EndLine[:n]
	b.EndColumn = b.EndColumn[:n]
	b.StartByte = b.StartByte[:n]
	b.EndByte = b.EndByte[:n]
	b.ContainingSymbolID = b.ContainingSymbolID[:n]
	b.TargetSymbolID = b.TargetSymbolID[:n]
	b.Confidence = b.Confidence[:n]
}

// RelationshipBatch holds relationship rows in columnar form.
type RelationshipBatch struct {
	ID           []string
	FromSymbolID []string
	ToSymbolID   []string
	Kind         []RelationshipKind
	FilePath     []string
	LineNumber   []int
	Confidence   []float64
}

// Len returns the number of rows.
func (b *RelationshipBatch) Len() int { return len(b.ID) }

// Append concatenates another batch onto this one.
func (b *RelationshipBatch) Append(o *RelationshipBatch) {
	b.ID = append(b.ID, o.ID...)
	b.FromSymbolID = append(b.FromSymbolID, o.FromSymbolID...)
	b.ToSymbolID = append(b.ToSymbolID, o.ToSymbolID...)
	b.Kind = append(b.Kind, o.Kind...)
	b.FilePath = append(b.FilePath, o.FilePath...)
	b.LineNumber = append(b.LineNumber, o.LineNumber...)
	b.Confidence = append(b.Confidence, o.Confidence...)
}

// AddRelationship appends one row.
func (b *RelationshipBatch) AddRelationship(r *Relationship) {
	b.ID = append(b.ID, r.ID)
	b.FromSymbolID = append(b.FromSymbolID, r.FromSymbolID)
	b.ToSymbolID = append(b.ToSymbolID, r.ToSymbolID)
	b.Kind = append(b.Kind, r.Kind)
	b.FilePath = append(b.FilePath, r.FilePath)
	b.LineNumber = append(b.LineNumber, r.LineNumber)
	b.Confidence = append(b.Confidence, r.Confidence)
}

// FileBatch holds file rows in columnar form.
type FileBatch struct {
	Path         []string
	Language     []string
	ContentHash  []string
	Size         []int64
	LastModified []int64
}

// Len returns the number of rows.
func (b *FileBatch) Len() int { return len(b.Path) }

// Append concatenates another batch onto this one.
func (b *FileBatch) Append(o *FileBatch) {
	b.Path = append(b.Path, o.Path...)
	b.Language = append(b.Language, o.Language...)
	b.ContentHash = append(b.ContentHash, o.ContentHash...)
	b.Size = append(b.Size, o.Size...)
	b.LastModified = append(b.LastModified, o.LastModified...)
}

// AddFile appends one row.
func (b *FileBatch) AddFile(f *File) {
	b.Path = append(b.Path, f.Path)
	b.Language = append(b.Language, f.Language)
	b.ContentHash = append(b.ContentHash, f.ContentHash)
	b.Size = append(b.Size, f.Size)
	b.LastModified = append(b.LastModified, f.LastModified)
}

// Files materializes the batch as File rows.
func (b *FileBatch) Files() []*File {
	out := make([]*File, b.Len())
	for i := range b.Path {
		out[i] = &File{
			Path:         b.Path[i],
			Language:     b.Language[i],
			ContentHash:  b.ContentHash[i],
			Size:         b.Size[i],
			LastModified: b.LastModified[i],
		}
	}
	return out
}
