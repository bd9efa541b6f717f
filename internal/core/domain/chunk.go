package domain

// Metadata keys stored next to every vector. The store has no document store,
// so the chunk text rides along under MetaText.
const (
	MetaText       = "text"
	MetaFilename   = "filename"
	MetaSource     = "source"
	MetaPage       = "page"
	MetaPageLabel  = "page_label"
	MetaTotalPages = "total_pages"
	MetaTitle      = "title"
	MetaSubject    = "subject"
	MetaKeywords   = "keywords"
	MetaAuthor     = "author"
)

type ChunkMetadata struct {
	Filename   string
	Source     string
	Page       int
	PageLabel  string
	TotalPages int
	Info       DocumentInfo
}

// Chunk is immutable once created. ID is "<filename stem>-<sequence>" so that
// re-ingesting a file overwrites its previous records.
type Chunk struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
}

type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

func NewVectorRecord(chunk Chunk, values []float32) VectorRecord {
	md := map[string]any{
		MetaText:       chunk.Text,
		MetaFilename:   chunk.Metadata.Filename,
		MetaSource:     chunk.Metadata.Source,
		MetaPage:       chunk.Metadata.Page,
		MetaPageLabel:  chunk.Metadata.PageLabel,
		MetaTotalPages: chunk.Metadata.TotalPages,
	}
	// Vector stores reject null metadata values; absent fields are omitted.
	putIfSet(md, MetaTitle, chunk.Metadata.Info.Title)
	putIfSet(md, MetaSubject, chunk.Metadata.Info.Subject)
	putIfSet(md, MetaKeywords, chunk.Metadata.Info.Keywords)
	putIfSet(md, MetaAuthor, chunk.Metadata.Info.Author)

	return VectorRecord{
		ID:       chunk.ID,
		Values:   values,
		Metadata: md,
	}
}

func putIfSet(md map[string]any, key, value string) {
	if value != "" {
		md[key] = value
	}
}

type IndexStats struct {
	Dimension        int   `json:"dimension"`
	TotalVectorCount int64 `json:"total_vector_count"`
}
