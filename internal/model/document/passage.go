package document

// Field names requested from the vector store.
const (
	FieldText       = "text"
	FieldSourcePath = "source_path"
)

// Passage is a retrieval-sized excerpt of an ingested document.
type Passage struct {
	Text       string `json:"text"`
	SourcePath string `json:"sourcePath"`
}

// Hit is a passage returned by a similarity search, best match first.
type Hit struct {
	Passage
	Similarity float32 `json:"similarity"`
}
