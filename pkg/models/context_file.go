package models

// FileType categorizes a context file attachment.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeOther    FileType = "other"
)

// ContextFile is a typed attachment passed alongside textual content.
// Tools may return one or more context files to signal that their
// output is a file rather than (or in addition to) text.
type ContextFile struct {
	// URI locates the file (file://, https://, workspace-relative).
	URI string `json:"uri"`

	// FileName is the display name of the file.
	FileName string `json:"file_name"`

	// FileType categorizes the content.
	FileType FileType `json:"file_type"`
}
