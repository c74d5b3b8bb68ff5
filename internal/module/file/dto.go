package file

// CreateRequest is the payload for registering an upload.
type CreateRequest struct {
	Name      string `json:"name" binding:"required"`
	MimeType  string `json:"mime_type" binding:"required"`
	SizeBytes int64  `json:"size_bytes" binding:"required,gt=0"`
	// TTLHours overrides the default retention; 0 uses the default.
	TTLHours int `json:"ttl_hours" binding:"omitempty,gt=0"`
}

// CreateResponse returns the registered file and its upload URL.
type CreateResponse struct {
	File      *File  `json:"file"`
	UploadURL string `json:"upload_url"`
}

// ListResponse wraps a page of files.
type ListResponse struct {
	Files []*File `json:"files"`
}
