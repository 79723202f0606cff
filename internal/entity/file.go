package entity

import "time"

// StoredFile represents a single file inside an event's namespace.
type StoredFile struct {
	Name      string    `json:"name"`
	Folder    string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// FolderListing is the immediate contents of one folder: files placed
// directly in it plus the names of its immediate subfolders.
type FolderListing struct {
	Folder  string       `json:"folder"`
	Folders []string     `json:"folders"`
	Files   []StoredFile `json:"files"`
}

// RejectedFile describes one input of a multi-file upload that was not stored.
type RejectedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// UploadResult aggregates a partial-success upload. The request as a whole
// succeeds as long as it was well-formed; individual files fail independently.
type UploadResult struct {
	Uploaded int            `json:"uploaded"`
	Rejected []RejectedFile `json:"rejected"`
}
