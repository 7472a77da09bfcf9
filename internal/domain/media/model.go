package media

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the media variants stored for a patient.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindModel3D Kind = "model3d"
)

func ValidKind(k Kind) bool {
	return k == KindImage || k == KindVideo || k == KindModel3D
}

// model3DExtensions is the closed set of accepted 3D file formats.
var model3DExtensions = map[string]bool{
	".stl": true,
	".obj": true,
	".ply": true,
}

// ValidateFilename rejects 3D uploads outside the accepted formats.
// Image and video uploads are not format-checked.
func ValidateFilename(kind Kind, filename string) error {
	if kind != KindModel3D {
		return nil
	}
	ext := strings.ToLower(path.Ext(filename))
	if !model3DExtensions[ext] {
		return fmt.Errorf("unsupported 3D model format %q, expected .stl, .obj or .ply", ext)
	}
	return nil
}

// Media is one stored file attached to a patient. UploadedBy is nil
// when the uploading user has since been deleted.
type Media struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	UploadedBy  *uuid.UUID `json:"uploaded_by"`
	Kind        Kind       `json:"kind"`
	FileName    string     `json:"file_name"`
	Path        string     `json:"path"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
	CreatedAt   time.Time  `json:"created_at"`
}
