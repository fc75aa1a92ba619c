package rbd

import "encoding/json"

// Identity label keys present in every LabelSet.
const (
	LabelPool  = "pool"
	LabelImage = "image"
)

// LabelSet is the metadata attached to one image: the pool and image
// identity plus whatever key/value tags image-meta returned.
type LabelSet map[string]string

// ImageID identifies an image across the cluster as pool/image.
type ImageID string

// NewImageID builds the pool-scoped identifier for an image
func NewImageID(pool, image string) ImageID {
	return ImageID(pool + "/" + image)
}

// pool is one entry of `ceph osd pool ls detail -f json`
type pool struct {
	Name                string                     `json:"pool_name"`
	ApplicationMetadata map[string]json.RawMessage `json:"application_metadata"`
}
