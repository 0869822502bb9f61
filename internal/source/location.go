package source

import (
	"fmt"
	"strings"
)

const gcsScheme = "gs://"

// Location identifies one uploaded file by bucket and object key.
type Location struct {
	Bucket string
	Key    string
}

// ParseURI parses "gs://bucket/key" into a Location.
func ParseURI(uri string) (Location, error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return Location{}, fmt.Errorf("ParseURI: %q is not a gs:// URI", uri)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("ParseURI: %q must name a bucket and an object", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Validate reports whether both bucket and key are set.
func (l Location) Validate() error {
	if l.Bucket == "" || l.Key == "" {
		return fmt.Errorf("source location requires bucket and key, got %q", l.String())
	}
	return nil
}

func (l Location) String() string {
	return gcsScheme + l.Bucket + "/" + l.Key
}
