package models

import (
	"fmt"
	"sort"
)

// SessionImage is an image generated by one script execution (a batch).
// Data may be nil once evicted from memory; the disk copy is authoritative.
type SessionImage struct {
	ID        int    `json:"id"`
	BatchID   int    `json:"batchId"`
	Name      string `json:"name"`
	CreatedAt Day    `json:"dateCreated"`
	Data      []byte `json:"imageData,omitempty"`
}

// WithoutData returns a copy without the image bytes.
func (i SessionImage) WithoutData() SessionImage {
	i.Data = nil
	return i
}

func (i SessionImage) String() string {
	return fmt.Sprintf("SessionImage(%d batch=%d %q)", i.ID, i.BatchID, i.Name)
}

// SortImages orders images by batch id and then id.
func SortImages(images []SessionImage) {
	sort.Slice(images, func(a, b int) bool {
		if images[a].BatchID != images[b].BatchID {
			return images[a].BatchID < images[b].BatchID
		}
		return images[a].ID < images[b].ID
	})
}
