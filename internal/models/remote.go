package models

import "time"

// RemoteRecord is the shape exchanged with the remote categorization store.
// Labels is empty when IsIgnored is set.
type RemoteRecord struct {
	ItemID        string    `json:"item_id"`
	ItemText      string    `json:"item_text"`
	Labels        []string  `json:"labels,omitempty"`
	IsIgnored     bool      `json:"is_ignored"`
	CategorizedAt time.Time `json:"categorized_at"`
}

// RemoteFromCategorization converts a local categorization for upload.
func RemoteFromCategorization(c Categorization) RemoteRecord {
	return RemoteRecord{
		ItemID:        c.ItemID,
		ItemText:      c.ItemText,
		Labels:        append([]string(nil), c.Labels...),
		CategorizedAt: c.CategorizedAt,
	}
}

// RemoteFromIgnored converts a local ignored item for upload.
func RemoteFromIgnored(i IgnoredItem) RemoteRecord {
	return RemoteRecord{
		ItemID:        i.ItemID,
		ItemText:      i.ItemText,
		IsIgnored:     true,
		CategorizedAt: i.IgnoredAt,
	}
}
