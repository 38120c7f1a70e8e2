package modelstore

import "time"

// PersistedAsset is a fully materialized durable record: the decoded
// payload plus the metadata stored in its three sibling keys. It is only
// ever returned complete; readers treat partial records as absent.
type PersistedAsset struct {
	Key          string    // Storage key of the data entry
	OwnerID      int64     // Owning product
	Data         []byte    // Decoded payload
	ContentType  string    // Declared or inferred MIME type
	OriginalName string    // File name as uploaded
	CreatedAt    time.Time // When the record was written
}

// AssetInfo is the lightweight listing entry for one persisted asset.
type AssetInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
