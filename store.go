package modelstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

const (
	suffixType      = "_type"
	suffixName      = "_name"
	suffixTimestamp = "_timestamp"

	maxNameLength = 255
)

var reservedSuffixes = []string{suffixType, suffixName, suffixTimestamp}

// Store persists encoded model payloads in the medium. Every asset
// occupies four sibling keys: the data key holds the encoded payload and
// the _type, _name and _timestamp keys hold its metadata.
//
// Why data last: the medium has no transactions, so Write stores the
// metadata keys first and the data key last. Read requires all four keys,
// which makes a record invisible until the final write has landed.
type Store struct {
	medium Medium
	codec  *Codec
	prefix string
	clock  clock.Clock
	log    zerolog.Logger
}

// Key returns the deterministic storage key for an owner and file name.
// The same pair always yields the same key, and because owner IDs contain
// no underscore, distinct pairs never collide.
func (s *Store) Key(ownerID int64, name string) string {
	return s.prefix + strconv.FormatInt(ownerID, 10) + "_" + name
}

// ownerPrefix is the common prefix of every key belonging to ownerID.
func (s *Store) ownerPrefix(ownerID int64) string {
	return s.prefix + strconv.FormatInt(ownerID, 10) + "_"
}

// Write persists data and its metadata under the owner's key for name.
// An existing record under the same key is overwritten, timestamps
// included. Returns the storage key of the data entry.
func (s *Store) Write(ctx context.Context, ownerID int64, name string, data []byte, contentType string) (string, error) {
	if err := s.validateName(name); err != nil {
		return "", err
	}

	key := s.Key(ownerID, name)
	encoded := s.codec.Encode(data)
	createdAt := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)

	// Metadata first, data last. A reader requires all four keys, so the
	// record stays invisible until the data write lands.
	if err := s.medium.SetItem(key+suffixType, contentType); err != nil {
		return "", fmt.Errorf("writing content type for %q: %w", name, err)
	}
	if err := s.medium.SetItem(key+suffixName, name); err != nil {
		return "", fmt.Errorf("writing original name for %q: %w", name, err)
	}
	if err := s.medium.SetItem(key+suffixTimestamp, createdAt); err != nil {
		return "", fmt.Errorf("writing timestamp for %q: %w", name, err)
	}
	if err := s.medium.SetItem(key, encoded); err != nil {
		return "", fmt.Errorf("writing data for %q: %w", name, err)
	}

	return key, nil
}

// Read returns the complete persisted record for an asset.
//
// Read fails closed: when only some of the four keys are present the
// record is reported as absent with ErrNotFound, and a diagnostic line
// identifies the inconsistency for debugging. A record whose payload no
// longer decodes is reported as ErrMediumCorrupted.
func (s *Store) Read(ctx context.Context, ownerID int64, name string) (*PersistedAsset, error) {
	if err := s.validateName(name); err != nil {
		return nil, err
	}

	key := s.Key(ownerID, name)

	encoded, hasData := s.medium.GetItem(key)
	contentType, hasType := s.medium.GetItem(key + suffixType)
	originalName, hasName := s.medium.GetItem(key + suffixName)
	timestamp, hasTimestamp := s.medium.GetItem(key + suffixTimestamp)

	present := 0
	for _, ok := range []bool{hasData, hasType, hasName, hasTimestamp} {
		if ok {
			present++
		}
	}
	if present == 0 {
		return nil, fmt.Errorf("asset %q: %w", name, ErrNotFound)
	}
	if present < 4 {
		s.log.Warn().
			Int64("owner", ownerID).
			Str("name", name).
			Str("key", key).
			Bool("data", hasData).
			Bool("type", hasType).
			Bool("original_name", hasName).
			Bool("timestamp", hasTimestamp).
			Msg("incomplete asset record, treating as absent")
		return nil, fmt.Errorf("asset %q: %w", name, ErrNotFound)
	}

	data, err := s.codec.Decode(encoded)
	if err != nil {
		s.log.Warn().
			Int64("owner", ownerID).
			Str("name", name).
			Str("key", key).
			Err(err).
			Msg("asset payload no longer decodes")
		return nil, fmt.Errorf("asset %q: %w", name, ErrMediumCorrupted)
	}

	millis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		s.log.Warn().
			Int64("owner", ownerID).
			Str("name", name).
			Str("timestamp", timestamp).
			Msg("asset timestamp is not an integer")
		return nil, fmt.Errorf("asset %q: %w", name, ErrMediumCorrupted)
	}

	return &PersistedAsset{
		Key:          key,
		OwnerID:      ownerID,
		Data:         data,
		ContentType:  contentType,
		OriginalName: originalName,
		CreatedAt:    time.UnixMilli(millis),
	}, nil
}

// Exists reports whether a complete record is present for the asset.
func (s *Store) Exists(ownerID int64, name string) (bool, error) {
	if err := s.validateName(name); err != nil {
		return false, err
	}

	key := s.Key(ownerID, name)
	for _, k := range []string{key, key + suffixType, key + suffixName, key + suffixTimestamp} {
		if _, ok := s.medium.GetItem(k); !ok {
			return false, nil
		}
	}
	return true, nil
}

// Remove deletes all four keys of an asset. Removing an absent or partial
// record is a no-op, not an error.
//
// The data key is removed first so a concurrent reader observes the
// record as absent for its whole disappearance, never as partial-valid.
func (s *Store) Remove(ctx context.Context, ownerID int64, name string) error {
	if err := s.validateName(name); err != nil {
		return err
	}

	key := s.Key(ownerID, name)
	for _, k := range []string{key, key + suffixType, key + suffixName, key + suffixTimestamp} {
		if err := s.medium.RemoveItem(k); err != nil {
			return fmt.Errorf("removing %q: %w", k, err)
		}
	}
	return nil
}

// ListForOwner enumerates the owner's complete assets, ordered by name.
// Incomplete records are skipped with a diagnostic instead of appearing
// half-populated in the listing.
func (s *Store) ListForOwner(ownerID int64) ([]AssetInfo, error) {
	names, err := s.namesForOwner(ownerID)
	if err != nil {
		return nil, err
	}

	infos := make([]AssetInfo, 0, len(names))
	for _, name := range names {
		key := s.Key(ownerID, name)

		if _, ok := s.medium.GetItem(key); !ok {
			s.log.Warn().Int64("owner", ownerID).Str("name", name).
				Msg("skipping incomplete asset record in listing")
			continue
		}
		timestamp, ok := s.medium.GetItem(key + suffixTimestamp)
		if !ok {
			s.log.Warn().Int64("owner", ownerID).Str("name", name).
				Msg("skipping asset record without timestamp in listing")
			continue
		}
		millis, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			s.log.Warn().Int64("owner", ownerID).Str("name", name).Str("timestamp", timestamp).
				Msg("skipping asset record with malformed timestamp in listing")
			continue
		}

		infos = append(infos, AssetInfo{Name: name, CreatedAt: time.UnixMilli(millis)})
	}
	return infos, nil
}

// namesForOwner derives the distinct asset names present under the
// owner's namespace, including names whose records are incomplete. Bulk
// cleanup uses this to sweep dangling partial records as well.
func (s *Store) namesForOwner(ownerID int64) ([]string, error) {
	keys, err := s.medium.Keys()
	if err != nil {
		return nil, fmt.Errorf("enumerating medium: %w", err)
	}

	prefix := s.ownerPrefix(ownerID)
	seen := make(map[string]struct{})
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		for _, suffix := range reservedSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				break
			}
		}
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// validateName guards the key space. Names ending in a reserved suffix
// would collide with a sibling metadata key of another asset.
func (s *Store) validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}

	if len(name) > maxNameLength {
		return ErrNameTooLong
	}

	if strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("null bytes not allowed: %w", ErrInvalidName)
	}

	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return fmt.Errorf("name must not end with %q: %w", suffix, ErrInvalidName)
		}
	}

	return nil
}
