package regions

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

const keyPrefix = "region/"

// Store persists resolved regions across restarts. Geometries are stored as
// zstd-compressed GeoJSON keyed by region name.
type Store struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenStore opens a badger database in dir. An empty dir keeps the store in memory.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open region store: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &Store{db: db, encoder: encoder, decoder: decoder}, nil
}

// Get returns the stored region, or false when name has not been stored.
func (s *Store) Get(name string) (domain.Region, bool, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			payload, err = s.decoder.DecodeAll(val, nil)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Region{}, false, nil
	}
	if err != nil {
		return domain.Region{}, false, fmt.Errorf("read region %q: %w", name, err)
	}

	g, err := graph.UnmarshalPolygonal(payload)
	if err != nil {
		return domain.Region{}, false, fmt.Errorf("region %q: %w", name, err)
	}
	return domain.Region{Name: name, Geometry: g}, true, nil
}

// Put stores a region, replacing any previous entry.
func (s *Store) Put(region domain.Region) error {
	doc, err := graph.MarshalGeometry(region.Geometry)
	if err != nil {
		return fmt.Errorf("encode region %q: %w", region.Name, err)
	}
	compressed := s.encoder.EncodeAll(doc, make([]byte, 0, len(doc)/4))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+region.Name), compressed)
	})
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		return err
	}
	return s.db.Close()
}
