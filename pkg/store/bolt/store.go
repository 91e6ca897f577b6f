// Package bolt provides a bbolt-backed pseudo-spectrum store
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

// Store keeps one bucket per (pass, bin); keys are the bucket sequence so a
// cursor walk returns spectra in append order.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the store at path
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	return &Store{db: db}, nil
}

func bucketName(key core.BinKey) []byte {
	return []byte(key.String())
}

// Append writes spectra after the existing entries of key in one transaction
func (s *Store) Append(ctx context.Context, key core.BinKey, spectra []*core.Spectrum) error {
	if len(spectra) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(key))
		if err != nil {
			return err
		}
		for _, spec := range spectra {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			k := make([]byte, 8)
			binary.BigEndian.PutUint64(k, seq)
			if err := b.Put(k, store.EncodeSpectrum(spec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

// Load reads all spectra of key in append order
func (s *Store) Load(ctx context.Context, key core.BinKey) ([]*core.Spectrum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spectra []*core.Spectrum
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(key))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			spec, err := store.DecodeSpectrum(v)
			if err != nil {
				return err
			}
			spectra = append(spectra, spec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return spectra, nil
}

// Delete drops the bucket of key
func (s *Store) Delete(_ context.Context, key core.BinKey) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(bucketName(key))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
