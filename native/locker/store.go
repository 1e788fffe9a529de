package locker

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/wakumo/juzu-protocol/storage"
)

var recordPrefix = []byte("juzu/locker/")

// Record is the durable creation entry the factory writes for every locker,
// RLP-encoded into the configured key-value store. It is an index for
// explorers and operational tooling; runtime state lives in the Locker.
type Record struct {
	PositionID     uint64
	Address        common.Address
	Owner          common.Address
	FactoryVersion uint64
	CreatedAt      uint64
	Stage          uint8
}

// Store persists locker creation records.
type Store struct {
	db storage.Database
}

// NewStore wraps a key-value database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func recordKey(positionID uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], positionID)
	return key
}

// Put writes the record under its position id.
func (s *Store) Put(record *Record) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return s.db.Put(recordKey(record.PositionID), encoded)
}

// Get loads the record for a position id. Missing records surface the
// underlying storage.ErrNotFound.
func (s *Store) Get(positionID uint64) (*Record, error) {
	encoded, err := s.db.Get(recordKey(positionID))
	if err != nil {
		return nil, err
	}
	record := new(Record)
	if err := rlp.DecodeBytes(encoded, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Has reports whether a record exists for the position id.
func (s *Store) Has(positionID uint64) (bool, error) {
	return s.db.Has(recordKey(positionID))
}
