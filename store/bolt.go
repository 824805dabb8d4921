package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"sync"

	json "github.com/nikkolasg/hexjson"
	bolt "go.etcd.io/bbolt"

	xaynerrors "github.com/xaynetwork/xaynet-coordinator/common/errors"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

// BoltFileName is the name of the file BoltStore writes to.
const BoltFileName = "coordinator.db"

// BoltStoreOpenPerm is the permission used to open the store file on disk.
const BoltStoreOpenPerm = 0660

var (
	sumBucket     = []byte("sum_dict")
	seedBucket    = []byte("seed_dict")
	maskBucket    = []byte("mask_dict")
	maskObjBucket = []byte("mask_objects")
	contribBucket = []byte("contributors")
)

// BoltStore is a durable Store backed by boltdb, for deployments that want
// round dictionaries to survive a coordinator restart rather than dropping
// an in-flight round (spec §4.4 notes the storage may be any backend
// satisfying the same contracts). Seed-dict rows and mask scores are stored
// hexjson-encoded; keys, ephemeral keys and mask objects are stored as raw
// bytes.
//
//nolint:gocritic// the mutex is intentional; bolt transactions alone are
// not enough to make the compound operations below atomic.
type BoltStore struct {
	sync.Mutex
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bolt database under folder and
// ensures every bucket this store needs exists.
func NewBoltStore(folder string) (*BoltStore, error) {
	dbPath := path.Join(folder, BoltFileName)
	db, err := bolt.Open(dbPath, BoltStoreOpenPerm, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{sumBucket, seedBucket, maskBucket, maskObjBucket, contribBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: creating buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) AddSumParticipant(_ context.Context, pk key.SigningPublicKey, ephemeralPK key.EncryptionPublicKey) (AddSumResult, error) {
	b.Lock()
	defer b.Unlock()

	result := Added
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sumBucket)
		k := pk.Bytes()
		if bucket.Get(k) != nil {
			result = AlreadyExists
			return nil
		}
		return bucket.Put(k, ephemeralPK.Bytes())
	})
	return result, err
}

func (b *BoltStore) SumDict(_ context.Context) (SumDict, error) {
	b.Lock()
	defer b.Unlock()

	out := SumDict{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sumBucket).ForEach(func(k, v []byte) error {
			pk, err := key.SigningPublicKeyFromBytes(k)
			if err != nil {
				return err
			}
			epk, err := key.EncryptionPublicKeyFromBytes(v)
			if err != nil {
				return err
			}
			out[pk] = epk
			return nil
		})
	})
	return out, err
}

func (b *BoltStore) AddLocalSeedDict(_ context.Context, updatePK key.SigningPublicKey, local LocalSeedDict) error {
	b.Lock()
	defer b.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		contrib := tx.Bucket(contribBucket)
		if contrib.Get(updatePK.Bytes()) != nil {
			return fmt.Errorf("%w: update participant already contributed a seed dict", xaynerrors.ErrStorageInvariant)
		}

		sum := tx.Bucket(sumBucket)
		have := map[key.SigningPublicKey]struct{}{}
		if err := sum.ForEach(func(k, _ []byte) error {
			pk, err := key.SigningPublicKeyFromBytes(k)
			if err != nil {
				return err
			}
			have[pk] = struct{}{}
			return nil
		}); err != nil {
			return err
		}
		if len(have) != len(local) {
			return fmt.Errorf("%w: local seed dict keys do not match sum dict", xaynerrors.ErrStorageInvariant)
		}
		for pk := range local {
			if _, ok := have[pk]; !ok {
				return fmt.Errorf("%w: local seed dict keys do not match sum dict", xaynerrors.ErrStorageInvariant)
			}
		}

		seed := tx.Bucket(seedBucket)
		for sumPK, encSeed := range local {
			row := map[string]string{}
			if raw := seed.Get(sumPK.Bytes()); raw != nil {
				if err := json.Unmarshal(raw, &row); err != nil {
					return fmt.Errorf("store: decoding seed row: %w", err)
				}
			}
			row[updatePK.String()] = hex.EncodeToString(encSeed[:])
			encoded, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("store: encoding seed row: %w", err)
			}
			if err := seed.Put(sumPK.Bytes(), encoded); err != nil {
				return err
			}
		}
		return contrib.Put(updatePK.Bytes(), []byte{1})
	})
}

func (b *BoltStore) SeedDict(_ context.Context) (SeedDict, error) {
	b.Lock()
	defer b.Unlock()

	out := SeedDict{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(seedBucket).ForEach(func(k, v []byte) error {
			sumPK, err := key.SigningPublicKeyFromBytes(k)
			if err != nil {
				return err
			}
			var row map[string]string
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("store: decoding seed row: %w", err)
			}
			decoded := make(map[key.SigningPublicKey]EncryptedSeed, len(row))
			for pkHex, seedHex := range row {
				pkBytes, err := hex.DecodeString(pkHex)
				if err != nil {
					return err
				}
				updatePK, err := key.SigningPublicKeyFromBytes(pkBytes)
				if err != nil {
					return err
				}
				seedBytes, err := hex.DecodeString(seedHex)
				if err != nil {
					return err
				}
				var seed EncryptedSeed
				copy(seed[:], seedBytes)
				decoded[updatePK] = seed
			}
			out[sumPK] = decoded
			return nil
		})
	})
	return out, err
}

func (b *BoltStore) IncrMaskScore(_ context.Context, pk key.SigningPublicKey, masked mask.Object) error {
	b.Lock()
	defer b.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		sum := tx.Bucket(sumBucket)
		if sum.Get(pk.Bytes()) == nil {
			return fmt.Errorf("%w: sum2 submitter is not a registered sum participant", xaynerrors.ErrStorageInvariant)
		}
		if err := sum.Delete(pk.Bytes()); err != nil {
			return err
		}

		maskKey := ObjectKey(masked)
		keyHex := hex.EncodeToString([]byte(maskKey))

		objBucket := tx.Bucket(maskObjBucket)
		if objBucket.Get([]byte(keyHex)) == nil {
			if err := objBucket.Put([]byte(keyHex), masked.MarshalBinary()); err != nil {
				return err
			}
		}

		counts := tx.Bucket(maskBucket)
		scores := map[string]int{}
		if raw := counts.Get([]byte("scores")); raw != nil {
			if err := json.Unmarshal(raw, &scores); err != nil {
				return fmt.Errorf("store: decoding mask scores: %w", err)
			}
		}
		scores[keyHex]++
		encoded, err := json.Marshal(scores)
		if err != nil {
			return fmt.Errorf("store: encoding mask scores: %w", err)
		}
		return counts.Put([]byte("scores"), encoded)
	})
}

func (b *BoltStore) BestMasks(_ context.Context) ([]mask.Object, int, error) {
	b.Lock()
	defer b.Unlock()

	var out []mask.Object
	best := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(maskBucket).Get([]byte("scores"))
		if raw == nil {
			return nil
		}
		scores := map[string]int{}
		if err := json.Unmarshal(raw, &scores); err != nil {
			return fmt.Errorf("store: decoding mask scores: %w", err)
		}
		for _, count := range scores {
			if count > best {
				best = count
			}
		}
		if best == 0 {
			return nil
		}

		var keyHexes []string
		for k, count := range scores {
			if count == best {
				keyHexes = append(keyHexes, k)
			}
		}
		sort.Strings(keyHexes)

		objBucket := tx.Bucket(maskObjBucket)
		for _, keyHex := range keyHexes {
			raw := objBucket.Get([]byte(keyHex))
			if raw == nil {
				return fmt.Errorf("store: mask object missing for scored key %q", keyHex)
			}
			obj, err := mask.UnmarshalObject(raw)
			if err != nil {
				return fmt.Errorf("store: decoding mask object: %w", err)
			}
			out = append(out, obj)
		}
		return nil
	})
	return out, best, err
}

func (b *BoltStore) DeleteCoordinatorData(_ context.Context) error {
	b.Lock()
	defer b.Unlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sumBucket, seedBucket, contribBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) DeleteDicts(_ context.Context) error {
	b.Lock()
	defer b.Unlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sumBucket, seedBucket, maskBucket, maskObjBucket, contribBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) Close(context.Context) error {
	b.Lock()
	defer b.Unlock()
	return b.db.Close()
}
