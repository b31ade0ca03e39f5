package ceptr

import (
	"os"
	"path"

	bbolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"go.dedis.ch/ceptr/config"
)

var packageBucket = []byte("packages")

// PackageStore keeps receptor packages on disk, keyed by PackageID. The
// package payload is an opaque blob: its internal format is not finalized,
// so the store round-trips bytes and asserts nothing about their shape.
type PackageStore struct {
	db *bbolt.DB
}

// OpenPackageStore opens (creating if needed) the bbolt database at dbPath.
func OpenPackageStore(dbPath string) (*PackageStore, error) {
	if err := os.MkdirAll(path.Dir(dbPath), 0770); err != nil {
		return nil, xerrors.Errorf("open package store: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, xerrors.Errorf("open package store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(packageBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("open package store: %w", err)
	}
	return &PackageStore{db: db}, nil
}

// DefaultPackageStorePath returns the conventional location of the package
// database inside the host's data directory.
func DefaultPackageStorePath() string {
	return path.Join(config.DataDir(), "packages.db")
}

// Save writes a package blob under id, overwriting any previous version.
func (ps *PackageStore) Save(id PackageID, blob []byte) error {
	err := ps.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(packageBucket).Put(id[:], blob)
	})
	if err != nil {
		return xerrors.Errorf("save package %v: %w", id, err)
	}
	return nil
}

// Load reads the package blob stored under id. The second return value is
// false when no such package exists.
func (ps *PackageStore) Load(id PackageID) ([]byte, bool, error) {
	var blob []byte
	err := ps.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(packageBucket).Get(id[:])
		if v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, xerrors.Errorf("load package %v: %w", id, err)
	}
	return blob, blob != nil, nil
}

// Close releases the underlying database.
func (ps *PackageStore) Close() error {
	return ps.db.Close()
}

// InstallPackage would instantiate a receptor from a stored package. The
// package manifest format is not finalized, so installation is not
// implemented; the store only round-trips opaque blobs.
func (h *Host) InstallPackage(ps *PackageStore, id PackageID) (Address, error) {
	return Address{}, xerrors.New("install package: receptor package format not finalized")
}
