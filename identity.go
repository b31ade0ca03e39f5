package ceptr

import (
	"github.com/google/uuid"
)

// HostID identifies one VM host instance, for logging and for the package
// store's provenance records.
type HostID uuid.UUID

// NewHostID returns a fresh random host identity.
func NewHostID() HostID {
	return HostID(uuid.New())
}

func (h HostID) String() string {
	return uuid.UUID(h).String()
}

// Equal returns true if both host IDs are the same.
func (h HostID) Equal(other HostID) bool {
	return uuid.UUID(h) == uuid.UUID(other)
}

// IsNil returns true iff the host ID is the zero value.
func (h HostID) IsNil() bool {
	return h.Equal(HostID(uuid.Nil))
}

// PackageID identifies a receptor package in the package store.
type PackageID uuid.UUID

// PackageNameToID derives a stable PackageID from a package name, hashing
// the name into a URL-namespace UUID.
func PackageNameToID(name string) PackageID {
	url := "https://ceptr.dedis.ch/package/" + name
	return PackageID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)))
}

func (p PackageID) String() string {
	return uuid.UUID(p).String()
}

// Equal returns true if both package IDs are the same.
func (p PackageID) Equal(other PackageID) bool {
	return uuid.UUID(p) == uuid.UUID(other)
}

// IsNil returns true iff the package ID is the zero value.
func (p PackageID) IsNil() bool {
	return p.Equal(PackageID(uuid.Nil))
}
