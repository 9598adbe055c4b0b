// Package rendercache stores finished renders in a local badger database,
// keyed by a fingerprint of the scene description and output size.
package rendercache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"pinhole/rasterimage"

	"github.com/dgraph-io/badger"
	"github.com/golang/glog"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Key prefixes that denote different tables in the key-value store.
const (
	KeyTypeRaster    uint32 = 0
	KeyTypeRenderSeq uint32 = 1
	KeyTypeSerial    uint32 = 2
)

// Fingerprint identifies one render: the same description at the same size and
// depth always produces the same pixels.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ComputeFingerprint hashes the deterministic proto encoding of desc together
// with the output size and recursion depth.
func ComputeFingerprint(desc *structpb.Struct, width, height, maxDepth int) (Fingerprint, error) {
	descBytes, err := proto.MarshalOptions{Deterministic: true}.Marshal(desc)
	if err != nil {
		return Fingerprint{}, xerrors.Errorf("while marshaling scene description: %w", err)
	}

	dims := make([]byte, 24)
	binary.BigEndian.PutUint64(dims[0:8], uint64(width))
	binary.BigEndian.PutUint64(dims[8:16], uint64(height))
	binary.BigEndian.PutUint64(dims[16:24], uint64(maxDepth))

	h := sha256.New()
	h.Write(dims)
	h.Write(descBytes)

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f, nil
}

func RasterKey(f Fingerprint) []byte {
	key := make([]byte, 4+len(f))
	binary.BigEndian.PutUint32(key[0:4], KeyTypeRaster)
	copy(key[4:], f[:])
	return key
}

func SerialKey(f Fingerprint) []byte {
	key := make([]byte, 4+len(f))
	binary.BigEndian.PutUint32(key[0:4], KeyTypeSerial)
	copy(key[4:], f[:])
	return key
}

func RenderSeqKey() []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key[0:4], KeyTypeRenderSeq)
	return key
}

type Kind int

const (
	KindInternal Kind = iota
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindCorrupt:
		return "corrupt"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string

	inner error
	frame xerrors.Frame
}

func NewError(kind Kind, message string, inner error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		inner:   inner,
		frame:   xerrors.Caller(1),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Message, e.Kind, e.inner)
}

func (e *Error) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *Error) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	p.Print(fmt.Sprintf("%s (%s)", e.Message, e.Kind))
	if p.Detail() {
		e.frame.Format(p)
	}
	return e.inner
}

func (e *Error) Unwrap() error {
	return e.inner
}

// glogLogger routes badger's logging through glog.
type glogLogger struct{}

func (glogLogger) Errorf(f string, v ...interface{})   { glog.Errorf("badger: "+f, v...) }
func (glogLogger) Warningf(f string, v ...interface{}) { glog.Warningf("badger: "+f, v...) }
func (glogLogger) Infof(f string, v ...interface{})    { glog.V(2).Infof("badger: "+f, v...) }
func (glogLogger) Debugf(f string, v ...interface{})   { glog.V(3).Infof("badger: "+f, v...) }

type Cache struct {
	DB *badger.DB

	renderSeq *badger.Sequence
}

func Open(dataDir string, clear bool) (*Cache, error) {
	if clear {
		if err := os.RemoveAll(dataDir); err != nil {
			return nil, xerrors.Errorf("while clearing data dir %q: %w", dataDir, err)
		}
	}

	db, err := badger.Open(badger.DefaultOptions(dataDir).WithLogger(glogLogger{}))
	if err != nil {
		return nil, xerrors.Errorf("while opening badger kv dir: %w", err)
	}

	renderSeq, err := db.GetSequence(RenderSeqKey(), 100)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("while retrieving render sequence: %w", err)
	}

	return &Cache{
		DB:        db,
		renderSeq: renderSeq,
	}, nil
}

func (c *Cache) Close() error {
	if err := c.renderSeq.Release(); err != nil {
		return xerrors.Errorf("while releasing render sequence: %w", err)
	}

	if err := c.DB.Close(); err != nil {
		return xerrors.Errorf("while closing badger db: %w", err)
	}

	return nil
}

// Get returns the cached raster for f, a "found" indicator, and an error.
func (c *Cache) Get(f Fingerprint) (*rasterimage.Image, bool, error) {
	var data []byte
	err := c.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(RasterKey(f))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if xerrors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, NewError(KindInternal, "while reading raster "+f.String(), err)
	}

	im, err := rasterimage.Read(bytes.NewReader(data))
	if err != nil {
		return nil, false, NewError(KindCorrupt, "while decoding raster "+f.String(), err)
	}
	return im, true, nil
}

// Put stores im under f and returns the serial number assigned to the render.
func (c *Cache) Put(f Fingerprint, im *rasterimage.Image) (uint64, error) {
	buf := &bytes.Buffer{}
	if err := rasterimage.Write(im, buf); err != nil {
		return 0, xerrors.Errorf("while encoding raster: %w", err)
	}

	serial, err := c.renderSeq.Next()
	if err != nil {
		return 0, xerrors.Errorf("while allocating render serial: %w", err)
	}
	serialBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(serialBytes, serial)

CommitRetry:
	err = c.DB.Update(func(txn *badger.Txn) error {
		if err := txn.Set(RasterKey(f), buf.Bytes()); err != nil {
			return err
		}
		return txn.Set(SerialKey(f), serialBytes)
	})
	if xerrors.Is(err, badger.ErrConflict) {
		goto CommitRetry
	} else if err != nil {
		return 0, NewError(KindInternal, "while storing raster "+f.String(), err)
	}

	glog.V(1).Infof("Cached render %d (%dx%d) as %s", serial, im.Width, im.Height, f)
	return serial, nil
}

// Serial returns the serial number recorded by Put for f.
func (c *Cache) Serial(f Fingerprint) (uint64, bool, error) {
	var serial uint64
	err := c.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(SerialKey(f))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 8 {
				return NewError(KindCorrupt, "serial has wrong length", xerrors.Errorf("got %d bytes, want 8", len(v)))
			}
			serial = binary.BigEndian.Uint64(v)
			return nil
		})
	})
	if xerrors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, xerrors.Errorf("while reading serial for %s: %w", f, err)
	}
	return serial, true, nil
}

// Delete drops f from the cache.  Deleting an absent entry is not an error.
func (c *Cache) Delete(f Fingerprint) error {
	err := c.DB.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(RasterKey(f)); err != nil {
			return err
		}
		return txn.Delete(SerialKey(f))
	})
	if err != nil {
		return xerrors.Errorf("while deleting %s: %w", f, err)
	}
	return nil
}
