// Package aot archives the species and forms a runtime resolved so a later
// run can install them instead of generating them on demand.
package aot

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("indy.aot")

// ---------------------------------------------------------------------------
// Archive records
// ---------------------------------------------------------------------------

// Archive is the product of replaying a resolution trace.
type Archive struct {
	// BuildID is derived from the replayed trace, so equal traces give
	// equal archives.
	BuildID string          `cbor:"1,keyasint"`
	Species []SpeciesRecord `cbor:"2,keyasint"`
	Forms   []FormRecord    `cbor:"3,keyasint"`
}

// SpeciesRecord is one carrier class.
type SpeciesRecord struct {
	Key     string `cbor:"1,keyasint"`
	Carrier string `cbor:"2,keyasint"`
	Image   []byte `cbor:"3,keyasint"`
}

// FormRecord is one prepared form. Listing is the form's rendering; an
// installing runtime must build the identical form.
type FormRecord struct {
	Holder  string `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint"`
	Sig     string `cbor:"3,keyasint"`
	Listing string `cbor:"4,keyasint"`
}

// ---------------------------------------------------------------------------
// Section format
// ---------------------------------------------------------------------------
//
//	magic "INDY" | version u32 | flags u32 | species u32 | forms u32 | length u32 | payload
//
// Integers are little endian. Flag bit 0 marks a gzip payload. The payload
// is the canonical CBOR encoding of the Archive.

var sectionMagic = [4]byte{'I', 'N', 'D', 'Y'}

const (
	sectionVersion uint32 = 1
	headerSize            = 24
	flagCompressed uint32 = 1
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("aot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Encode serializes an archive, optionally gzip-compressing the payload.
func Encode(a *Archive, compress bool) ([]byte, error) {
	payload, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("aot: marshal archive: %w", err)
	}
	flags := uint32(0)
	if compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return nil, fmt.Errorf("aot: compress archive: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("aot: compress archive: %w", err)
		}
		payload = buf.Bytes()
		flags |= flagCompressed
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out, sectionMagic[:])
	binary.LittleEndian.PutUint32(out[4:], sectionVersion)
	binary.LittleEndian.PutUint32(out[8:], flags)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(a.Species)))
	binary.LittleEndian.PutUint32(out[16:], uint32(len(a.Forms)))
	binary.LittleEndian.PutUint32(out[20:], uint32(len(payload)))
	return append(out, payload...), nil
}

// Decode parses an encoded archive.
func Decode(data []byte) (*Archive, error) {
	if len(data) < headerSize {
		return nil, errors.New("aot: archive too short")
	}
	if !bytes.Equal(data[:4], sectionMagic[:]) {
		return nil, errors.New("aot: invalid archive magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != sectionVersion {
		return nil, fmt.Errorf("aot: unsupported archive version %d", v)
	}
	flags := binary.LittleEndian.Uint32(data[8:])
	nSpecies := binary.LittleEndian.Uint32(data[12:])
	nForms := binary.LittleEndian.Uint32(data[16:])
	n := binary.LittleEndian.Uint32(data[20:])
	if headerSize+int(n) > len(data) {
		return nil, errors.New("aot: archive payload truncated")
	}
	payload := data[headerSize : headerSize+int(n)]

	if flags&flagCompressed != 0 {
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("aot: decompress archive: %w", err)
		}
		if payload, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("aot: decompress archive: %w", err)
		}
	}

	var a Archive
	if err := cbor.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("aot: unmarshal archive: %w", err)
	}
	if len(a.Species) != int(nSpecies) || len(a.Forms) != int(nForms) {
		return nil, fmt.Errorf("aot: archive header counts %d/%d do not match payload %d/%d",
			nSpecies, nForms, len(a.Species), len(a.Forms))
	}
	return &a, nil
}
