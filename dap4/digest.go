package dap4

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
	"github.com/robert-malhotra/go-dap4/internal/checksum"
	"github.com/robert-malhotra/go-dap4/internal/encode"
)

// Checksum returns the checksum of the data of top-level variable v, encoded
// as DAP4 serialises it: fixed-size values in the session's byte order,
// strings and opaques preceded by an 8-byte count, and each sequence
// preceded by an 8-byte record count. The boolean is false, and no data
// is read, when the session's checksum mode does not enable DAP
// checksums.
func (d *DataDataset) Checksum(v *dmr.Variable) (uint32, bool, error) {
	mode, err := d.dsp.ChecksumMode()
	if err != nil {
		return 0, false, err
	}
	if !mode.Enabled(ChecksumDAP) {
		return 0, false, nil
	}
	order, err := d.dsp.Order()
	if err != nil {
		return 0, false, err
	}
	alg, err := d.dsp.ChecksumAlgorithm()
	if err != nil {
		return 0, false, err
	}
	dv, err := d.VariableData(v)
	if err != nil {
		return 0, false, err
	}

	sum := checksum.NewSummer(alg)
	enc := encode.NewEncoder(sum, order)
	if err := encodeNode(enc, dv); err != nil {
		return 0, false, err
	}
	return sum.Sum32(), true, nil
}

// DMRChecksum returns the checksum of the DMR document of the dataset. The
// boolean is false when the session's checksum mode does not enable DMR
// checksums.
func (d *DataDataset) DMRChecksum() (uint32, bool, error) {
	mode, err := d.dsp.ChecksumMode()
	if err != nil {
		return 0, false, err
	}
	if !mode.Enabled(ChecksumDMR) {
		return 0, false, nil
	}
	alg, err := d.dsp.ChecksumAlgorithm()
	if err != nil {
		return 0, false, err
	}
	sum := checksum.NewSummer(alg)
	if err := dmr.WriteXML(sum, d.schema); err != nil {
		return 0, false, err
	}
	return sum.Sum32(), true, nil
}

// ChecksumAlgorithm returns the function behind the session's checksums.
func (d *DataDataset) ChecksumAlgorithm() (ChecksumAlgorithm, error) {
	return d.dsp.ChecksumAlgorithm()
}

// VerifyDMR checks a received DMR document against the checksum sent with
// it and parses it. A mismatch is an ErrSchema error.
func VerifyDMR(doc []byte, alg ChecksumAlgorithm, expected uint32) (*dmr.Dataset, error) {
	if !checksum.Verify(alg, doc, expected) {
		return nil, errorf(ErrSchema, "verify dmr", "", "%v checksum 0x%08x, expected 0x%08x",
			alg, checksum.Sum(alg, doc), expected)
	}
	ds, err := dmr.ReadXML(bytes.NewReader(doc))
	if err != nil {
		return nil, newError(ErrSchema, "verify dmr", "", err)
	}
	return ds, nil
}

func encodeNode(enc *encode.Encoder, dv DataVariable) error {
	switch n := dv.(type) {
	case *DataAtomic:
		arr, err := n.ReadAll()
		if err != nil {
			return err
		}
		return enc.WriteArray(arr)
	case *DataStructure:
		return encodeFields(enc, n.fields)
	case *DataRecord:
		return encodeFields(enc, n.fields)
	case *DataSequence:
		return encodeSequence(enc, n)
	case *DataCompoundArray:
		for i := int64(0); i < n.Count(); i++ {
			elem, err := n.ReadAt(i)
			if err != nil {
				return err
			}
			if err := encodeChild(enc, elem); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("encoding %T", dv)
}

// encodeSequence writes the record count and then the records. Records
// are buffered so that a sequence of unknown length can be counted first.
func encodeSequence(enc *encode.Encoder, s *DataSequence) error {
	var buf bytes.Buffer
	order := enc.Order()
	inner := encode.NewEncoder(&buf, order)
	var count int64
	for rec, err := range s.Records() {
		if err != nil {
			return err
		}
		count++
		if err := encodeChild(inner, rec); err != nil {
			return err
		}
	}
	enc.WriteCount(count)
	return enc.WriteBytes(buf.Bytes())
}

func encodeFields(enc *encode.Encoder, f fields) error {
	for i := 0; i < f.FieldCount(); i++ {
		child, err := f.Field(i)
		if err != nil {
			return err
		}
		if err := encodeChild(enc, child); err != nil {
			return err
		}
	}
	return nil
}

func encodeChild(enc *encode.Encoder, dv DataVariable) error {
	err := encodeNode(enc, dv)
	if rerr := dv.Cursor().Release(); err == nil {
		err = rerr
	}
	return err
}
