package logvfs

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// frameMagic precedes every framed record (but not the Header, which sits at byte 0 unframed).
// Grounded on the ClusterCockpit metricstore WAL's [magic][len][payload][crc] record shape
// (pkg/metricstore/walCheckpoint.go), the closest in-pack analog to this append-only log.
var frameMagic = [4]byte{'V', 'F', 'S', 'R'}

// frameHeaderLen is magic(4) + rec_len(8) + tag(1).
const frameHeaderLen = 4 + 8 + 1

// frameTrailerLen is the trailing crc32(4) shared by both frame shapes.
const frameTrailerLen = 4

// writeHeader serializes the 24-byte Header at the start of the backing file.
func writeHeader(w io.WriterAt, h Header) error {
	var buf [headerSize]byte
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.BlockSize)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Root))
	_, err := w.WriteAt(buf[:], 0)
	return err
}

// readHeader reads and validates the 24-byte Header. An unrecognized magic or version is fatal:
// this is not a log-tail-truncation case, it means the file is not one of ours.
func readHeader(r io.ReaderAt) (Header, error) {
	var buf [headerSize]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return Header{}, ioErr("mount", "", err)
	}
	var h Header
	copy(h.Magic[:], buf[0:8])
	if h.Magic != headerMagic {
		return Header{}, newErr(KindCorruptLog, "mount", "", errMagicMismatch)
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	if h.Version != currentVersion {
		return Header{}, unsupportedVersionErr(h.Version)
	}
	h.BlockSize = binary.LittleEndian.Uint32(buf[12:16])
	h.Root = InodeId(binary.LittleEndian.Uint64(buf[16:24]))
	return h, nil
}

var errMagicMismatch = simpleErr("backing file does not start with the logvfs magic")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

// frameKind distinguishes the two on-disk record shapes.
type frameKind int

const (
	// frameShapeSelfContained is tags 1,2,4,5,6,7,8: magic, rec_len, tag, body, crc32(tag||body).
	frameShapeSelfContained frameKind = iota
	// frameShapeDataWrite is tag 3 only: magic, rec_len, tag, header body, header_crc32, raw data,
	// data_crc32. rec_len covers everything from tag through data_crc32 inclusive.
	frameShapeDataWrite
)

// decodedFrame is one successfully parsed frame read back from the log.
type decodedFrame struct {
	tag        recordTag
	rec        record // nil for tag==tagDataWrite; data write payload fields live in dataWrite below.
	dataWrite  recDataWrite
	data       []byte // raw written bytes, only populated for tag==tagDataWrite
	dataOffset int64  // on-disk offset of data[0], only meaningful for tag==tagDataWrite
	nextOffset int64
}

// appendSelfContained frames one of the non-DataWrite record kinds and writes it at offset via w
// (backend.WritableFile exposes WriteAt only, never a plain Write, since the backing file is always
// positioned by explicit offset rather than a cursor). Returns the offset immediately after the frame.
func appendSelfContained(w io.WriterAt, offset int64, r record) (int64, error) {
	body := encodeBody(r)
	tagByte := byte(r.recordTag())

	crcInput := make([]byte, 0, 1+len(body))
	crcInput = append(crcInput, tagByte)
	crcInput = append(crcInput, body...)
	crc := crc32.ChecksumIEEE(crcInput)

	recLen := uint64(1 + len(body) + frameTrailerLen)

	buf := make([]byte, 0, frameHeaderLen+len(body)+frameTrailerLen)
	buf = append(buf, frameMagic[:]...)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], recLen)
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, tagByte)
	buf = append(buf, body...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	buf = append(buf, crcBuf[:]...)

	if _, err := w.WriteAt(buf, offset); err != nil {
		return 0, ioErr("append", "", err)
	}
	return offset + int64(len(buf)), nil
}

// appendDataWrite frames a DataWrite record: tag 3's header body, its own CRC, the raw data bytes,
// then a CRC over the raw data. Two independent CRCs let replay distinguish a corrupt header from a
// corrupt (or truncated) data payload.
func appendDataWrite(w io.WriterAt, offset int64, hdr recDataWrite, data []byte) (int64, error) {
	headerBody := newEncoder()
	headerBody.putU64(uint64(hdr.Inode))
	headerBody.putU64(hdr.LogicalOffset)
	headerBody.putU64(hdr.Len)
	body := headerBody.bytes()

	tagByte := byte(tagDataWrite)
	headerCRCInput := make([]byte, 0, 1+len(body))
	headerCRCInput = append(headerCRCInput, tagByte)
	headerCRCInput = append(headerCRCInput, body...)
	headerCRC := crc32.ChecksumIEEE(headerCRCInput)

	dataCRC := crc32.ChecksumIEEE(data)

	recLen := uint64(1 + len(body) + frameTrailerLen + len(data) + frameTrailerLen)

	buf := make([]byte, 0, frameHeaderLen+len(body)+frameTrailerLen+len(data)+frameTrailerLen)
	buf = append(buf, frameMagic[:]...)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], recLen)
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, tagByte)
	buf = append(buf, body...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], headerCRC)
	buf = append(buf, crcBuf[:]...)
	buf = append(buf, data...)
	binary.LittleEndian.PutUint32(crcBuf[:], dataCRC)
	buf = append(buf, crcBuf[:]...)

	if _, err := w.WriteAt(buf, offset); err != nil {
		return 0, ioErr("append", "", err)
	}
	return offset + int64(len(buf)), nil
}

// readFrame reads one frame starting at offset. A tail-truncation condition — too few bytes
// remaining for even a frame header, a short read, a partial frame, or a CRC mismatch (wherever in
// the log it occurs) — is reported via the ok=false, err=nil return: the caller stops
// replay there without treating it as corruption. Once a full frame header's worth of bytes is present,
// though, it must start with frameMagic: a bad magic with enough trailing bytes to have been a real
// header is not an end-of-file artifact, it's mid-stream corruption, and is reported as CorruptLog.
// Any other malformed-but-complete frame (e.g. an unknown tag inside an otherwise intact frame) is a
// genuine CorruptLog error too, since that indicates an internal inconsistency rather than a crash mid-write.
func readFrame(r io.ReaderAt, offset int64, fileSize int64) (frame decodedFrame, ok bool, err error) {
	if offset+frameHeaderLen > fileSize {
		return decodedFrame{}, false, nil
	}
	head := make([]byte, frameHeaderLen)
	if _, err := r.ReadAt(head, offset); err != nil {
		return decodedFrame{}, false, nil
	}
	var magic [4]byte
	copy(magic[:], head[0:4])
	if magic != frameMagic {
		return decodedFrame{}, false, corruptLogf("bad frame magic at offset %d", offset)
	}
	recLen := binary.LittleEndian.Uint64(head[4:12])
	tag := recordTag(head[12])

	// rec_len counts from the tag byte, which is the last byte of the frame header.
	frameEnd := offset + frameHeaderLen - 1 + int64(recLen)
	if frameEnd > fileSize || frameEnd < offset {
		return decodedFrame{}, false, nil
	}

	if tag == tagDataWrite {
		return readDataWriteFrame(r, offset, recLen, frameEnd)
	}
	return readSelfContainedFrame(r, offset, tag, recLen, frameEnd)
}

func readSelfContainedFrame(r io.ReaderAt, offset int64, tag recordTag, recLen uint64, frameEnd int64) (decodedFrame, bool, error) {
	if recLen < uint64(1+frameTrailerLen) {
		return decodedFrame{}, false, nil
	}
	bodyLen := int(recLen) - 1 - frameTrailerLen
	rest := make([]byte, 1+bodyLen+frameTrailerLen)
	if _, err := r.ReadAt(rest, offset+frameHeaderLen-1); err != nil {
		return decodedFrame{}, false, nil
	}
	tagByte := rest[0]
	body := rest[1 : 1+bodyLen]
	wantCRC := binary.LittleEndian.Uint32(rest[1+bodyLen:])

	gotCRC := crc32.ChecksumIEEE(rest[:1+bodyLen])
	if gotCRC != wantCRC {
		return decodedFrame{}, false, nil
	}
	if recordTag(tagByte) != tag {
		return decodedFrame{}, false, corruptLogf("frame tag mismatch: header says %d, body says %d", tag, tagByte)
	}

	rec, err := decodeBody(tag, body)
	if err != nil {
		return decodedFrame{}, false, err
	}
	return decodedFrame{tag: tag, rec: rec, nextOffset: frameEnd}, true, nil
}

func readDataWriteFrame(r io.ReaderAt, offset int64, recLen uint64, frameEnd int64) (decodedFrame, bool, error) {
	const headerBodyLen = 8 + 8 + 8 // Inode, LogicalOffset, Len
	minLen := uint64(1 + headerBodyLen + frameTrailerLen + frameTrailerLen)
	if recLen < minLen {
		return decodedFrame{}, false, nil
	}
	dataLen := recLen - minLen
	tagOffset := offset + frameHeaderLen - 1

	headerPart := make([]byte, 1+headerBodyLen+frameTrailerLen)
	if _, err := r.ReadAt(headerPart, tagOffset); err != nil {
		return decodedFrame{}, false, nil
	}
	tagByte := headerPart[0]
	body := headerPart[1 : 1+headerBodyLen]
	wantHeaderCRC := binary.LittleEndian.Uint32(headerPart[1+headerBodyLen:])
	gotHeaderCRC := crc32.ChecksumIEEE(headerPart[:1+headerBodyLen])
	if gotHeaderCRC != wantHeaderCRC {
		return decodedFrame{}, false, nil
	}
	if recordTag(tagByte) != tagDataWrite {
		return decodedFrame{}, false, corruptLogf("frame tag mismatch: expected DataWrite, body says %d", tagByte)
	}

	d := newDecoder(body)
	inode, err := d.getU64()
	if err != nil {
		return decodedFrame{}, false, err
	}
	logicalOffset, err := d.getU64()
	if err != nil {
		return decodedFrame{}, false, err
	}
	length, err := d.getU64()
	if err != nil {
		return decodedFrame{}, false, err
	}
	if !d.isEOF() {
		return decodedFrame{}, false, corruptLogf("trailing bytes in DataWrite header body")
	}
	if length != dataLen {
		return decodedFrame{}, false, corruptLogf("DataWrite declares length %d but frame carries %d bytes", length, dataLen)
	}

	tail := make([]byte, int(dataLen)+frameTrailerLen)
	if _, err := r.ReadAt(tail, tagOffset+int64(1+headerBodyLen+frameTrailerLen)); err != nil {
		return decodedFrame{}, false, nil
	}
	data := tail[:dataLen]
	wantDataCRC := binary.LittleEndian.Uint32(tail[dataLen:])
	gotDataCRC := crc32.ChecksumIEEE(data)
	if gotDataCRC != wantDataCRC {
		return decodedFrame{}, false, nil
	}

	dataOffset := tagOffset + int64(1+headerBodyLen+frameTrailerLen)
	hdr := recDataWrite{Inode: InodeId(inode), LogicalOffset: logicalOffset, Len: length, DataChecksum: gotDataCRC}
	return decodedFrame{tag: tagDataWrite, dataWrite: hdr, data: data, dataOffset: dataOffset, nextOffset: frameEnd}, true, nil
}
