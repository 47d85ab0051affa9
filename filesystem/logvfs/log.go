package logvfs

import (
	"github.com/sirupsen/logrus"

	"github.com/vfslog/vfslog/backend"
)

// logEngine owns the backing store and the append cursor. It knows nothing about inodes, paths, or
// directories: it only frames records, appends them, and replays frames back in order. Everything
// above this layer (namespace.go, mount.go) interprets what the frames mean.
type logEngine struct {
	storage backend.Storage
	writer  backend.WritableFile
	size    int64
	log     *logrus.Entry
}

// openLogEngine wraps an already-open backend.Storage. size is the file's current length, i.e. the
// offset the next append lands at.
func openLogEngine(storage backend.Storage, log *logrus.Entry) (*logEngine, error) {
	fi, err := storage.Stat()
	if err != nil {
		return nil, ioErr("mount", "", err)
	}
	w, err := storage.Writable()
	if err != nil {
		return nil, ioErr("mount", "", err)
	}
	return &logEngine{storage: storage, writer: w, size: fi.Size(), log: log}, nil
}

func (l *logEngine) fileSize() int64 { return l.size }

// append frames and writes any non-DataWrite record at the current end of the log.
func (l *logEngine) append(r record) (int64, error) {
	off := l.size
	next, err := appendSelfContained(l.writer, off, r)
	if err != nil {
		return 0, err
	}
	l.size = next
	return off, nil
}

// appendData frames and writes a DataWrite record at the current end of the log.
func (l *logEngine) appendData(hdr recDataWrite, data []byte) (int64, error) {
	off := l.size
	next, err := appendDataWrite(l.writer, off, hdr, data)
	if err != nil {
		return 0, err
	}
	l.size = next
	return off, nil
}

// forEachFrame walks every frame from byte offset from to the end of the readable log, invoking fn
// once per successfully decoded frame in order. It stops, without error, the moment it hits a short
// read or a CRC mismatch, wherever it occurs: both are treated as an unsynced write left by a crash
// mid-append, never as corruption to report. A bad magic with a full frame header's worth of bytes still
// behind it is a different matter — readFrame reports that as CorruptLog, and the walk aborts with an
// error. fn returning an error aborts the walk immediately too.
func (l *logEngine) forEachFrame(from int64, fn func(decodedFrame) error) error {
	offset := from
	size := l.size
	for {
		frame, ok, err := readFrame(l.storage, offset, size)
		if err != nil {
			return err
		}
		if !ok {
			if l.log != nil && offset != size {
				l.log.WithField("tail_bytes", size-offset).Debug("stopping replay at unsynced log tail")
			}
			return nil
		}
		if err := fn(frame); err != nil {
			return err
		}
		offset = frame.nextOffset
	}
}
