package logvfs

// findLatestCheckpoint scans the whole log once, remembering only the most recent Checkpoint
// record's payload and the offset immediately after it. It deliberately does not build up namespace
// state for any record along the way: the point of a checkpoint is to let a mount skip the expensive
// part of replay (applying every individual record into the inode/children maps) for everything the
// checkpoint already folded in.
func findLatestCheckpoint(log *logEngine) (cp Checkpoint, resumeOffset int64, found bool, err error) {
	resumeOffset = headerSize
	walkErr := log.forEachFrame(headerSize, func(f decodedFrame) error {
		if f.tag == tagCheckpoint {
			r := f.rec.(recCheckpoint)
			cp = r.Checkpoint
			resumeOffset = f.nextOffset
			found = true
		}
		return nil
	})
	if walkErr != nil {
		return Checkpoint{}, 0, false, walkErr
	}
	return cp, resumeOffset, found, nil
}

// replayInto rebuilds ns by seeding it from the latest checkpoint (if any) and then applying every
// record after it in order. This is the single entry point both fresh mounts (no checkpoint yet,
// resumeOffset==headerSize) and warm mounts use.
func replayInto(log *logEngine, ns *namespace) error {
	cp, resumeOffset, found, err := findLatestCheckpoint(log)
	if err != nil {
		return err
	}
	if found {
		ns.applyCheckpoint(cp)
	}
	return log.forEachFrame(resumeOffset, ns.apply)
}

// writeCheckpoint folds the current namespace state into a Checkpoint record and appends it. Safe to
// call at any time; applying the same checkpoint twice during a later replay is a no-op beyond the
// second reset being redundant.
func writeCheckpoint(log *logEngine, ns *namespace) error {
	_, err := log.append(recCheckpoint{Checkpoint: ns.snapshot()})
	return err
}
