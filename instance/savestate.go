package instance

import (
	"go.uber.org/zap"

	"github.com/yosanyu/retromux/loader"
	"github.com/yosanyu/retromux/saves"
)

// SaveState serializes the core and writes the snapshot to the numbered
// state file. The write's position in the per-file queue is claimed now, so
// two saves to the same slot land in call order no matter how the instance
// thread schedules them. The returned channel delivers exactly one result.
func (in *Instance) SaveState(slot int) <-chan error {
	out := make(chan error, 1)

	layout, err := in.layoutLocked()
	if err != nil {
		out <- err
		return out
	}
	path := layout.StatePath(slot)

	type snapshot struct {
		data []byte
		err  error
	}
	taskDone := make(chan snapshot, 1)
	if err := in.Enqueue(func(core loader.Core) {
		n := core.SerializeSize()
		if n == 0 {
			taskDone <- snapshot{err: ErrSerialize}
			return
		}
		buf := make([]byte, n)
		if !core.Serialize(buf) {
			taskDone <- snapshot{err: ErrSerialize}
			return
		}
		taskDone <- snapshot{data: buf}
	}); err != nil {
		out <- err
		return out
	}

	link := in.sched.Ordered(path, func() error {
		var snap snapshot
		select {
		case snap = <-taskDone:
		case <-in.done:
			select {
			case snap = <-taskDone:
			default:
				snap.err = ErrStopped
			}
		}
		if snap.err != nil {
			return snap.err
		}
		if err := saves.WriteBlob(path, snap.data); err != nil {
			return err
		}
		in.log.Info("state saved", zap.String("path", path), zap.Int("bytes", len(snap.data)))
		return nil
	})

	go func() { out <- link() }()
	return out
}

// LoadState reads the numbered state file and hands it to the core. The
// read queues behind any in-flight save of the same slot, so a save
// followed by a load always restores what the save wrote. A snapshot whose
// size no longer matches the core's serialize size is still offered to the
// core; the core is the authority on whether it can use it.
func (in *Instance) LoadState(slot int) <-chan error {
	out := make(chan error, 1)

	layout, err := in.layoutLocked()
	if err != nil {
		out <- err
		return out
	}
	path := layout.StatePath(slot)

	link := in.sched.Ordered(path, func() error {
		data, ok, err := saves.ReadBlob(path)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoState
		}

		taskDone := make(chan error, 1)
		if err := in.Enqueue(func(core loader.Core) {
			if want := core.SerializeSize(); uintptr(len(data)) != want {
				in.log.Warn("state size differs from current serialize size",
					zap.String("path", path),
					zap.Int("snapshot", len(data)),
					zap.Uint64("current", uint64(want)))
			}
			if !core.Unserialize(data) {
				taskDone <- ErrUnserialize
				return
			}
			in.log.Info("state restored", zap.String("path", path), zap.Int("bytes", len(data)))
			taskDone <- nil
		}); err != nil {
			return err
		}

		select {
		case err := <-taskDone:
			return err
		case <-in.done:
			select {
			case err := <-taskDone:
				return err
			default:
				return ErrStopped
			}
		}
	})

	go func() { out <- link() }()
	return out
}
