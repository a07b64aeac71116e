package compound

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// releaseOutcome is one scripted Send result for the exactly-once
// release test, annotated with what the engine will do about it.
type releaseOutcome struct {
	result sendResult

	// retriesQuery/retriesPosix report whether this outcome, as the
	// first result of a call, makes that call issue a second Send.
	retriesQuery bool
	retriesPosix bool
}

// TestBufferReleaseExactlyOnce drives query calls through randomized
// outcome scripts and checks after every call that each buffer the
// transport handed out came back exactly once, whatever the exit path.
func TestBufferReleaseExactlyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(0x5EED))

	success := func() releaseOutcome {
		return releaseOutcome{result: querySuccess(t, sampleAllInfo())}
	}
	symlink := func() releaseOutcome {
		return releaseOutcome{
			result: sendResult{
				responses: []transport.Response{
					pooled(symlinkPacket(t, "a/b", codec.SymlinkFlagRelative)),
					emptyResponse(),
					emptyResponse(),
				},
				err: &transport.StatusError{Status: types.StatusStoppedOnSymlink, Slot: 0},
			},
			retriesQuery: true,
			retriesPosix: true,
		}
	}
	statusFailure := func(status types.Status) releaseOutcome {
		// The server may or may not have produced packets for the later
		// slots before failing.
		responses := []transport.Response{
			pooled(statusPacket(t, types.CmdCreate, status)),
			emptyResponse(),
			emptyResponse(),
		}
		if rng.Intn(2) == 0 {
			responses[2] = pooled(statusPacket(t, types.CmdClose, status))
		}
		return releaseOutcome{
			result: sendResult{
				responses: responses,
				err:       &transport.StatusError{Status: status, Slot: 0},
			},
			// A bare unsupported status (no symlink payload) only makes
			// the best-effort posix retry fire.
			retriesPosix: status == types.StatusNotSupported,
		}
	}
	connectionLoss := func() releaseOutcome {
		return releaseOutcome{result: sendResult{err: errors.New("connection reset")}}
	}

	roll := func() releaseOutcome {
		switch rng.Intn(7) {
		case 0:
			return success()
		case 1:
			return symlink()
		case 2:
			return statusFailure(types.StatusObjectNameNotFound)
		case 3:
			return statusFailure(types.StatusNotSupported)
		case 4:
			return statusFailure(types.StatusPathNotCovered)
		case 5:
			return statusFailure(types.StatusNetworkNameDeleted)
		default:
			return connectionLoss()
		}
	}

	for i := 0; i < 500; i++ {
		posix := rng.Intn(2) == 0
		first := roll()

		script := []sendResult{first.result}
		retries := first.retriesQuery
		if posix {
			retries = first.retriesPosix
		}
		if retries {
			// The retry's own outcome is independent of the first, and
			// a second failure is always final.
			script = append(script, roll().result)
		}

		ft := newFakeTransport(t, script...)
		e := newTestEngine(ft)

		if posix {
			_, _ = e.PosixQueryPathInfo(context.Background(), "some/path")
		} else {
			_, _ = e.QueryPathInfo(context.Background(), "some/path")
		}

		require.Equal(t, ft.allocated, ft.released,
			"iteration %d leaked or double-released buffers", i)
	}
}
