package bench

import (
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
)

// stopLoop 进入 STOPPED：写 STOP 事件，刷新 TraceLog（唯一一次），填写结果
func stopLoop(trace Recorder, state *atomic.Int32, res *Result, reason string, elapsed time.Duration, err error) {
	if err != nil {
		reason = tracelog.ReasonError
	}
	trace.Record(tracelog.Stop(reason))
	if ferr := trace.Flush(); ferr != nil {
		err = multierr.Append(err, ferr)
		reason = tracelog.ReasonError
	}
	res.Reason = reason
	res.complete(elapsed, err)
	state.Store(int32(StateStopped))
}
