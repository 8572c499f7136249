package bench

import "time"

// LatencyStats 端到端延迟统计，单位微秒
type LatencyStats struct {
	Count  uint64  `json:"count"`
	MinUS  float64 `json:"min"`
	MaxUS  float64 `json:"max"`
	MeanUS float64 `json:"mean"`
	sum    float64
}

// Observe 记录一次延迟
func (s *LatencyStats) Observe(us float64) {
	if s.Count == 0 || us < s.MinUS {
		s.MinUS = us
	}
	if us > s.MaxUS {
		s.MaxUS = us
	}
	s.Count++
	s.sum += us
	s.MeanUS = s.sum / float64(s.Count)
}

// Result 一个循环的运行结果
type Result struct {
	Role           string        `json:"role"`
	Transport      string        `json:"transport"`
	Reason         string        `json:"reason"`
	Sent           uint64        `json:"sent,omitempty"`
	Received       uint64        `json:"received,omitempty"`
	NoMessage      uint64        `json:"noMessage,omitempty"`
	Retries        uint64        `json:"retries,omitempty"`
	LastSequence   uint64        `json:"lastSequence"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds float64       `json:"elapsedSeconds"`
	RatePerSecond  float64       `json:"ratePerSecond"`
	Latency        *LatencyStats `json:"latencyUs,omitempty"`
	Error          string        `json:"error,omitempty"`

	Err error `json:"-"`
}

// Count 本循环处理的消息数
func (r *Result) Count() uint64 {
	return r.Sent + r.Received
}

// ExitCode 0 表示正常停止（中断或达到上限），1 表示传输错误
func (r *Result) ExitCode() int {
	if r.Err != nil {
		return 1
	}
	return 0
}

func (r *Result) complete(elapsed time.Duration, err error) {
	r.Elapsed = elapsed
	r.ElapsedSeconds = elapsed.Seconds()
	if secs := elapsed.Seconds(); secs > 0 {
		r.RatePerSecond = float64(r.Count()) / secs
	}
	if r.Latency != nil && r.Latency.Count == 0 {
		r.Latency = nil
	}
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// ExitCode 汇总多个循环的退出码
func ExitCode(results ...*Result) int {
	for _, r := range results {
		if r != nil && r.ExitCode() != 0 {
			return 1
		}
	}
	return 0
}
