package bench

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/json"
)

// Summary 写入汇总文件的内容
type Summary struct {
	Topic    string    `json:"topic"`
	ExitCode int       `json:"exitCode"`
	Results  []*Result `json:"results"`
}

// NewSummary 汇总运行结果
func NewSummary(topic string, results ...*Result) *Summary {
	return &Summary{
		Topic:    topic,
		ExitCode: ExitCode(results...),
		Results:  results,
	}
}

// WriteFile 以 JSON 写入 path，目录不存在时创建
func (s *Summary) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
