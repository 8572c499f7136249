package bench

import (
	"fmt"
	"strings"
)

// Role 运行角色
type Role int

const (
	ProducerOnly Role = iota + 1
	ConsumerOnly
	Both
)

// 角色名称，同时用作 TraceLog 文件名前缀和 START 事件字段
const (
	RoleProducer = "producer"
	RoleConsumer = "consumer"
	RoleBoth     = "both"
)

func (r Role) String() string {
	switch r {
	case ProducerOnly:
		return RoleProducer
	case ConsumerOnly:
		return RoleConsumer
	case Both:
		return RoleBoth
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Produces 是否运行生产循环
func (r Role) Produces() bool {
	return r == ProducerOnly || r == Both
}

// Consumes 是否运行消费循环
func (r Role) Consumes() bool {
	return r == ConsumerOnly || r == Both
}

// ParseRole 解析角色名称
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RoleProducer:
		return ProducerOnly, nil
	case RoleConsumer:
		return ConsumerOnly, nil
	case RoleBoth, "loopback":
		return Both, nil
	default:
		return 0, fmt.Errorf("unknown role: %q", s)
	}
}

// State 循环状态
type State int32

const (
	StateInit State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
